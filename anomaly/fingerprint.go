package anomaly

import (
	"pulse-insights/database"
	"pulse-insights/metric"
)

// Known multi-metric signatures
const (
	FingerprintIllnessPrecursor = "illness_precursor"
	FingerprintRecoveryDeficit  = "recovery_deficit"
)

// FingerprintRule is a fixed co-occurrence rule over a group of metrics
type FingerprintRule struct {
	Name      string
	Direction Direction
	Members   []metric.Type
}

// FingerprintRules is the static rule table, checked in order
var FingerprintRules = []FingerprintRule{
	{
		Name:      FingerprintIllnessPrecursor,
		Direction: Above,
		Members:   []metric.Type{metric.TemperatureDeviation, metric.RespiratoryRate, metric.RestingHeartRate},
	},
	{
		Name:      FingerprintRecoveryDeficit,
		Direction: Below,
		Members:   []metric.Type{metric.HRV, metric.DeepSleep},
	},
}

// ApplyFingerprints tags flagged members of every rule that fires.
// A rule fires when each member deviates at least 1.5 z in the rule's direction
// and at least one member is a flagged anomaly. The first matching rule wins.
func ApplyFingerprints(measured map[metric.Type]*measurement) {
	for _, rule := range FingerprintRules {
		if !rule.fires(measured) {
			continue
		}
		for _, m := range rule.Members {
			meas := measured[m]
			if meas.flagged && meas.result.Fingerprint == "" {
				meas.result.Fingerprint = rule.Name
			}
		}
	}
}

func (r FingerprintRule) fires(measured map[metric.Type]*measurement) bool {
	anyFlagged := false
	for _, m := range r.Members {
		meas, ok := measured[m]
		if !ok {
			return false
		}
		if meas.result.ZScore*r.Direction.Sign() < database.FingerprintMemberMinZ {
			return false
		}
		if meas.flagged {
			anyFlagged = true
		}
	}
	return anyFlagged
}
