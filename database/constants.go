package database

// Baseline constants
const (
	// Trailing window used for factor and metric baselines
	BaselineWindowDays = 30

	// Fewer non-null samples than this means "no baseline"
	MinBaselineSamples = 5

	// Guards z-score division when a baseline has zero spread
	StdDevEpsilon = 1e-6
)

// Factor deviation thresholds (percent)
const (
	// Enrichment marks a factor notable at this deviation
	NotableDeviationPct = 30.0

	// Attribution also admits non-notable factors at this deviation
	AttributionMinDeviationPct = 25.0

	// Contribution buckets
	ContributionHighPct   = 50.0
	ContributionMediumPct = 30.0

	// Max factors returned by attribution
	MaxAttributedFactors = 10

	// Max behaviors handed to the historical matcher
	MaxNotableBehaviors = 3
)

// Anomaly severity thresholds
const (
	SeverityHighPct     = 50.0
	SeverityModeratePct = 30.0
	SeverityHighZ       = 4.0
	SeverityModerateZ   = 3.0

	// Temperature-deviation metrics use absolute degrees C
	TemperatureMinDeviationC     = 0.3
	TemperatureSeverityHighC     = 1.0
	TemperatureSeverityModerateC = 0.5

	// Every member of a fingerprint rule must deviate at least this far
	FingerprintMemberMinZ = 1.5
)

// Pattern mining constants
const (
	// Outcome z-score a historical day must cross to count as a match
	HistoricalOutcomeMinZ = 1.5

	// Outcome z-score that makes a historical day a "good day"
	PositiveOutcomeMinZ = 1.0

	// Minimum history before the matcher will report anything
	MinHistoryMonths = 1.0

	MaxMatchDates           = 10
	MaxPatternConfidence    = 0.95
	PatternConfidenceBase   = 0.3
	PatternConfidencePerHit = 0.07
	PatternDensityWeight    = 0.1
)

// Quality gate constants
const (
	QualityAdmitFloor = 0.4

	QualityCausesCap        = 0.35
	QualityCausePoints      = 0.12
	QualityMinSignificant   = 2
	QualityPatternFull      = 0.35
	QualityPatternPartial   = 0.2
	QualityPatternMinimal   = 0.1
	QualityMagnitudeFull    = 0.30
	QualityMagnitudePartial = 0.20
	QualityMagnitudeMinimal = 0.10

	// Strong historical pattern that can stand in for missing causes
	StrongPatternMatches    = 3
	StrongPatternConfidence = 0.5
)

// Metric noise floors (percent deviation below which nothing is surfaced)
const (
	NoiseFloorActivityPct  = 30.0
	NoiseFloorRecoveryPct  = 20.0
	NoiseFloorDefaultPct   = 25.0
	NoiseFloorTemperatureC = 0.3
)
