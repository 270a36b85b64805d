package admission

import "time"

// Attempt is one verification attempt presented to the gate. Only UserID is
// required; every optional signal that is present sharpens both limiting and
// scoring.
type Attempt struct {
	UserID            string
	DeviceFingerprint string
	IPAddress         string
	Location          *GeoPoint
	TransactionAmount *float64
	Behavioral        *BehavioralSample
}

// GeoPoint is a latitude/longitude fix with an optional ISO country code.
type GeoPoint struct {
	Lat     float64
	Lon     float64
	Country string
}

// BehavioralSample carries the timing signals captured alongside a factor:
// total completion time and per-character typing pace, both in milliseconds.
type BehavioralSample struct {
	CompletionMs float64
	MsPerChar    float64
}

// RiskLevel classifies a combined risk score.
type RiskLevel string

const (
	// RiskLow is a score below the medium threshold (default < 30).
	RiskLow RiskLevel = "LOW"
	// RiskMedium is a score at or above the medium threshold (default >= 30).
	RiskMedium RiskLevel = "MEDIUM"
	// RiskHigh is a score at or above the high threshold (default >= 70).
	RiskHigh RiskLevel = "HIGH"
)

// RiskResult is the outcome of [Gate.Score].
type RiskResult struct {
	// Score is the clamped sum of all strategy contributions, 0..100.
	Score int
	// Level is the classification of Score.
	Level RiskLevel
	// Legitimate is false only for HIGH classifications.
	Legitimate bool
	// Reasons lists human-readable explanations for every triggered signal.
	Reasons []string
	// Strategies maps each strategy name to its individual contribution.
	Strategies map[string]int
}

// FraudReport identifies the device fingerprint and/or IP address to
// blacklist or clear. At least one of the two must be set.
type FraudReport struct {
	DeviceFingerprint string
	IPAddress         string
	Reason            string
}

// BlacklistEntry is one active fraud report, as returned by
// [Gate.FraudReports].
type BlacklistEntry struct {
	// Entity is "device:{fingerprint}" or "ip:{address}".
	Entity  string
	Reason  string
	AddedAt time.Time
}
