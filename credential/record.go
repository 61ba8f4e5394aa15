// Package credential models API credentials and the rate-governed pool
// that multiplexes concurrent chapter jobs across them.
package credential

import "time"

// Family identifies which provider dialect a credential speaks.
type Family string

const (
	Gemini Family = "gemini"
	OpenAI Family = "openai"
)

// DefaultRPMLimit is used when a credential's config omits rpm.
const DefaultRPMLimit = 5

// Config is the static, load-time shape of one credential, as parsed
// from the configuration file's gemini_api/openai_api arrays.
type Config struct {
	Key        string `json:"key"`
	BaseURL    string `json:"redirect_url,omitempty"`
	Model      string `json:"model,omitempty"`
	RPM        int    `json:"rpm,omitempty"`
}

// ErrorKind classifies a reported failure for cooldown purposes.
type ErrorKind string

const (
	ErrorRateLimit  ErrorKind = "rate_limit"
	ErrorInvalidKey ErrorKind = "invalid_key"
	ErrorGeneral    ErrorKind = "general"
)

// Record is one credential's static identity plus mutable runtime
// health. All mutable fields are only ever touched while the owning
// Pool's lock is held.
type Record struct {
	Key      string
	BaseURL  string
	Model    string
	RPMLimit int

	recentRequestTimes []time.Time
	totalErrors        int
	consecutiveErrors  int
	coolingUntil       time.Time
	emaSuccessRate     float64
	skipped            bool
}

func newRecord(cfg Config) *Record {
	rpm := cfg.RPM
	if rpm <= 0 {
		rpm = DefaultRPMLimit
	}
	return &Record{
		Key:            cfg.Key,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		RPMLimit:       rpm,
		emaSuccessRate: 1.0, // bias toward new/unproven credentials
	}
}

// Snapshot is a read-only view of a credential's health for observability.
type Snapshot struct {
	Key               string
	RPMLimit          int
	WindowLen         int
	TotalErrors       int
	ConsecutiveErrors int
	CoolingUntil      time.Time
	EMASuccessRate    float64
	Skipped           bool
}

func (r *Record) snapshot(now time.Time) Snapshot {
	return Snapshot{
		Key:               r.Key,
		RPMLimit:          r.RPMLimit,
		WindowLen:         len(r.recentRequestTimes),
		TotalErrors:       r.totalErrors,
		ConsecutiveErrors: r.consecutiveErrors,
		CoolingUntil:      r.coolingUntil,
		EMASuccessRate:    r.emaSuccessRate,
		Skipped:           r.skipped,
	}
}

func (r *Record) cooling(now time.Time) bool {
	return r.coolingUntil.After(now)
}

func evictExpired(times []time.Time, now time.Time) []time.Time {
	cut := 0
	for cut < len(times) && now.Sub(times[cut]) > 60*time.Second {
		cut++
	}
	if cut == 0 {
		return times
	}
	return append(times[:0:0], times[cut:]...)
}
