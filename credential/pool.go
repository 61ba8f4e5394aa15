package credential

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrPoolExhausted is returned by Acquire when every credential in the
// pool has crossed the session-fatal skip threshold.
var ErrPoolExhausted = errors.New("credential: pool exhausted, every credential skipped")

// ErrTimeout is returned by Acquire when no credential became available
// before the wall-clock timeout elapsed.
var ErrTimeout = errors.New("credential: acquire timed out")

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithGlobalRPMLimit sets the pool-wide rolling-window RPM ceiling.
// Defaults to 20, matching the configuration file's max_rpm default.
func WithGlobalRPMLimit(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.globalRPMLimit = n
		}
	}
}

// WithAcquireTimeout overrides the default 30s wall-clock Acquire timeout.
func WithAcquireTimeout(d time.Duration) Option {
	return func(p *Pool) { p.acquireTimeout = d }
}

// WithLogger overrides the pool's structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// WithClock overrides time.Now, for deterministic tests of the rolling
// window and cooldown math.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// Pool is the mutable, thread-safe home for one family's credentials.
// It is an explicit value owned by the caller (the batch driver),
// never a package-level singleton.
type Pool struct {
	mu sync.Mutex

	family  Family
	records []*Record
	byKey   map[string]*Record

	globalRPMLimit       int
	globalRequestTimes   []time.Time
	roundRobinCursor     int
	sessionFatal         bool

	acquireTimeout time.Duration
	log            *slog.Logger
	now            func() time.Time
}

// New builds a Pool for one provider family from its static configs.
func New(family Family, configs []Config, opts ...Option) *Pool {
	p := &Pool{
		family:         family,
		globalRPMLimit: 20,
		acquireTimeout: 30 * time.Second,
		log:            slog.Default(),
		now:            time.Now,
	}
	p.byKey = make(map[string]*Record, len(configs))
	for _, cfg := range configs {
		r := newRecord(cfg)
		p.records = append(p.records, r)
		p.byKey[r.Key] = r
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Len reports how many credentials the pool holds.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Acquire blocks until a credential is selected, the timeout expires, or
// every credential is skipped.
func (p *Pool) Acquire(ctx context.Context) (*Record, error) {
	deadline := p.now().Add(p.acquireTimeout)
	var k int
	var polls int

	for {
		rec, blocked := p.tryAcquire()
		if rec != nil {
			return rec, nil
		}
		if !blocked {
			return nil, ErrPoolExhausted
		}
		if p.now().After(deadline) {
			return nil, ErrTimeout
		}

		polls++
		if polls%3 == 0 {
			k++
		}
		wait := backoff(k)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func backoff(k int) time.Duration {
	d := 0.5 * pow2(k)
	if d > 5.0 {
		d = 5.0
	}
	return time.Duration(d * float64(time.Second))
}

func pow2(k int) float64 {
	v := 1.0
	for i := 0; i < k; i++ {
		v *= 2
	}
	return v
}

// tryAcquire runs the single-lock, bounded-work selection step once.
// It returns (record, true) on a successful selection, (nil, false) on
// ErrPoolExhausted-worthy state, and (nil, true) when the caller should
// keep polling.
func (p *Pool) tryAcquire() (*Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()

	// Step 1: evict the global window and check the global ceiling.
	p.globalRequestTimes = evictExpired(p.globalRequestTimes, now)
	if len(p.globalRequestTimes) >= p.globalRPMLimit {
		return nil, true
	}

	// Step 2+3: build the candidate set.
	type candidate struct {
		rec   *Record
		idx   int
		score float64
	}
	var candidates []candidate
	allSkipped := true
	for i, r := range p.records {
		if !r.skipped {
			allSkipped = false
		}
		if r.skipped || r.cooling(now) {
			continue
		}
		r.recentRequestTimes = evictExpired(r.recentRequestTimes, now)
		if len(r.recentRequestTimes) >= r.RPMLimit {
			continue
		}
		loadRatio := float64(len(r.recentRequestTimes)) / float64(r.RPMLimit)
		rotationWeight := 1.0 - (float64(mod(i-p.roundRobinCursor, len(p.records))) / float64(len(p.records)))
		score := 0.5*r.emaSuccessRate - 0.3*loadRatio + 0.2*rotationWeight
		candidates = append(candidates, candidate{rec: r, idx: i, score: score})
	}

	if len(p.records) > 0 && allSkipped {
		p.sessionFatal = true
		return nil, false
	}

	if len(candidates) == 0 {
		return nil, true
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score {
			best = c
		}
	}

	p.roundRobinCursor = mod(best.idx+1, len(p.records))
	best.rec.recentRequestTimes = append(best.rec.recentRequestTimes, now)
	p.globalRequestTimes = append(p.globalRequestTimes, now)

	return best.rec, true
}

func mod(a, n int) int {
	if n == 0 {
		return 0
	}
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

// ReportSuccess decays consecutive_errors to 0 and moves the EMA success
// rate toward 1.0.
func (p *Pool) ReportSuccess(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.byKey[key]
	if !ok {
		return
	}
	r.emaSuccessRate = r.emaSuccessRate*0.9 + 0.1
	r.consecutiveErrors = 0
}

// ReportError increments error counters, moves the EMA toward 0.0, and
// may cool or skip the credential.
func (p *Pool) ReportError(key string, kind ErrorKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.byKey[key]
	if !ok {
		return
	}

	now := p.now()
	r.emaSuccessRate *= 0.9
	r.totalErrors++
	r.consecutiveErrors++

	if r.totalErrors >= 20 {
		r.skipped = true
		p.log.Warn("credential skipped for remainder of session", "key", redactKey(key), "family", p.family, "total_errors", r.totalErrors)

		allSkipped := true
		for _, other := range p.records {
			if !other.skipped {
				allSkipped = false
				break
			}
		}
		if allSkipped {
			p.sessionFatal = true
			p.log.Warn("pool is session-fatal, every credential skipped", "family", p.family)
		}
		return
	}

	switch kind {
	case ErrorRateLimit:
		secs := 60 * pow2(minInt(r.consecutiveErrors-1, 4))
		if secs > 3600 {
			secs = 3600
		}
		r.coolingUntil = now.Add(time.Duration(secs) * time.Second)
	case ErrorInvalidKey:
		r.coolingUntil = now.Add(3600 * time.Second)
	default:
		if r.consecutiveErrors >= 5 {
			secs := 30 * pow2(minInt(r.consecutiveErrors-5, 4))
			if secs > 1800 {
				secs = 1800
			}
			r.coolingUntil = now.Add(time.Duration(secs) * time.Second)
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func redactKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// SessionFatal reports whether every credential in the pool has been skipped.
func (p *Pool) SessionFatal() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionFatal
}

// Snapshot returns a read-only view of every credential's health.
func (p *Pool) Snapshot() []Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	out := make([]Snapshot, 0, len(p.records))
	for _, r := range p.records {
		out = append(out, r.snapshot(now))
	}
	return out
}

// MaxConcurrency derives the worker ceiling from static RPM config: sum
// of per-credential RPMs (capped at a 15/min free-tier ceiling per
// credential) divided by a family constant that depends on pool size,
// clamped to [1, 10] for pools of five or fewer credentials and
// [1, 20] for larger pools.
func (p *Pool) MaxConcurrency() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.records) == 0 {
		return 1
	}

	const freeTierRPMCeiling = 15
	adjusted := 0
	for _, r := range p.records {
		rpm := r.RPMLimit
		if rpm > freeTierRPMCeiling {
			rpm = freeTierRPMCeiling
		}
		adjusted += rpm
	}

	divisor := 5.0
	cap := 10
	if len(p.records) > 1 {
		divisor = 10.0
	}
	if len(p.records) > 5 {
		cap = 20
	}

	conc := int(float64(adjusted) / divisor)
	if conc < 1 {
		conc = 1
	}
	if conc > cap {
		conc = cap
	}
	return conc
}
