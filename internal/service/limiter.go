package service

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"contact-guard/internal/identity"
	"contact-guard/internal/repository"
	"contact-guard/internal/window"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	ipKeyPrefix    = "rl:ip:"
	emailKeyPrefix = "rl:email:"

	backendMemory = "memory"

	limiterIP    = "ip"
	limiterEmail = "email"
)

// Reason explains a verdict in terms safe to show a client.
type Reason string

const (
	ReasonOK               Reason = "ok"
	ReasonRateLimited      Reason = "rate_limited"
	ReasonCooldown         Reason = "cooldown"
	ReasonInvalidKey       Reason = "invalid_key"
	ReasonStoreUnavailable Reason = "store_unavailable"
	ReasonCanceled         Reason = "canceled"
)

// Verdict is the result of one limiter check. Remaining applies to an allowed IP check.
// RetryAfterSeconds applies to every denial the client can retry: the IP window (until
// the oldest counted request expires), the e-mail cooldown and fail-closed store outages.
type Verdict struct {
	Allowed           bool
	Remaining         int
	RetryAfterSeconds int
	Reason            Reason
}

// FailurePolicy decides the verdict when the counter store cannot answer.
type FailurePolicy string

const (
	// FailClosed denies the check; the default.
	FailClosed FailurePolicy = "closed"
	// FailOpen allows the check and only logs the outage.
	FailOpen FailurePolicy = "open"
)

// ParseFailurePolicy maps configuration text to a policy, defaulting to FailClosed.
func ParseFailurePolicy(s string) FailurePolicy {
	if strings.EqualFold(strings.TrimSpace(s), string(FailOpen)) {
		return FailOpen
	}
	return FailClosed
}

// Recorder receives limiter outcomes, typically for metrics.
type Recorder interface {
	ObserveCheck(limiter string, allowed bool, reason string)
	ObserveStoreError(limiter string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCheck(string, bool, string) {}
func (nopRecorder) ObserveStoreError(string)          {}

// Options tunes a Limiter. Zero fields take the defaults below.
type Options struct {
	IPLimit       int           // default 5
	IPWindow      time.Duration // default 60s
	EmailCooldown time.Duration // default 60s
	StoreTimeout  time.Duration // default 200ms
	FailurePolicy FailurePolicy // default FailClosed
	Breaker       *CircuitBreaker
	Recorder      Recorder
	Logger        *zerolog.Logger
	Clock         func() time.Time
}

func (o *Options) applyDefaults() {
	if o.IPLimit <= 0 {
		o.IPLimit = 5
	}
	if o.IPWindow <= 0 {
		o.IPWindow = time.Minute
	}
	if o.EmailCooldown <= 0 {
		o.EmailCooldown = time.Minute
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 200 * time.Millisecond
	}
	if o.FailurePolicy != FailOpen {
		o.FailurePolicy = FailClosed
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	if o.Logger == nil {
		o.Logger = &log.Logger
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Limiter applies the per-IP sliding window and the per-identity cooldown on top of a Store.
// It holds no counters itself.
type Limiter struct {
	store repository.Store
	opts  Options
	log   zerolog.Logger
}

// NewLimiter constructs a Limiter.
func NewLimiter(s repository.Store, opts Options) *Limiter {
	opts.applyDefaults()
	return &Limiter{store: s, opts: opts, log: opts.Logger.With().Str("component", "limiter").Logger()}
}

// IPLimit returns the configured per-IP quota.
func (l *Limiter) IPLimit() int { return l.opts.IPLimit }

// IPWindow returns the configured sliding window length.
func (l *Limiter) IPWindow() time.Duration { return l.opts.IPWindow }

// EmailCooldown returns the configured per-identity cooldown.
func (l *Limiter) EmailCooldown() time.Duration { return l.opts.EmailCooldown }

// Backend names the store the limiter runs on.
func (l *Limiter) Backend() string { return l.store.Backend() }

// CheckIP applies the sliding window to ip. An allowed verdict records the event; a denied
// one does not count further against the quota.
func (l *Limiter) CheckIP(ctx context.Context, ip string) Verdict {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return l.invalid(limiterIP)
	}

	var (
		allowed   bool
		remaining int
		retry     time.Duration
	)
	err := l.call(ctx, func(ctx context.Context) error {
		var err error
		allowed, remaining, retry, err = l.store.SlidingWindow(ctx, ipKeyPrefix+ip, l.opts.IPLimit, l.opts.IPWindow, l.opts.Clock())
		return err
	})
	if err != nil {
		return l.degraded(ctx, limiterIP, maskIP(ip), err)
	}

	v := Verdict{Allowed: true, Remaining: remaining, Reason: ReasonOK}
	if !allowed {
		if retry <= 0 {
			retry = l.opts.IPWindow
		}
		v = Verdict{RetryAfterSeconds: window.CeilSeconds(retry), Reason: ReasonRateLimited}
		l.log.Info().Str("limiter", limiterIP).Str("key", maskIP(ip)).Int("retry_after", v.RetryAfterSeconds).Msg("rate limit exceeded")
	}
	l.opts.Recorder.ObserveCheck(limiterIP, v.Allowed, string(v.Reason))
	return v
}

// CheckEmailCooldown applies the cooldown to the normalized digest of email. The raw
// address is never stored or logged.
func (l *Limiter) CheckEmailCooldown(ctx context.Context, email string) Verdict {
	if strings.TrimSpace(email) == "" {
		return l.invalid(limiterEmail)
	}
	digest := identity.Normalize(email)

	var (
		allowed bool
		retry   time.Duration
	)
	err := l.call(ctx, func(ctx context.Context) error {
		var err error
		allowed, retry, err = l.store.Cooldown(ctx, emailKeyPrefix+digest, l.opts.EmailCooldown, l.opts.Clock())
		return err
	})
	if err != nil {
		return l.degraded(ctx, limiterEmail, shortDigest(digest), err)
	}

	v := Verdict{Allowed: true, RetryAfterSeconds: window.CeilSeconds(l.opts.EmailCooldown), Reason: ReasonOK}
	if !allowed {
		secs := window.CeilSeconds(retry)
		if secs < 1 {
			secs = 1
		}
		v = Verdict{RetryAfterSeconds: secs, Reason: ReasonCooldown}
		l.log.Info().Str("limiter", limiterEmail).Str("key", shortDigest(digest)).Int("retry_after", secs).Msg("cooldown active")
	}
	l.opts.Recorder.ObserveCheck(limiterEmail, v.Allowed, string(v.Reason))
	return v
}

// Reset clears the counters for ip and/or email. At least one must be non-empty.
func (l *Limiter) Reset(ctx context.Context, ip, email string) error {
	var keys []string
	if ip = strings.TrimSpace(ip); ip != "" {
		keys = append(keys, ipKeyPrefix+ip)
	}
	if strings.TrimSpace(email) != "" {
		keys = append(keys, emailKeyPrefix+identity.Normalize(email))
	}
	if len(keys) == 0 {
		return ErrEmptyKey
	}

	ctx, cancel := context.WithTimeout(ctx, l.opts.StoreTimeout)
	defer cancel()
	if err := l.store.Reset(ctx, keys...); err != nil {
		return fmt.Errorf("reset counters: %w", err)
	}
	l.log.Info().Int("keys", len(keys)).Msg("counters reset")
	return nil
}

// Ping checks the underlying store within the store timeout.
func (l *Limiter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.opts.StoreTimeout)
	defer cancel()
	return l.store.Ping(ctx)
}

// call bounds fn by the store timeout and routes it through the breaker when configured.
// The in-process store never goes away, so it bypasses the breaker.
func (l *Limiter) call(ctx context.Context, fn func(context.Context) error) error {
	if l.opts.Breaker == nil || l.store.Backend() == backendMemory {
		ctx, cancel := context.WithTimeout(ctx, l.opts.StoreTimeout)
		defer cancel()
		return fn(ctx)
	}
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, l.opts.StoreTimeout)
	defer cancel()
	return l.opts.Breaker.CallContext(parent, func() error { return fn(ctx) })
}

func (l *Limiter) invalid(name string) Verdict {
	l.log.Debug().Str("limiter", name).Err(ErrEmptyKey).Msg("rejected unkeyed check")
	v := Verdict{Reason: ReasonInvalidKey}
	l.opts.Recorder.ObserveCheck(name, false, string(v.Reason))
	return v
}

// degraded turns a store failure into the configured policy verdict. A check abandoned by
// its caller is denied without being counted as a store error.
func (l *Limiter) degraded(ctx context.Context, name, key string, err error) Verdict {
	if ctx.Err() != nil {
		l.log.Debug().Err(err).Str("limiter", name).Str("key", key).Msg("check abandoned by caller")
		return Verdict{Reason: ReasonCanceled}
	}
	l.opts.Recorder.ObserveStoreError(name)
	v := Verdict{Reason: ReasonStoreUnavailable}
	ev := l.log.Warn().Err(err).Str("limiter", name).Str("key", key).Str("policy", string(l.opts.FailurePolicy))
	if l.opts.FailurePolicy == FailOpen {
		v.Allowed = true
		ev.Msg("counter store unavailable, failing open")
	} else {
		v.RetryAfterSeconds = 1
		ev.Msg("counter store unavailable, failing closed")
	}
	l.opts.Recorder.ObserveCheck(name, v.Allowed, string(v.Reason))
	return v
}

// maskIP reduces an address to its /16 (IPv4) or /64 (IPv6) network for logging.
func maskIP(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	bits := 64
	if addr.Is4() || addr.Is4In6() {
		addr = addr.Unmap()
		bits = 16
	}
	p, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return p.String()
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
