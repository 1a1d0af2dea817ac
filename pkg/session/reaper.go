package session

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Expire reasons passed to the reaper callback
const (
	ExpireReasonIdle         = "idle_timeout"
	ExpireReasonDisconnected = "grace_period_elapsed"
)

// ExpireFunc terminates one stale session: close the recognition channel,
// transition to aborted, notify the client, evict. Must be idempotent.
type ExpireFunc func(sessionID, reason string)

// Reaper periodically sweeps the store and expires sessions that have been
// idle beyond the TTL, or disconnected beyond the grace period.
type Reaper struct {
	store    *Store
	ttl      time.Duration
	grace    time.Duration
	interval time.Duration
	onExpire ExpireFunc
	logger   zerolog.Logger

	cron    *cron.Cron
	running bool
}

// ReaperConfig configures the stale session reaper
type ReaperConfig struct {
	Store       *Store
	TTL         time.Duration
	GracePeriod time.Duration
	Interval    time.Duration
	OnExpire    ExpireFunc
	Logger      zerolog.Logger
}

// NewReaper creates a stale session reaper
func NewReaper(cfg ReaperConfig) (*Reaper, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.OnExpire == nil {
		return nil, fmt.Errorf("expire callback is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 10 * time.Second
	}

	return &Reaper{
		store:    cfg.Store,
		ttl:      cfg.TTL,
		grace:    cfg.GracePeriod,
		interval: cfg.Interval,
		onExpire: cfg.OnExpire,
		logger:   cfg.Logger,
	}, nil
}

// Start schedules the periodic sweep
func (r *Reaper) Start() error {
	if r.running {
		return fmt.Errorf("reaper is already running")
	}

	r.cron = cron.New()
	spec := fmt.Sprintf("@every %s", r.interval)
	if _, err := r.cron.AddFunc(spec, r.Sweep); err != nil {
		return fmt.Errorf("failed to schedule reaper: %w", err)
	}
	r.cron.Start()
	r.running = true

	r.logger.Info().
		Dur("ttl", r.ttl).
		Dur("grace", r.grace).
		Dur("interval", r.interval).
		Msg("Stale session reaper started")

	return nil
}

// Stop cancels the periodic sweep
func (r *Reaper) Stop() error {
	if !r.running {
		return fmt.Errorf("reaper is not running")
	}

	ctx := r.cron.Stop()
	<-ctx.Done()
	r.running = false

	r.logger.Info().Msg("Stale session reaper stopped")
	return nil
}

// IsRunning returns whether the sweep is scheduled
func (r *Reaper) IsRunning() bool {
	return r.running
}

// Sweep expires every stale session once. Safe to call concurrently with
// explicit teardown: the expire callback and store eviction are idempotent.
func (r *Reaper) Sweep() {
	now := time.Now()

	for _, snap := range r.store.Snapshots() {
		if snap.State.Terminal() {
			continue
		}

		var reason string
		switch {
		case now.Sub(snap.LastActivityAt) > r.ttl:
			reason = ExpireReasonIdle
		case !snap.DisconnectedAt.IsZero() && now.Sub(snap.DisconnectedAt) > r.grace:
			reason = ExpireReasonDisconnected
		default:
			continue
		}

		r.logger.Warn().
			Str("session_id", snap.ID).
			Str("reason", reason).
			Time("last_activity", snap.LastActivityAt).
			Msg("Reaping stale session")

		r.onExpire(snap.ID, reason)
	}
}
