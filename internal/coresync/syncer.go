package coresync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/coopfin/backoffice/internal/ledger"
	"github.com/coopfin/backoffice/internal/shared"
)

const lastRunKey = "coresync:mirror:last_run"

// Source reads the core banking data.
type Source interface {
	ListAccounts(ctx context.Context) ([]ledger.AccountName, error)
	ListBalances(ctx context.Context, since time.Time) ([]ledger.BalanceRow, error)
}

// Sink persists the mirror.
type Sink interface {
	SaveMirror(ctx context.Context, accounts []ledger.AccountName, balances []ledger.BalanceRow) error
}

// Lock is the advisory lock guarding a run.
type Lock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
	Held(ctx context.Context, key string) (bool, time.Duration, error)
}

// CacheBumper invalidates analytics computed from the previous mirror.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// SyncRequest bounds the balances copied in one run.
type SyncRequest struct {
	Since time.Time
}

// SyncResult describes a finished or skipped run.
type SyncResult struct {
	RunID      string    `json:"run_id"`
	Skipped    bool      `json:"skipped"`
	Since      string    `json:"since"`
	Accounts   int       `json:"accounts"`
	Balances   int       `json:"balances"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Config carries the collaborators of Syncer.
type Config struct {
	Source  Source
	Sink    Sink
	Lock    Lock
	Cache   CacheBumper
	Redis   *redis.Client
	LockTTL time.Duration
	Logger  *slog.Logger
}

// Syncer copies the core banking balances into the local store. At most one run is
// active across all processes.
type Syncer struct {
	source  Source
	sink    Sink
	lock    Lock
	cache   CacheBumper
	redis   *redis.Client
	lockTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewSyncer wires a Syncer.
func NewSyncer(cfg Config) *Syncer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Syncer{
		source:  cfg.Source,
		sink:    cfg.Sink,
		lock:    cfg.Lock,
		cache:   cfg.Cache,
		redis:   cfg.Redis,
		lockTTL: ttl,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one mirror pass. When another run holds the lock the call returns a
// skipped result without error.
func (s *Syncer) Run(ctx context.Context, req SyncRequest) (SyncResult, error) {
	result := SyncResult{RunID: uuid.NewString(), StartedAt: s.now(), Since: ledger.DateKey(req.Since)}
	logger := s.logger.With(slog.String("run_id", result.RunID), slog.String("since", result.Since))

	token, err := s.lock.Acquire(ctx, shared.SyncLockKey(), s.lockTTL)
	if err != nil {
		return result, err
	}
	if token == "" {
		logger.Info("core mirror already running, skipping")
		result.Skipped = true
		result.FinishedAt = s.now()
		return result, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), shared.SyncLockKey(), token); err != nil {
			logger.Warn("release sync lock", slog.Any("error", err))
		}
	}()

	accounts, err := s.source.ListAccounts(ctx)
	if err != nil {
		return result, err
	}
	balances, err := s.source.ListBalances(ctx, req.Since)
	if err != nil {
		return result, err
	}
	if err := s.sink.SaveMirror(ctx, accounts, balances); err != nil {
		return result, fmt.Errorf("coresync: save mirror: %w", err)
	}
	result.Accounts = len(accounts)
	result.Balances = len(balances)

	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			logger.Warn("bump analytics cache", slog.Any("error", err))
		}
	}
	result.FinishedAt = s.now()
	s.record(ctx, result)
	logger.Info("core mirror completed",
		slog.Int("accounts", result.Accounts),
		slog.Int("balances", result.Balances),
		slog.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

func (s *Syncer) record(ctx context.Context, result SyncResult) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, lastRunKey, raw, 0).Err(); err != nil {
		s.logger.Warn("record last sync run", slog.Any("error", err))
	}
}

// Status reports whether a run is in progress and the last completed run.
type Status struct {
	Running bool        `json:"running"`
	LockTTL string      `json:"lock_ttl,omitempty"`
	LastRun *SyncResult `json:"last_run,omitempty"`
}

// Status inspects the lock and the last recorded run.
func (s *Syncer) Status(ctx context.Context) (Status, error) {
	held, ttl, err := s.lock.Held(ctx, shared.SyncLockKey())
	if err != nil {
		return Status{}, err
	}
	st := Status{Running: held}
	if held && ttl > 0 {
		st.LockTTL = ttl.Round(time.Second).String()
	}
	if s.redis == nil {
		return st, nil
	}
	raw, err := s.redis.Get(ctx, lastRunKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return st, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("coresync: last run: %w", err)
	}
	var last SyncResult
	if err := json.Unmarshal(raw, &last); err != nil {
		return Status{}, fmt.Errorf("coresync: decode last run: %w", err)
	}
	st.LastRun = &last
	return st, nil
}
