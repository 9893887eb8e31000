package evaluation

import (
	"context"
	"sync"
	"time"

	apperrors "induction-portal/internal/common/errors"
	"induction-portal/internal/common/logger"
	"induction-portal/internal/common/metrics"
	"induction-portal/internal/common/observability"
	"induction-portal/internal/store"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Summary counts the outcome of one batch run. Total == Evaluated + Errors.
type Summary struct {
	Total     int `json:"total"`
	Evaluated int `json:"evaluated"`
	Rejected  int `json:"rejected"`
	Errors    int `json:"errors"`
}

// Locker guards against two batch runs at once. *database.RedisClient
// implements it across processes; LocalLocker within one.
type Locker interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	RefreshLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// LocalLocker is an in-process Locker. TTLs are ignored.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]string)}
}

func (l *LocalLocker) AcquireLock(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = token
	return true, nil
}

// RefreshLock reports whether token still holds key.
func (l *LocalLocker) RefreshLock(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key] == token, nil
}

func (l *LocalLocker) ReleaseLock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

type evaluator interface {
	Evaluate(ctx context.Context, id string) (*Result, error)
}

// BatchConfig tunes a BatchRunner. An empty LockKey or LockTTL takes the
// default; a zero Delay disables throttling.
type BatchConfig struct {
	Delay   time.Duration
	LockKey string
	LockTTL time.Duration
}

const (
	DefaultLockKey = "induction-portal:batch-evaluation"
	DefaultLockTTL = 30 * time.Minute
)

// BatchRunner evaluates every unevaluated application, one at a time.
type BatchRunner struct {
	store     store.Store
	evaluator evaluator
	limiter   *rate.Limiter
	locker    Locker
	cfg       BatchConfig
	obs       *observability.Observability
	logger    logger.Logger
}

func NewBatchRunner(s store.Store, e *Evaluator, locker Locker, cfg BatchConfig, obs *observability.Observability, log logger.Logger) *BatchRunner {
	return newBatchRunner(s, e, locker, cfg, obs, log)
}

func newBatchRunner(s store.Store, e evaluator, locker Locker, cfg BatchConfig, obs *observability.Observability, log logger.Logger) *BatchRunner {
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.LockKey == "" {
		cfg.LockKey = DefaultLockKey
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if locker == nil {
		locker = NewLocalLocker()
	}

	// one model call per Delay; the first goes out immediately
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}

	return &BatchRunner{
		store:     s,
		evaluator: e,
		limiter:   rate.NewLimiter(limit, 1),
		locker:    locker,
		cfg:       cfg,
		obs:       obs,
		logger:    logger.Component(log, "batch"),
	}
}

// EvaluateAllUnevaluated runs Evaluate over every application that has not
// been graded yet. A failing application is counted in Errors and the run
// moves on. Only the initial query or the lock can fail the whole run. The
// lock is refreshed before each application, so LockTTL bounds a single
// item rather than the whole run.
func (b *BatchRunner) EvaluateAllUnevaluated(ctx context.Context) (*Summary, error) {
	token := uuid.NewString()
	ok, err := b.locker.AcquireLock(ctx, b.cfg.LockKey, token, b.cfg.LockTTL)
	if err != nil {
		return nil, apperrors.NewStoreError("acquire batch lock", err)
	}
	if !ok {
		return nil, apperrors.NewBatchInProgressError()
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.locker.ReleaseLock(releaseCtx, b.cfg.LockKey, token); err != nil {
			b.logger.Warn("failed to release batch lock", map[string]interface{}{"error": err})
		}
	}()

	metrics.BatchRunsActive.Inc()
	defer metrics.BatchRunsActive.Dec()

	start := time.Now()
	pending, err := b.store.QueryWhere(ctx, "is_evaluated", false)
	if err != nil {
		b.obs.RecordBatchRun(ctx, time.Since(start), "failed", 0, 0, 0)
		b.logger.Error("failed to list unevaluated applications", map[string]interface{}{"error": err})
		return nil, err
	}

	summary := &Summary{Total: len(pending)}
	b.logger.Info("batch evaluation started", map[string]interface{}{"total": summary.Total})

	for i, app := range pending {
		if err := b.limiter.Wait(ctx); err != nil {
			summary.Errors++
			continue
		}

		// the TTL only has to cover one item; a lost lock ends the run
		held, err := b.locker.RefreshLock(ctx, b.cfg.LockKey, token, b.cfg.LockTTL)
		if err != nil {
			b.logger.Warn("failed to refresh batch lock", map[string]interface{}{"error": err})
		} else if !held {
			remaining := len(pending) - i
			summary.Errors += remaining
			b.logger.Error("batch lock lost, stopping run", map[string]interface{}{"remaining": remaining})
			break
		}

		result, err := b.evaluator.Evaluate(ctx, app.ID)
		if err != nil {
			summary.Errors++
			b.logger.Warn("application evaluation failed", map[string]interface{}{
				"applicationId": app.ID,
				"error":         err,
			})
			continue
		}
		summary.Evaluated++
		if result.ShouldReject {
			summary.Rejected++
		}
	}

	b.obs.RecordBatchRun(ctx, time.Since(start), "completed", summary.Evaluated, summary.Rejected, summary.Errors)
	b.logger.Info("batch evaluation finished", map[string]interface{}{
		"total":     summary.Total,
		"evaluated": summary.Evaluated,
		"rejected":  summary.Rejected,
		"errors":    summary.Errors,
		"duration":  time.Since(start).String(),
	})
	return summary, nil
}
