// Package dbpool wraps pgxpool.Pool with health-check-on-acquire, connect
// retry with backoff, and pool stat accessors. No package-level pool:
// callers hold an explicit *Pool.
package dbpool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"stationsync/internal/config"
)

// PoolExhausted is returned by Acquire when no session became available
// before the timeout.
var PoolExhausted = errors.New("dbpool: pool exhausted")

// PoolClosed is returned by Acquire once Close has run.
var PoolClosed = errors.New("dbpool: pool closed")

// ConnectFailed wraps the terminal error from a failed connect-with-retry.
type ConnectFailed struct {
	Attempts int
	Err      error
}

func (e *ConnectFailed) Error() string {
	return fmt.Sprintf("dbpool: connect failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectFailed) Unwrap() error { return e.Err }

// Metrics is a point-in-time snapshot of pool counters.
type Metrics struct {
	Total          int32
	Active         int32
	Idle           int32
	Peak           int32
	TotalRequests  int64
	FailedRequests int64
	AvgWaitTimeMs  float64
}

// Pool is a bounded pgx connection pool with health checks on acquire and
// exponential-backoff connect retry.
type Pool struct {
	pg     *pgxpool.Pool
	logger zerolog.Logger
	cfg    config.DatabaseConfig

	closed atomic.Bool

	mu         sync.Mutex
	peak       int32
	totalReq   atomic.Int64
	failedReq  atomic.Int64
	avgWaitEMA float64 // exponential moving average, alpha=0.1
}

const emaAlpha = 0.1

// Connect builds a Pool, retrying the initial connection with exponential
// backoff (base_delay * multiplier^attempt, capped at max_delay).
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*Pool, error) {
	pgCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("dbpool: parse config: %w", err)
	}
	pgCfg.MinConns = int32(cfg.Min.Value)
	pgCfg.MaxConns = int32(cfg.Max.Value)
	pgCfg.MaxConnLifetime = time.Duration(cfg.MaxInactiveSeconds.Value) * time.Second
	pgCfg.MaxConnIdleTime = time.Duration(cfg.MaxInactiveSeconds.Value) * time.Second

	var lastErr error
	base := time.Duration(cfg.BaseDelayMs.Value) * time.Millisecond
	maxDelay := time.Duration(cfg.MaxDelayMs.Value) * time.Millisecond
	attempts := cfg.MaxRetries.Value
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		connectCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ConnectTimeoutMs.Value)*time.Millisecond)
		pg, err := pgxpool.NewWithConfig(connectCtx, pgCfg)
		cancel()
		if err == nil {
			if pingErr := pg.Ping(ctx); pingErr == nil {
				return &Pool{pg: pg, logger: logger.With().Str("component", "dbpool").Logger(), cfg: cfg}, nil
			} else {
				pg.Close()
				err = pingErr
			}
		}
		lastErr = err
		delay := time.Duration(float64(base) * math.Pow(cfg.BackoffMultiplier.Value, float64(attempt)))
		if delay > maxDelay {
			delay = maxDelay
		}
		logger.Warn().Err(err).Int("attempt", attempt+1).Dur("retry_in", delay).Msg("db connect retry")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, &ConnectFailed{Attempts: attempts, Err: lastErr}
}

// Session is a leased pgx connection. Release must always be called.
type Session struct {
	conn      *pgxpool.Conn
	acquired  time.Time
	unhealthy bool
}

// Conn exposes the underlying pgx connection for queries.
func (s *Session) Conn() *pgx.Conn { return s.conn.Conn() }

// MarkUnhealthy flags the session for discard instead of return-to-pool on
// Release.
func (s *Session) MarkUnhealthy() { s.unhealthy = true }

// Acquire leases a session, blocking up to timeout. It health-checks with
// SELECT 1 and discards+retries once on an unhealthy lease.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Session, error) {
	if p.closed.Load() {
		return nil, PoolClosed
	}
	start := time.Now()
	p.totalReq.Add(1)

	acquireCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var conn *pgxpool.Conn
	for attempt := 0; ; attempt++ {
		c, err := p.pg.Acquire(acquireCtx)
		if err != nil {
			p.failedReq.Add(1)
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, PoolExhausted
			}
			return nil, fmt.Errorf("dbpool: acquire: %w", err)
		}
		if _, err := c.Exec(ctx, "SELECT 1"); err != nil {
			// Close before Release so the pool destroys the connection.
			c.Conn().Close(ctx)
			c.Release()
			if attempt == 0 {
				continue
			}
			p.failedReq.Add(1)
			return nil, fmt.Errorf("dbpool: health check failed: %w", err)
		}
		conn = c
		break
	}

	stmtTimeout := time.Duration(p.cfg.StatementTimeoutMs.Value) * time.Millisecond
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = %d", stmtTimeout.Milliseconds())); err != nil {
		p.logger.Warn().Err(err).Msg("failed to set statement_timeout; continuing")
	}

	p.recordWait(time.Since(start))
	p.updatePeak()
	return &Session{conn: conn, acquired: time.Now()}, nil
}

// Release returns the session to the pool, or closes it if it aged past
// max_inactive_lifetime or was flagged unhealthy.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	maxAge := time.Duration(p.cfg.MaxInactiveSeconds.Value) * time.Second
	if s.unhealthy || time.Since(s.acquired) > maxAge {
		s.conn.Conn().Close(context.Background())
	}
	s.conn.Release()
}

// Close drains and closes all live sessions. Subsequent Acquire calls fail
// with PoolClosed.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.pg.Close()
}

func (p *Pool) recordWait(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ms := float64(d.Microseconds()) / 1000.0
	if p.avgWaitEMA == 0 {
		p.avgWaitEMA = ms
	} else {
		p.avgWaitEMA = emaAlpha*ms + (1-emaAlpha)*p.avgWaitEMA
	}
}

func (p *Pool) updatePeak() {
	stat := p.pg.Stat()
	active := stat.AcquiredConns()
	p.mu.Lock()
	if active > p.peak {
		p.peak = active
	}
	p.mu.Unlock()
}

// Stats returns the current pool metrics.
func (p *Pool) Stats() Metrics {
	stat := p.pg.Stat()
	p.mu.Lock()
	defer p.mu.Unlock()
	return Metrics{
		Total:          stat.TotalConns(),
		Active:         stat.AcquiredConns(),
		Idle:           stat.IdleConns(),
		Peak:           p.peak,
		TotalRequests:  p.totalReq.Load(),
		FailedRequests: p.failedReq.Load(),
		AvgWaitTimeMs:  p.avgWaitEMA,
	}
}

// Raw exposes the underlying pgxpool.Pool for components that need to pass
// it to driver-level helpers (CopyFrom, batching).
func (p *Pool) Raw() *pgxpool.Pool { return p.pg }
