// Package leaselock implements expiring row leases in PostgreSQL. Workers in
// different processes use them to claim a paper before processing it; a
// lease that cannot be renewed cancels the holder's context.
package leaselock

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/OFFIS-RIT/litgraph/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrBusy = errors.New("lease busy")
	ErrLost = errors.New("lease lost")
)

const (
	defaultTTL          = 5 * time.Minute
	defaultWaitInterval = 250 * time.Millisecond
	renewAttempts       = 3
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Client struct {
	db dbConn
}

// Options tune one lease. Zero values pick the defaults: a five minute TTL
// renewed at half its length and no waiting for a busy key.
type Options struct {
	TTL        time.Duration
	RenewEvery time.Duration

	Wait         bool
	WaitInterval time.Duration
	WaitJitter   time.Duration

	// HolderPrefix identifies the process in the holder column.
	HolderPrefix string
}

func (o Options) withDefaults() Options {
	if o.TTL < time.Millisecond {
		o.TTL = defaultTTL
	}
	if o.RenewEvery <= 0 || o.RenewEvery >= o.TTL {
		o.RenewEvery = max(o.TTL/2, time.Millisecond)
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = defaultWaitInterval
	}
	if o.WaitJitter < 0 {
		o.WaitJitter = 0
	}
	return o
}

// Lease is a held key. Context is cancelled with ErrLost when renewal fails
// and with context.Canceled on release.
type Lease struct {
	Key    string
	Holder string

	Context context.Context

	client *Client
	cancel context.CancelCauseFunc

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func New(pool *pgxpool.Pool) *Client {
	return &Client{db: pool}
}

// NewWithConn wraps any pgx-compatible connection, e.g. a pgxmock pool.
func NewWithConn(db dbConn) *Client {
	return &Client{db: db}
}

// PaperKey is the lease key of a paper.
func PaperKey(paperID string) string {
	return "paper:" + paperID
}

// PaperLease adapts the client to the coordinator's per-paper hook. The
// returned context ends when the lease is lost or released.
func (c *Client) PaperLease(opts Options) func(ctx context.Context, paperID string) (context.Context, func(), error) {
	return func(ctx context.Context, paperID string) (context.Context, func(), error) {
		lease, err := c.Acquire(ctx, PaperKey(paperID), opts)
		if err != nil {
			return nil, nil, err
		}
		release := func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("[Lease] Release failed", "key", lease.Key, "err", err)
			}
		}
		return lease.Context, release, nil
	}
}

// WithLease runs fn while holding key.
func (c *Client) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	lease, err := c.Acquire(ctx, key, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = lease.Release(context.WithoutCancel(ctx))
	}()
	if err := fn(lease.Context); err != nil {
		return err
	}
	if cause := context.Cause(lease.Context); errors.Is(cause, ErrLost) {
		return cause
	}
	return nil
}

// Acquire takes key or returns ErrBusy. With Options.Wait it polls until
// the key frees up or ctx ends.
func (c *Client) Acquire(ctx context.Context, key string, opts Options) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease key is empty")
	}
	opts = opts.withDefaults()

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	holder := opts.HolderPrefix + id
	ttlMs := opts.TTL.Milliseconds()

	for {
		ok, err := c.tryAcquire(ctx, key, holder, ttlMs)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if !opts.Wait {
			return nil, ErrBusy
		}
		if err := sleepWithJitter(ctx, opts.WaitInterval, opts.WaitJitter); err != nil {
			return nil, err
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	l := &Lease{
		Key:     key,
		Holder:  holder,
		Context: leaseCtx,
		client:  c,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.renewLoop(opts.RenewEvery, ttlMs)
	return l, nil
}

func (c *Client) tryAcquire(ctx context.Context, key, holder string, ttlMs int64) (bool, error) {
	var got string
	err := c.db.QueryRow(ctx, tryAcquireSQL, key, holder, ttlMs).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return got != "", nil
}

// Release stops renewal and deletes the row if it is still held.
func (l *Lease) Release(ctx context.Context) error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.cancel(context.Canceled)
	})
	<-l.done

	_, err := l.client.db.Exec(ctx, releaseSQL, l.Key, l.Holder)
	return err
}

func (l *Lease) renewLoop(every time.Duration, ttlMs int64) {
	defer close(l.done)
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-l.Context.Done():
			return
		case <-t.C:
			if err := l.renewOnce(ttlMs); err != nil {
				logger.Warn("[Lease] Lost lease", "key", l.Key, "err", err)
				l.cancel(ErrLost)
				return
			}
		}
	}
}

func (l *Lease) renewOnce(ttlMs int64) error {
	var lastErr error
	for attempt := range renewAttempts {
		renewCtx, cancel := context.WithTimeout(l.Context, 15*time.Second)
		var got string
		err := l.client.db.QueryRow(renewCtx, renewSQL, l.Key, l.Holder, ttlMs).Scan(&got)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLost
		}
		lastErr = err
		if attempt < renewAttempts-1 {
			if err := sleepWithJitter(l.Context, 200*time.Millisecond, 0); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func sleepWithJitter(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter) + 1))
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const tryAcquireSQL = `
INSERT INTO paper_leases (lease_key, holder, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lease_key) DO UPDATE
SET holder     = EXCLUDED.holder,
    expires_at = EXCLUDED.expires_at
WHERE paper_leases.expires_at < now()
   OR paper_leases.holder = EXCLUDED.holder
RETURNING lease_key;
`

const renewSQL = `
UPDATE paper_leases
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lease_key = $1 AND holder = $2
RETURNING lease_key;
`

const releaseSQL = `
DELETE FROM paper_leases
WHERE lease_key = $1 AND holder = $2;
`
