// Package catalogtx performs the catalog mutations of a relocation or a
// registration. The intermediate replica status, written with a
// compare-and-swap, is the single-writer lock shared by every process using
// the same catalog.
package catalogtx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/datagrid/phymv/internal/catalog"
	"github.com/datagrid/phymv/internal/fault"
	"github.com/datagrid/phymv/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultMaxRetries = 3
	defaultBackoff    = 20 * time.Millisecond
)

// Config contains configuration for the coordinator.
type Config struct {
	Catalog    catalog.Catalog
	MaxRetries int           // retries after a lost compare-and-swap (default 3)
	Backoff    time.Duration // linear backoff step between retries (default 20ms)
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// Coordinator applies catalog transactions with bounded retries.
type Coordinator struct {
	catalog    catalog.Catalog
	maxRetries int
	backoff    time.Duration
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// New creates a coordinator.
func New(cfg Config) *Coordinator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &Coordinator{
		catalog:    cfg.Catalog,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With().Str("component", "catalogtx").Logger(),
	}
}

// Lease is a replica held in intermediate state by this process.
type Lease struct {
	Original catalog.Replica // record as it was before the lock
	Held     catalog.Replica // record as written by the lock

	released bool
}

// Token returns the lock token identifying the holder.
func (l *Lease) Token() string { return l.Held.LockToken }

func (c *Coordinator) release(lease *Lease) {
	if !lease.released {
		lease.released = true
		c.metrics.LockReleased()
	}
}

// Resolver re-reads the replica to lock. It runs again on every retry so a
// lost race is judged against fresh catalog state.
type Resolver func(ctx context.Context) (*catalog.Replica, error)

func retryable(err error) bool {
	return errors.Is(err, catalog.ErrVersionMismatch) || errors.Is(err, catalog.ErrTxConflict)
}

// wait sleeps before retry attempt n, or returns early when ctx is done.
func (c *Coordinator) wait(ctx context.Context, attempt int) error {
	c.metrics.CatalogRetry()
	t := time.NewTimer(time.Duration(attempt+1) * c.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Lock marks the replica returned by resolve as intermediate. Errors from
// resolve are returned unchanged, so a replica that is already in flight
// fails fast with Conflict.
func (c *Coordinator) Lock(ctx context.Context, resolve Resolver) (*Lease, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt-1); err != nil {
				return nil, fault.Wrap(fault.Conflict, "lock replica", err)
			}
		}

		r, err := resolve(ctx)
		if err != nil {
			return nil, err
		}

		held := *r
		held.Status = catalog.StatusIntermediate
		held.LockToken = uuid.NewString()
		held.HeldStatus = r.Status
		held.Version = r.Version + 1
		held.ModifiedAt = time.Now().UTC()

		err = c.catalog.WriteReplica(ctx, r.Version, held)
		if err == nil {
			c.metrics.LockAcquired()
			c.logger.Debug().
				Str("replica", r.String()).
				Str("token", held.LockToken).
				Msg("Replica locked")
			return &Lease{Original: *r, Held: held}, nil
		}
		if !retryable(err) {
			return nil, catalog.Fault("lock "+r.String(), err)
		}
		lastErr = err
		c.logger.Debug().Err(err).Str("replica", r.String()).Int("attempt", attempt).Msg("Lock lost race, retrying")
	}
	return nil, fault.Wrap(fault.Conflict, "lock replica",
		fmt.Errorf("gave up after %d retries: %w", c.maxRetries, lastErr))
}

// CommitRelocation repoints the leased replica at loc and releases the lock
// in one write. The replica keeps the status it had before the lock.
func (c *Coordinator) CommitRelocation(ctx context.Context, lease *Lease, loc catalog.Location) (*catalog.Replica, error) {
	next := lease.Held
	next.Resource = loc.Resource
	next.PhysicalPath = loc.PhysicalPath
	next.Size = loc.Size
	next.Digest = loc.Digest
	next.Status = lease.Original.Status
	next.LockToken = ""
	next.HeldStatus = ""
	next.Version = lease.Held.Version + 1
	next.ModifiedAt = time.Now().UTC()

	if err := c.write(ctx, "commit relocation", lease.Held, next); err != nil {
		return nil, err
	}
	c.release(lease)
	c.logger.Debug().
		Str("replica", next.String()).
		Str("from", lease.Original.Resource).
		Msg("Relocation committed")
	return &next, nil
}

// Rollback restores the leased replica to its original record, including
// its version. Calling it again after it succeeded is a no-op.
func (c *Coordinator) Rollback(ctx context.Context, lease *Lease) error {
	if err := c.write(ctx, "roll back", lease.Held, lease.Original); err != nil {
		return err
	}
	c.release(lease)
	return nil
}

// Revert undoes a committed relocation, restoring the original record
// exactly. It fails with Conflict when the replica changed since commit.
func (c *Coordinator) Revert(ctx context.Context, committed catalog.Replica, original catalog.Replica) error {
	return c.write(ctx, "revert relocation", committed, original)
}

// write replaces expected with next. Backend transaction conflicts are
// retried; a version mismatch is only accepted when next is already stored,
// which happens when an earlier attempt landed but reported an error.
func (c *Coordinator) write(ctx context.Context, op string, expected, next catalog.Replica) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt-1); err != nil {
				return fault.Wrap(fault.Conflict, op, err)
			}
		}

		err := c.catalog.WriteReplica(ctx, expected.Version, next)
		if err == nil {
			return nil
		}
		switch {
		case errors.Is(err, catalog.ErrVersionMismatch):
			cur, rerr := c.catalog.ReadReplica(ctx, next.ObjectPath, next.ReplNum)
			if rerr != nil {
				return catalog.Fault(op, rerr)
			}
			if sameRecord(cur, &next) {
				return nil
			}
			return fault.Wrap(fault.Conflict, op,
				fmt.Errorf("%s changed underneath the lock (version %d, token %q): %w",
					next.String(), cur.Version, cur.LockToken, err))
		case errors.Is(err, catalog.ErrTxConflict):
			lastErr = err
			continue
		default:
			return catalog.Fault(op, err)
		}
	}
	return fault.Wrap(fault.Conflict, op, fmt.Errorf("gave up after %d retries: %w", c.maxRetries, lastErr))
}

func sameRecord(a, b *catalog.Replica) bool {
	return a.Version == b.Version &&
		a.LockToken == b.LockToken &&
		a.Status == b.Status &&
		a.Resource == b.Resource &&
		a.PhysicalPath == b.PhysicalPath &&
		a.Digest == b.Digest &&
		a.Size == b.Size
}

// CommitUnregistration removes the leased replica's row. The lock is what
// keeps anyone else from rewriting the row in between, so a missing row
// means an earlier attempt already landed.
func (c *Coordinator) CommitUnregistration(ctx context.Context, lease *Lease) error {
	const op = "commit unregistration"
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt-1); err != nil {
				return fault.Wrap(fault.Conflict, op, err)
			}
		}

		err := c.catalog.DeleteReplica(ctx, lease.Held.ObjectPath, lease.Held.ReplNum)
		if err == nil || errors.Is(err, catalog.ErrNotFound) {
			c.release(lease)
			c.logger.Debug().
				Str("replica", lease.Original.String()).
				Str("path", lease.Original.PhysicalPath).
				Msg("Unregistration committed")
			return nil
		}
		if !errors.Is(err, catalog.ErrTxConflict) {
			return catalog.Fault(op, err)
		}
		lastErr = err
	}
	return fault.Wrap(fault.Conflict, op, fmt.Errorf("gave up after %d retries: %w", c.maxRetries, lastErr))
}

// CommitRegistration inserts a new replica bound to loc. The catalog assigns
// the replica number and identifiers; the stored record is returned.
func (c *Coordinator) CommitRegistration(ctx context.Context, objectPath, owner string, loc catalog.Location, status catalog.Status) (*catalog.Replica, error) {
	const op = "commit registration"
	r := catalog.Replica{
		ObjectPath:   objectPath,
		Resource:     loc.Resource,
		PhysicalPath: loc.PhysicalPath,
		Size:         loc.Size,
		Digest:       loc.Digest,
		Status:       status,
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt-1); err != nil {
				return nil, fault.Wrap(fault.Conflict, op, err)
			}
		}

		stored, err := c.catalog.InsertReplica(ctx, owner, r)
		if err == nil {
			c.logger.Debug().
				Str("replica", stored.String()).
				Str("data_id", stored.DataID).
				Msg("Registration committed")
			return stored, nil
		}
		if !retryable(err) {
			return nil, catalog.Fault(op, err)
		}
		lastErr = err
	}
	return nil, fault.Wrap(fault.Conflict, op, fmt.Errorf("gave up after %d retries: %w", c.maxRetries, lastErr))
}
