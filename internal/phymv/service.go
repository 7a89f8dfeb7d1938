// Package phymv relocates replica bytes between storage resources and
// registers existing physical files as replicas, keeping the catalog
// pointed at a complete copy at every instant.
package phymv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/datagrid/phymv/internal/catalog"
	"github.com/datagrid/phymv/internal/catalogtx"
	"github.com/datagrid/phymv/internal/checksum"
	"github.com/datagrid/phymv/internal/fault"
	"github.com/datagrid/phymv/internal/locator"
	"github.com/datagrid/phymv/internal/logging/audit"
	"github.com/datagrid/phymv/internal/metrics"
	"github.com/datagrid/phymv/internal/policy"
	"github.com/datagrid/phymv/internal/resource"
	"github.com/datagrid/phymv/internal/status"
	"github.com/datagrid/phymv/internal/transfer"
	"github.com/datagrid/phymv/pkg/bytesize"
	"github.com/datagrid/phymv/pkg/proto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultParallelism    = 4
	defaultCleanupTimeout = 30 * time.Second
)

// Config contains everything the service needs. Nothing is read from the
// process environment.
type Config struct {
	Catalog    catalog.Catalog
	Resources  *resource.Registry
	Authorizer policy.Authorizer

	Stale       policy.StalePolicy // default for requests (default reject)
	AtomicMulti bool               // run all-replica batches all-or-nothing

	Scheme           checksum.Scheme
	BufferSize       int
	Parallelism      int // concurrent targets in a best-effort batch (default 4)
	DigestOnRegister bool
	VerifyReadback   bool

	MaxRetries     int
	RetryBackoff   time.Duration
	CleanupTimeout time.Duration // bound on rollback and cleanup after cancellation (default 30s)

	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Service runs relocations and registrations.
type Service struct {
	catalog   catalog.Catalog
	resources *resource.Registry
	locator   *locator.Locator
	engine    *transfer.Engine
	coord     *catalogtx.Coordinator
	guard     *policy.Guard
	audit     *audit.Logger
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	stale          policy.StalePolicy
	atomicMulti    bool
	parallelism    int
	cleanupTimeout time.Duration
}

// New creates a service.
func New(cfg Config) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Resources == nil {
		return nil, fmt.Errorf("resource registry is required")
	}
	if cfg.Authorizer == nil {
		cfg.Authorizer = policy.NewStaticAuthorizer(nil)
	}
	if cfg.Stale == "" {
		cfg.Stale = policy.StaleReject
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = defaultCleanupTimeout
	}

	return &Service{
		catalog:   cfg.Catalog,
		resources: cfg.Resources,
		locator:   locator.New(cfg.Catalog),
		engine: transfer.NewEngine(transfer.Config{
			Resources:        cfg.Resources,
			Scheme:           cfg.Scheme,
			BufferSize:       cfg.BufferSize,
			DigestOnRegister: cfg.DigestOnRegister,
			VerifyReadback:   cfg.VerifyReadback,
			CleanupTimeout:   cfg.CleanupTimeout,
			Logger:           cfg.Logger,
		}),
		coord: catalogtx.New(catalogtx.Config{
			Catalog:    cfg.Catalog,
			MaxRetries: cfg.MaxRetries,
			Backoff:    cfg.RetryBackoff,
			Metrics:    cfg.Metrics,
			Logger:     cfg.Logger,
		}),
		guard:          policy.NewGuard(cfg.Authorizer, cfg.Logger),
		audit:          audit.NewLogger(cfg.Logger.With().Str("component", "audit").Logger()),
		metrics:        cfg.Metrics,
		logger:         cfg.Logger.With().Str("component", "phymv").Logger(),
		stale:          cfg.Stale,
		atomicMulti:    cfg.AtomicMulti,
		parallelism:    cfg.Parallelism,
		cleanupTimeout: cfg.CleanupTimeout,
	}, nil
}

// cleanupContext outlives a cancelled caller so rollback can still run.
func (s *Service) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cleanupTimeout)
}

// target is one replica being relocated.
type target struct {
	replica catalog.Replica
	start   time.Time

	lease     *catalogtx.Lease
	newLoc    catalog.Location
	committed *catalog.Replica
	stuck     bool // lock could not be released; catalog state unknown
}

func (t *target) fail(dest string, err error) status.Outcome {
	o := status.Failed(t.replica.ReplNum, t.replica.Resource, dest, time.Since(t.start), err)
	o.Reconcile = t.stuck
	return o
}

// Relocate moves the selected replica, or every replica, of an object to
// the destination resource. The returned error covers request-level
// failures only; per-replica failures are reported in the result.
func (s *Service) Relocate(ctx context.Context, req proto.RelocationRequest, caller string) (*status.AggregateResult, error) {
	start := time.Now()
	res, err := s.relocate(ctx, req, caller)

	result := metrics.ResultFailure
	switch {
	case err != nil:
	case res.State == status.StateReconcile:
		result = metrics.ResultReconcile
	case res.OverallSuccess:
		result = metrics.ResultSuccess
	case res.State == status.StatePartial:
		result = metrics.ResultPartial
	}
	s.metrics.RecordOperation("relocate", result, time.Since(start))

	if err != nil {
		s.logger.Debug().Err(err).Str("object", req.ObjectPath).Msg("Relocation rejected")
	}
	return res, err
}

func (s *Service) relocate(ctx context.Context, req proto.RelocationRequest, caller string) (*status.AggregateResult, error) {
	const op = "relocate"
	if err := req.Validate(); err != nil {
		return nil, fault.Wrap(fault.InvalidRequest, op, err)
	}
	if err := catalog.ValidateObjectPath(req.ObjectPath); err != nil {
		return nil, fault.Wrap(fault.InvalidRequest, op, err)
	}

	obj, err := s.catalog.Object(ctx, req.ObjectPath)
	if err != nil {
		return nil, catalog.Fault(op, err)
	}
	decision, err := s.guard.Authorize(ctx, op, req.ObjectPath, policy.Policy{
		AdminOverride: req.AdminOverride,
		AllReplicas:   req.AllReplicas,
		Atomic:        s.atomicMulti,
		Stale:         s.stale,
	}, caller, obj)
	if err != nil {
		return nil, err
	}
	if _, err := s.resources.Get(req.DestResource); err != nil {
		return nil, fault.Wrap(fault.NotFound, op, err)
	}

	targets, err := s.targets(ctx, req, decision)
	if err != nil {
		return nil, err
	}

	tracker := status.NewTracker()
	switch decision.Mode {
	case policy.BestEffort:
		s.runBestEffort(ctx, targets, req.DestResource, decision, caller, tracker)
	default:
		s.runAllOrNothing(ctx, targets, req.DestResource, decision, caller, tracker)
	}

	res := tracker.Summarize(decision.Mode)
	s.logger.Info().
		Str("object", req.ObjectPath).
		Str("dest", req.DestResource).
		Str("mode", decision.Mode.String()).
		Str("state", string(res.State)).
		Bool("success", res.OverallSuccess).
		Int("targets", len(res.Outcomes)).
		Str("bytes", bytesize.Format(res.BytesTransferred())).
		Msg("Relocation finished")
	return &res, nil
}

// targets resolves the replicas a request acts on.
func (s *Service) targets(ctx context.Context, req proto.RelocationRequest, d policy.Decision) ([]*target, error) {
	now := time.Now()
	if !req.AllReplicas {
		sel := locator.Selector{ReplNum: req.ReplicaNumber, Resource: req.SourceResource}
		r, err := s.locator.Locate(ctx, req.ObjectPath, sel, d.AllowStale)
		if err != nil {
			return nil, err
		}
		if r.Resource == req.DestResource {
			return nil, fault.New(fault.InvalidRequest, "relocate",
				"%s is already on %s", r.String(), req.DestResource)
		}
		return []*target{{replica: *r, start: now}}, nil
	}

	all, err := s.locator.LocateAll(ctx, req.ObjectPath, d.AllowStale)
	if err != nil {
		return nil, err
	}
	var out []*target
	for _, r := range all {
		if r.Resource == req.DestResource {
			continue
		}
		out = append(out, &target{replica: r, start: now})
	}
	if len(out) == 0 {
		return nil, fault.New(fault.InvalidRequest, "relocate",
			"every replica of %s is already on %s", req.ObjectPath, req.DestResource)
	}
	return out, nil
}

// resolver re-reads a chosen replica by number for each lock attempt.
func (s *Service) resolver(objectPath string, replNum int, allowStale bool) catalogtx.Resolver {
	return func(ctx context.Context) (*catalog.Replica, error) {
		return s.locator.Locate(ctx, objectPath, locator.ByNumber(replNum), allowStale)
	}
}

// prepare locks t and copies its bytes to dest. On failure nothing is left
// on dest and the lock is released; if the release itself fails t is marked
// stuck.
func (s *Service) prepare(ctx context.Context, t *target, dest string, d policy.Decision) error {
	lease, err := s.coord.Lock(ctx, s.resolver(t.replica.ObjectPath, t.replica.ReplNum, d.AllowStale))
	if err != nil {
		return err
	}
	t.lease = lease

	loc, err := s.engine.Move(ctx, lease.Original, dest)
	if err == nil && ctx.Err() != nil {
		// Cancelled after the copy finished: undo it like any failure.
		s.discard(ctx, loc)
		err = fault.Wrap(fault.TransferFailed, "relocate", ctx.Err())
	}
	if err != nil {
		if rerr := s.rollback(ctx, t); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	t.newLoc = loc
	return nil
}

// commit repoints the catalog at the copied bytes.
func (s *Service) commit(ctx context.Context, t *target) error {
	cctx, cancel := s.cleanupContext(ctx)
	defer cancel()

	committed, err := s.coord.CommitRelocation(cctx, t.lease, t.newLoc)
	if err != nil {
		return err
	}
	t.committed = committed
	return nil
}

// rollback restores t's original record, surviving caller cancellation.
func (s *Service) rollback(ctx context.Context, t *target) error {
	cctx, cancel := s.cleanupContext(ctx)
	defer cancel()
	if err := s.coord.Rollback(cctx, t.lease); err != nil {
		t.stuck = true
		s.logger.Error().Err(err).
			Str("replica", t.replica.String()).
			Msg("Rollback failed, replica needs reconciliation")
		return err
	}
	return nil
}

// discard removes bytes the catalog does not reference.
func (s *Service) discard(ctx context.Context, loc catalog.Location) {
	cctx, cancel := s.cleanupContext(ctx)
	defer cancel()
	if err := s.engine.Retire(cctx, loc); err != nil {
		s.logger.Warn().Err(err).
			Str("resource", loc.Resource).
			Str("path", loc.PhysicalPath).
			Msg("Failed to remove uncataloged bytes")
	}
}

// retire removes the replaced source bytes after commit. A failure leaves
// orphaned bytes behind but the catalog is already consistent.
func (s *Service) retire(ctx context.Context, t *target) string {
	cctx, cancel := s.cleanupContext(ctx)
	defer cancel()
	if err := s.engine.Retire(cctx, t.lease.Original.Location()); err != nil {
		s.logger.Warn().Err(err).
			Str("replica", t.replica.String()).
			Str("path", t.lease.Original.PhysicalPath).
			Msg("Failed to remove replaced bytes")
		return "old bytes not removed: " + err.Error()
	}
	return ""
}

func (s *Service) succeeded(t *target, dest, detail string) status.Outcome {
	s.metrics.AddBytes(t.newLoc.Size)
	return status.Outcome{
		ReplNum:          t.replica.ReplNum,
		SourceResource:   t.replica.Resource,
		DestResource:     dest,
		BytesTransferred: t.newLoc.Size,
		Elapsed:          time.Since(t.start),
		Success:          true,
		Committed:        true,
		Detail:           detail,
	}
}

// reconcileOutcome reports a replica whose catalog state is unknown. Both
// copies are left in place for the operator.
func (s *Service) reconcileOutcome(t *target, dest string, err error) status.Outcome {
	t.stuck = true
	o := t.fail(dest, err)
	s.logger.Error().Err(err).
		Str("replica", t.replica.String()).
		Str("old_path", t.replica.PhysicalPath).
		Str("new_resource", t.newLoc.Resource).
		Str("new_path", t.newLoc.PhysicalPath).
		Msg("Catalog unreachable after transfer, reconciliation required")
	return o
}

// relocateOne runs the full cycle for one target: lock, move, commit, then
// retire the old bytes.
func (s *Service) relocateOne(ctx context.Context, t *target, dest string, d policy.Decision) status.Outcome {
	t.start = time.Now()
	if err := s.prepare(ctx, t, dest, d); err != nil {
		return t.fail(dest, err)
	}
	if err := s.commit(ctx, t); err != nil {
		return s.abandon(ctx, t, dest, err)
	}
	return s.succeeded(t, dest, s.retire(ctx, t))
}

// abandon handles a failed commit of a prepared target.
func (s *Service) abandon(ctx context.Context, t *target, dest string, err error) status.Outcome {
	if fault.Is(err, fault.CatalogUnavailable) {
		return s.reconcileOutcome(t, dest, err)
	}
	rerr := s.rollback(ctx, t)
	s.discard(ctx, t.newLoc)
	if rerr != nil {
		return s.reconcileOutcome(t, dest, errors.Join(err, rerr))
	}
	return t.fail(dest, err)
}

func (s *Service) runBestEffort(ctx context.Context, targets []*target, dest string, d policy.Decision, caller string, tracker *status.Tracker) {
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for _, t := range targets {
		g.Go(func() error {
			o := s.relocateOne(ctx, t, dest, d)
			s.auditOutcome(caller, t, o)
			tracker.Record(o)
			return nil
		})
	}
	_ = g.Wait()
}

// runAllOrNothing copies every target before committing any, commits them
// all, and only then retires old bytes. Any failure undoes the whole batch.
func (s *Service) runAllOrNothing(ctx context.Context, targets []*target, dest string, d policy.Decision, caller string, tracker *status.Tracker) {
	record := func(t *target, o status.Outcome) {
		s.auditOutcome(caller, t, o)
		tracker.Record(o)
	}

	// Phase 1: lock and copy.
	for i, t := range targets {
		t.start = time.Now()
		if err := s.prepare(ctx, t, dest, d); err != nil {
			record(t, t.fail(dest, err))
			reason := fmt.Sprintf("replica %d failed", t.replica.ReplNum)
			s.abortPrepared(ctx, targets[:i], dest, err, "rolled back: "+reason, record)
			for _, rest := range targets[i+1:] {
				record(rest, rest.fail(dest, fault.New(fault.KindOf(err), "relocate", "not attempted: %s", reason)))
			}
			return
		}
	}

	if err := ctx.Err(); err != nil {
		s.abortPrepared(ctx, targets, dest, fault.Wrap(fault.TransferFailed, "relocate", err), "rolled back: cancelled", record)
		return
	}

	// Phase 2: commit.
	for i, t := range targets {
		if err := s.commit(ctx, t); err != nil {
			record(t, s.abandon(ctx, t, dest, err))
			reason := fmt.Sprintf("replica %d failed to commit", t.replica.ReplNum)
			s.revertCommitted(ctx, targets[:i], dest, err, "reverted: "+reason, record)
			s.abortPrepared(ctx, targets[i+1:], dest, err, "rolled back: "+reason, record)
			return
		}
	}

	// Phase 3: retire.
	for _, t := range targets {
		record(t, s.succeeded(t, dest, s.retire(ctx, t)))
	}
}

// abortPrepared rolls back targets that were locked and copied but not
// committed, and removes their copies.
func (s *Service) abortPrepared(ctx context.Context, prepared []*target, dest string, cause error, reason string, record func(*target, status.Outcome)) {
	for _, t := range prepared {
		rerr := s.rollback(ctx, t)
		s.discard(ctx, t.newLoc)
		if rerr != nil {
			record(t, s.reconcileOutcome(t, dest, rerr))
			continue
		}
		record(t, t.fail(dest, fault.New(fault.KindOf(cause), "relocate", "%s", reason)))
	}
}

// revertCommitted restores the original records of targets committed
// before a later commit failed, then removes their new bytes.
func (s *Service) revertCommitted(ctx context.Context, committed []*target, dest string, cause error, reason string, record func(*target, status.Outcome)) {
	for _, t := range committed {
		cctx, cancel := s.cleanupContext(ctx)
		err := s.coord.Revert(cctx, *t.committed, t.lease.Original)
		cancel()
		if err != nil {
			// The catalog may still reference the new bytes; keep both copies.
			record(t, s.reconcileOutcome(t, dest, err))
			continue
		}
		s.discard(ctx, t.newLoc)
		record(t, t.fail(dest, fault.New(fault.KindOf(cause), "relocate", "%s", reason)))
	}
}

func (s *Service) auditOutcome(caller string, t *target, o status.Outcome) {
	result, details := audit.ResultSuccess, o.Detail
	if !o.Success {
		result = audit.ResultFailure
		details = string(o.ErrorKind) + ": " + o.Detail
	}
	s.audit.LogRelocation(caller, t.replica.ObjectPath, t.replica.ReplNum, o.SourceResource, o.DestResource, result, details)
}

// Register binds an existing physical file to an object as a new replica.
// The object is created, owned by caller, when it does not exist.
func (s *Service) Register(ctx context.Context, req proto.RegistrationRequest, caller string) (*catalog.Replica, error) {
	start := time.Now()
	r, err := s.register(ctx, req, caller)

	result := metrics.ResultSuccess
	replNum := -1
	details := ""
	if err != nil {
		result = metrics.ResultFailure
		details = err.Error()
	} else {
		replNum = r.ReplNum
	}
	s.metrics.RecordOperation("register", result, time.Since(start))
	s.audit.LogRegistration(caller, req.ObjectPath, req.DestResource, req.PhysicalPath, replNum, result, details)
	return r, err
}

func (s *Service) register(ctx context.Context, req proto.RegistrationRequest, caller string) (*catalog.Replica, error) {
	const op = "register"
	if err := req.Validate(); err != nil {
		return nil, fault.Wrap(fault.InvalidRequest, op, err)
	}
	if err := catalog.ValidateObjectPath(req.ObjectPath); err != nil {
		return nil, fault.Wrap(fault.InvalidRequest, op, err)
	}

	obj, err := s.catalog.Object(ctx, req.ObjectPath)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		obj = nil
	case err != nil:
		return nil, catalog.Fault(op, err)
	}

	if _, err := s.guard.Authorize(ctx, op, req.ObjectPath, policy.Policy{AdminOverride: req.AdminOverride}, caller, obj); err != nil {
		return nil, err
	}

	var existing []catalog.Replica
	if obj != nil {
		existing, err = s.catalog.Replicas(ctx, req.ObjectPath)
		if err != nil {
			return nil, catalog.Fault(op, err)
		}
		for _, r := range existing {
			if r.Resource == req.DestResource && r.PhysicalPath == req.PhysicalPath {
				return nil, fault.New(fault.InvalidRequest, op,
					"%s is already registered as %s", req.PhysicalPath, r.String())
			}
		}
	}

	loc, err := s.engine.RegisterExisting(ctx, req.PhysicalPath, req.DestResource, transfer.Hints{
		Size:   req.SizeHint,
		Digest: req.DigestHint,
	})
	if err != nil {
		return nil, err
	}

	owner := caller
	if obj != nil {
		owner = obj.Owner
	}
	r, err := s.coord.CommitRegistration(ctx, req.ObjectPath, owner, loc, registrationStatus(existing, loc))
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("replica", r.String()).
		Str("path", r.PhysicalPath).
		Str("status", string(r.Status)).
		Msg("Physical path registered")
	return r, nil
}

// registrationStatus decides the status of a newly registered replica: it
// is current when no current replica exists or its digest matches the
// current one, and stale otherwise.
func registrationStatus(existing []catalog.Replica, loc catalog.Location) catalog.Status {
	var current *catalog.Replica
	for i := range existing {
		if existing[i].Readable() {
			current = &existing[i]
			break
		}
	}
	if current == nil {
		return catalog.StatusCurrent
	}
	if loc.Digest != "" && current.Digest != "" && checksum.Equal(loc.Digest, current.Digest) {
		return catalog.StatusCurrent
	}
	return catalog.StatusStale
}

// Unregister removes a replica's catalog entry and returns the removed
// record. The physical bytes stay where they are. The replica is locked
// first, so a replica held by another operation fails with Conflict.
func (s *Service) Unregister(ctx context.Context, req proto.UnregistrationRequest, caller string) (*catalog.Replica, error) {
	start := time.Now()
	r, err := s.unregister(ctx, req, caller)

	result := metrics.ResultSuccess
	replNum := -1
	if req.ReplicaNumber != nil {
		replNum = *req.ReplicaNumber
	}
	var resource, physicalPath, details string
	if err != nil {
		result = metrics.ResultFailure
		details = err.Error()
	} else {
		resource, physicalPath = r.Resource, r.PhysicalPath
	}
	s.metrics.RecordOperation("unregister", result, time.Since(start))
	s.audit.LogUnregistration(caller, req.ObjectPath, replNum, resource, physicalPath, result, details)
	return r, err
}

func (s *Service) unregister(ctx context.Context, req proto.UnregistrationRequest, caller string) (*catalog.Replica, error) {
	const op = "unregister"
	if err := req.Validate(); err != nil {
		return nil, fault.Wrap(fault.InvalidRequest, op, err)
	}
	if err := catalog.ValidateObjectPath(req.ObjectPath); err != nil {
		return nil, fault.Wrap(fault.InvalidRequest, op, err)
	}

	obj, err := s.catalog.Object(ctx, req.ObjectPath)
	if err != nil {
		return nil, catalog.Fault(op, err)
	}
	if _, err := s.guard.Authorize(ctx, op, req.ObjectPath, policy.Policy{AdminOverride: req.AdminOverride}, caller, obj); err != nil {
		return nil, err
	}

	replicas, err := s.catalog.Replicas(ctx, req.ObjectPath)
	if err != nil {
		return nil, catalog.Fault(op, err)
	}
	if err := lastReadable(replicas, *req.ReplicaNumber); err != nil {
		return nil, fault.Wrap(fault.InvalidRequest, op, err)
	}

	lease, err := s.coord.Lock(ctx, s.resolver(req.ObjectPath, *req.ReplicaNumber, true))
	if err != nil {
		return nil, err
	}

	cctx, cancel := s.cleanupContext(ctx)
	defer cancel()
	if err := s.coord.CommitUnregistration(cctx, lease); err != nil {
		if rerr := s.coord.Rollback(cctx, lease); rerr != nil {
			s.logger.Error().Err(rerr).
				Str("replica", lease.Original.String()).
				Msg("Rollback failed, replica needs reconciliation")
		}
		return nil, err
	}

	removed := lease.Original
	s.logger.Info().
		Str("replica", removed.String()).
		Str("resource", removed.Resource).
		Str("path", removed.PhysicalPath).
		Msg("Replica unregistered")
	return &removed, nil
}

// lastReadable refuses to drop the only readable replica while stale
// replicas remain, since none of them could serve reads afterwards.
func lastReadable(replicas []catalog.Replica, replNum int) error {
	var target *catalog.Replica
	readable := 0
	for i := range replicas {
		if replicas[i].ReplNum == replNum {
			target = &replicas[i]
		}
		if replicas[i].Readable() {
			readable++
		}
	}
	if target == nil || !target.Readable() || len(replicas) == 1 || readable > 1 {
		return nil
	}
	return fmt.Errorf("%s is the last current replica; unregister the stale replicas first", target.String())
}

// Resolve returns the replica an ordinary read of objectPath would use: the
// lowest-numbered current replica. A replica held by a relocation still
// resolves to its old location until commit.
func (s *Service) Resolve(ctx context.Context, objectPath string) (*catalog.Replica, error) {
	replicas, err := s.List(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	for i := range replicas {
		if replicas[i].Readable() {
			return &replicas[i], nil
		}
	}
	return nil, fault.New(fault.NotFound, "resolve", "%s has no current replica", objectPath)
}

// List returns every replica of objectPath.
func (s *Service) List(ctx context.Context, objectPath string) ([]catalog.Replica, error) {
	if err := catalog.ValidateObjectPath(objectPath); err != nil {
		return nil, fault.Wrap(fault.InvalidRequest, "list", err)
	}
	replicas, err := s.catalog.Replicas(ctx, objectPath)
	if err != nil {
		return nil, catalog.Fault("list "+objectPath, err)
	}
	return replicas, nil
}

// Objects lists object paths under prefix.
func (s *Service) Objects(ctx context.Context, prefix string) ([]string, error) {
	paths, err := s.catalog.Objects(ctx, prefix)
	if err != nil {
		return nil, catalog.Fault("list objects", err)
	}
	return paths, nil
}
