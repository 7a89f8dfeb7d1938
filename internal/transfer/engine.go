// Package transfer moves replica bytes between storage resources and
// verifies pre-existing files for registration.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/datagrid/phymv/internal/catalog"
	"github.com/datagrid/phymv/internal/checksum"
	"github.com/datagrid/phymv/internal/fault"
	"github.com/datagrid/phymv/internal/resource"
	"github.com/rs/zerolog"
)

const (
	defaultBufferSize     = 4 * 1024 * 1024
	defaultCleanupTimeout = 30 * time.Second
	maxAllocateAttempts   = 3
)

// Config contains configuration for the transfer engine.
type Config struct {
	Resources        *resource.Registry
	Scheme           checksum.Scheme // digest scheme for replicas that have none recorded
	BufferSize       int             // copy buffer size (default 4MiB)
	DigestOnRegister bool            // compute a digest for registrations without a digest hint
	VerifyReadback   bool            // re-read the destination after commit and compare digests
	CleanupTimeout   time.Duration   // bound on removing bytes after a late failure (default 30s)
	Logger           zerolog.Logger
}

// Engine streams bytes from a source replica to a destination resource.
type Engine struct {
	resources        *resource.Registry
	scheme           checksum.Scheme
	bufferSize       int
	digestOnRegister bool
	verifyReadback   bool
	cleanupTimeout   time.Duration
	logger           zerolog.Logger
}

// NewEngine creates a transfer engine.
func NewEngine(cfg Config) *Engine {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Scheme == "" {
		cfg.Scheme = checksum.DefaultScheme
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = defaultCleanupTimeout
	}
	return &Engine{
		resources:        cfg.Resources,
		scheme:           cfg.Scheme,
		bufferSize:       cfg.BufferSize,
		digestOnRegister: cfg.DigestOnRegister,
		verifyReadback:   cfg.VerifyReadback,
		cleanupTimeout:   cfg.CleanupTimeout,
		logger:           cfg.Logger.With().Str("component", "transfer").Logger(),
	}
}

// Hints are optional caller-supplied facts about a file being registered.
type Hints struct {
	Size   *int64
	Digest string
}

// resolve looks up a resource by name.
func (e *Engine) resolve(op, name string) (resource.Resource, error) {
	res, err := e.resources.Get(name)
	if err != nil {
		return nil, fault.Wrap(fault.NotFound, op, err)
	}
	return res, nil
}

// schemeFor picks the scheme to verify against: the one the source digest
// was recorded with, or the engine default.
func (e *Engine) schemeFor(recorded string) checksum.Scheme {
	if recorded == "" {
		return e.scheme
	}
	if s, err := checksum.SchemeOf(recorded); err == nil {
		return s
	}
	return e.scheme
}

// Move copies src's bytes to a newly allocated path on destResource and
// returns the new location. The source bytes are never touched. On any
// failure the destination is left without partial bytes.
func (e *Engine) Move(ctx context.Context, src catalog.Replica, destResource string) (catalog.Location, error) {
	const op = "move replica"
	start := time.Now()

	srcRes, err := e.resolve(op, src.Resource)
	if err != nil {
		return catalog.Location{}, err
	}
	dstRes, err := e.resolve(op, destResource)
	if err != nil {
		return catalog.Location{}, err
	}

	in, err := srcRes.Open(ctx, src.PhysicalPath)
	if err != nil {
		return catalog.Location{}, fault.Wrap(fault.TransferFailed, "open source", err)
	}
	defer func() { _ = in.Close() }()

	destPath, out, err := e.create(ctx, dstRes, src)
	if err != nil {
		return catalog.Location{}, err
	}

	hasher := checksum.NewHasher(e.schemeFor(src.Digest))
	buf := make([]byte, e.bufferSize)
	n, err := io.CopyBuffer(io.MultiWriter(out, hasher), &ctxReader{ctx: ctx, r: in}, buf)
	if err != nil {
		_ = out.Abort()
		return catalog.Location{}, fault.Wrap(fault.TransferFailed, "copy", err)
	}

	digest := hasher.Digest()
	if n != src.Size {
		_ = out.Abort()
		return catalog.Location{}, fault.New(fault.CorruptionDetected, op,
			"%s: copied %d bytes, catalog records %d", src.String(), n, src.Size)
	}
	if src.Digest != "" && !checksum.Equal(src.Digest, digest) {
		_ = out.Abort()
		return catalog.Location{}, fault.New(fault.CorruptionDetected, op,
			"%s: digest %s does not match recorded %s", src.String(), digest, src.Digest)
	}

	if err := out.Commit(); err != nil {
		_ = out.Abort()
		return catalog.Location{}, fault.Wrap(fault.TransferFailed, "commit destination", err)
	}

	loc := catalog.Location{
		Resource:     dstRes.Name(),
		PhysicalPath: destPath,
		Size:         n,
		Digest:       digest,
	}

	if err := ctx.Err(); err != nil {
		e.discard(ctx, dstRes, destPath)
		return catalog.Location{}, fault.Wrap(fault.TransferFailed, "copy", err)
	}

	if e.verifyReadback {
		if err := e.readback(ctx, dstRes, loc); err != nil {
			e.discard(ctx, dstRes, destPath)
			return catalog.Location{}, err
		}
	}

	e.logger.Debug().
		Str("replica", src.String()).
		Str("dest", destResource).
		Str("path", destPath).
		Int64("bytes", n).
		Dur("elapsed", time.Since(start)).
		Msg("Replica bytes copied")

	return loc, nil
}

// create allocates a destination path and opens it for writing. A path
// taken by a concurrent writer between the two steps is allocated again.
func (e *Engine) create(ctx context.Context, res resource.Resource, src catalog.Replica) (string, resource.Writer, error) {
	var lastErr error
	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		p, err := res.AllocatePath(src.ObjectPath, src.ReplNum)
		if err != nil {
			return "", nil, fault.Wrap(fault.TransferFailed, "allocate destination", err)
		}
		w, err := res.Create(ctx, p)
		if err == nil {
			return p, w, nil
		}
		if !errors.Is(err, resource.ErrExists) {
			return "", nil, fault.Wrap(fault.TransferFailed, "create destination", err)
		}
		lastErr = err
		e.logger.Debug().Str("path", p).Msg("Destination path taken, allocating another")
	}
	return "", nil, fault.Wrap(fault.TransferFailed, "create destination", lastErr)
}

// readback recomputes the digest of committed destination bytes.
func (e *Engine) readback(ctx context.Context, res resource.Resource, loc catalog.Location) error {
	r, err := res.Open(ctx, loc.PhysicalPath)
	if err != nil {
		return fault.Wrap(fault.TransferFailed, "reopen destination", err)
	}
	defer func() { _ = r.Close() }()

	digest, n, err := checksum.Compute(&ctxReader{ctx: ctx, r: r}, e.schemeFor(loc.Digest))
	if err != nil {
		return fault.Wrap(fault.TransferFailed, "read back destination", err)
	}
	if n != loc.Size || !checksum.Equal(digest, loc.Digest) {
		return fault.New(fault.CorruptionDetected, "verify destination",
			"%s on %s: read back %d bytes with digest %s, wrote %d with %s",
			loc.PhysicalPath, loc.Resource, n, digest, loc.Size, loc.Digest)
	}
	return nil
}

// discard removes committed destination bytes after a late failure. It
// keeps ctx's values but not its cancellation, since ctx may be what failed.
func (e *Engine) discard(ctx context.Context, res resource.Resource, physicalPath string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cleanupTimeout)
	defer cancel()
	if err := res.Delete(ctx, physicalPath); err != nil {
		e.logger.Warn().Err(err).
			Str("resource", res.Name()).
			Str("path", physicalPath).
			Msg("Failed to remove destination bytes")
	}
}

// Retire deletes the bytes at loc. It is used to retire a replaced source
// copy after the catalog commit, and to discard a new copy after rollback.
func (e *Engine) Retire(ctx context.Context, loc catalog.Location) error {
	res, err := e.resolve("remove bytes", loc.Resource)
	if err != nil {
		return err
	}
	if err := res.Delete(ctx, loc.PhysicalPath); err != nil {
		return fault.Wrap(fault.TransferFailed, "remove bytes", err)
	}
	return nil
}

// RegisterExisting verifies that physicalPath is a readable file local to
// resourceName and consistent with hints. No bytes are copied.
func (e *Engine) RegisterExisting(ctx context.Context, physicalPath, resourceName string, hints Hints) (catalog.Location, error) {
	const op = "verify physical path"

	res, err := e.resolve(op, resourceName)
	if err != nil {
		return catalog.Location{}, err
	}
	if !res.Owns(physicalPath) {
		return catalog.Location{}, fault.New(fault.InvalidRequest, op,
			"%s is not local to resource %s", physicalPath, resourceName)
	}

	size, err := res.Stat(ctx, physicalPath)
	if err != nil {
		if errors.Is(err, resource.ErrNotExist) {
			return catalog.Location{}, fault.Wrap(fault.NotFound, op, err)
		}
		return catalog.Location{}, fault.Wrap(fault.TransferFailed, op, err)
	}
	if hints.Size != nil && *hints.Size != size {
		return catalog.Location{}, fault.New(fault.CorruptionDetected, op,
			"%s has %d bytes, caller expected %d", physicalPath, size, *hints.Size)
	}

	loc := catalog.Location{
		Resource:     res.Name(),
		PhysicalPath: physicalPath,
		Size:         size,
	}
	if hints.Digest == "" && !e.digestOnRegister {
		return loc, nil
	}

	r, err := res.Open(ctx, physicalPath)
	if err != nil {
		return catalog.Location{}, fault.Wrap(fault.TransferFailed, op, err)
	}
	defer func() { _ = r.Close() }()

	digest, n, err := checksum.Compute(&ctxReader{ctx: ctx, r: r}, e.schemeFor(hints.Digest))
	if err != nil {
		return catalog.Location{}, fault.Wrap(fault.TransferFailed, op, err)
	}
	if n != size {
		return catalog.Location{}, fault.New(fault.CorruptionDetected, op,
			"%s changed size while reading: %d then %d", physicalPath, size, n)
	}
	if hints.Digest != "" && !checksum.Equal(hints.Digest, digest) {
		return catalog.Location{}, fault.New(fault.CorruptionDetected, op,
			"%s digest %s does not match expected %s", physicalPath, digest, hints.Digest)
	}
	loc.Digest = digest
	return loc, nil
}

// ctxReader fails reads once ctx is done so a cancelled copy stops at the
// next buffer boundary.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, fmt.Errorf("transfer cancelled: %w", err)
	}
	return c.r.Read(p)
}
