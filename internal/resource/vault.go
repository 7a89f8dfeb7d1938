package resource

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// VaultConfig configures a directory-backed resource.
type VaultConfig struct {
	Name    string
	Root    string
	Offline bool
	// Fsync flushes file data before a write is committed. Tests disable it
	// because it dominates runtime on slow disks.
	Fsync bool
}

// Vault stores replica bytes as plain files below a root directory, laid out
// by logical path.
//
//	{root}/
//	  zone/home/alice/file.txt
//	  zone/home/alice/file.txt.3.1a2b3c4d   # second replica on the same vault
//	  .tmp-*                               # uncommitted writes
//
// A write in progress holds an empty placeholder at its final path.
type Vault struct {
	name    string
	root    string
	fsync   bool
	offline atomic.Bool
}

// NewVault creates a vault, creating its root directory if needed.
func NewVault(cfg VaultConfig) (*Vault, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("vault name cannot be empty")
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("vault %s: root cannot be empty", cfg.Name)
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("vault %s: resolve root: %w", cfg.Name, err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("vault %s: create root: %w", cfg.Name, err)
	}
	v := &Vault{name: cfg.Name, root: root, fsync: cfg.Fsync}
	v.offline.Store(cfg.Offline)
	return v, nil
}

// Name implements Resource.
func (v *Vault) Name() string { return v.name }

// Root returns the vault's root directory.
func (v *Vault) Root() string { return v.root }

// SetOffline marks the vault unreachable (or reachable again).
func (v *Vault) SetOffline(offline bool) { v.offline.Store(offline) }

// Offline reports whether the vault is marked unreachable.
func (v *Vault) Offline() bool { return v.offline.Load() }

func (v *Vault) checkOnline() error {
	if v.offline.Load() {
		return fmt.Errorf("resource %s: %w", v.name, ErrOffline)
	}
	return nil
}

// Owns implements Resource.
func (v *Vault) Owns(physicalPath string) bool {
	if !filepath.IsAbs(physicalPath) {
		return false
	}
	rel, err := filepath.Rel(v.root, filepath.Clean(physicalPath))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (v *Vault) checkOwned(physicalPath string) error {
	if !v.Owns(physicalPath) {
		return fmt.Errorf("%s on %s: %w", physicalPath, v.name, ErrOutside)
	}
	return nil
}

// AllocatePath implements Resource. The path mirrors the logical path; a
// suffix keeps it unique when the vault already holds bytes there.
func (v *Vault) AllocatePath(objectPath string, replNum int) (string, error) {
	if err := v.checkOnline(); err != nil {
		return "", err
	}
	rel := strings.TrimPrefix(filepath.Clean("/"+objectPath), "/")
	if rel == "" {
		return "", fmt.Errorf("allocate path: empty object path")
	}
	p := filepath.Join(v.root, filepath.FromSlash(rel))
	if !fileExists(p) {
		return p, nil
	}
	return fmt.Sprintf("%s.%d.%s", p, replNum, uuid.NewString()[:8]), nil
}

// Create implements Resource. The final path is reserved with an empty
// placeholder until Commit or Abort, so two writers can never be handed the
// same path.
func (v *Vault) Create(ctx context.Context, physicalPath string) (Writer, error) {
	if err := v.checkOnline(); err != nil {
		return nil, err
	}
	if err := v.checkOwned(physicalPath); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(physicalPath), 0755); err != nil {
		return nil, fmt.Errorf("create parent dir: %w", err)
	}
	ph, err := os.OpenFile(physicalPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		return nil, fmt.Errorf("create %s: %w", physicalPath, ErrExists)
	}
	if err != nil {
		return nil, fmt.Errorf("reserve %s: %w", physicalPath, err)
	}
	reserved, err := ph.Stat()
	_ = ph.Close()
	if err != nil {
		_ = os.Remove(physicalPath)
		return nil, fmt.Errorf("reserve %s: %w", physicalPath, err)
	}

	f, err := os.CreateTemp(filepath.Dir(physicalPath), ".tmp-*")
	if err != nil {
		_ = os.Remove(physicalPath)
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &fileWriter{f: f, final: physicalPath, reserved: reserved, fsync: v.fsync}, nil
}

// Open implements Resource.
func (v *Vault) Open(ctx context.Context, physicalPath string) (io.ReadCloser, error) {
	if err := v.checkOnline(); err != nil {
		return nil, err
	}
	if err := v.checkOwned(physicalPath); err != nil {
		return nil, err
	}
	f, err := os.Open(physicalPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("open %s: %w", physicalPath, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", physicalPath, err)
	}
	return f, nil
}

// Stat implements Resource.
func (v *Vault) Stat(ctx context.Context, physicalPath string) (int64, error) {
	if err := v.checkOnline(); err != nil {
		return 0, err
	}
	if err := v.checkOwned(physicalPath); err != nil {
		return 0, err
	}
	info, err := os.Stat(physicalPath)
	if os.IsNotExist(err) {
		return 0, fmt.Errorf("stat %s: %w", physicalPath, ErrNotExist)
	}
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", physicalPath, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("stat %s: is a directory", physicalPath)
	}
	return info.Size(), nil
}

// Delete implements Resource.
func (v *Vault) Delete(ctx context.Context, physicalPath string) error {
	if err := v.checkOnline(); err != nil {
		return err
	}
	if err := v.checkOwned(physicalPath); err != nil {
		return err
	}
	if err := os.Remove(physicalPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", physicalPath, err)
	}
	return nil
}

// fileWriter writes to a temp file next to the final path and renames it
// over its own placeholder on Commit.
type fileWriter struct {
	f        *os.File
	final    string
	reserved os.FileInfo // placeholder created by Create
	fsync    bool
	done     bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

// ownsReservation reports whether the final path still holds the untouched
// placeholder this writer created.
func (w *fileWriter) ownsReservation() bool {
	cur, err := os.Lstat(w.final)
	return err == nil && os.SameFile(cur, w.reserved) && cur.Size() == 0
}

func (w *fileWriter) Commit() error {
	if w.done {
		return fmt.Errorf("commit %s: writer already finished", w.final)
	}
	w.done = true
	tmpPath := w.f.Name()

	if w.fsync {
		if err := w.f.Sync(); err != nil {
			_ = w.f.Close()
			w.cleanup(tmpPath)
			return fmt.Errorf("sync %s: %w", w.final, err)
		}
	}
	if err := w.f.Close(); err != nil {
		w.cleanup(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	// Someone wrote to the reserved path behind our back; leave their bytes.
	if !w.ownsReservation() {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("commit %s: %w", w.final, ErrExists)
	}
	if err := os.Rename(tmpPath, w.final); err != nil {
		w.cleanup(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (w *fileWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	_ = w.f.Close()
	err := os.Remove(w.f.Name())
	if w.ownsReservation() {
		_ = os.Remove(w.final)
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp file: %w", err)
	}
	return nil
}

// cleanup removes the temp file and releases the reservation.
func (w *fileWriter) cleanup(tmpPath string) {
	_ = os.Remove(tmpPath)
	if w.ownsReservation() {
		_ = os.Remove(w.final)
	}
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
