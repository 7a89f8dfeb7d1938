package resource

import (
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// CompressedVault is a Vault that stores bytes zstd-compressed at rest.
// Readers and writers see the logical (uncompressed) stream, so sizes and
// digests recorded in the catalog are those of the uncompressed content.
type CompressedVault struct {
	*Vault
	level zstd.EncoderLevel
}

// NewCompressedVault creates a zstd-compressing vault.
func NewCompressedVault(cfg VaultConfig) (*CompressedVault, error) {
	v, err := NewVault(cfg)
	if err != nil {
		return nil, err
	}
	return &CompressedVault{Vault: v, level: zstd.SpeedDefault}, nil
}

// Create implements Resource.
func (c *CompressedVault) Create(ctx context.Context, physicalPath string) (Writer, error) {
	w, err := c.Vault.Create(ctx, physicalPath)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(c.level))
	if err != nil {
		_ = w.Abort()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &zstdWriter{enc: enc, w: w}, nil
}

// Open implements Resource.
func (c *CompressedVault) Open(ctx context.Context, physicalPath string) (io.ReadCloser, error) {
	f, err := c.Vault.Open(ctx, physicalPath)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &zstdReader{dec: dec, f: f}, nil
}

// Stat implements Resource. The logical size is only known by decoding.
func (c *CompressedVault) Stat(ctx context.Context, physicalPath string) (int64, error) {
	r, err := c.Open(ctx, physicalPath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = r.Close() }()

	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", physicalPath, err)
	}
	return n, nil
}

type zstdWriter struct {
	enc *zstd.Encoder
	w   Writer
}

func (z *zstdWriter) Write(p []byte) (int, error) {
	return z.enc.Write(p)
}

func (z *zstdWriter) Commit() error {
	if err := z.enc.Close(); err != nil {
		_ = z.w.Abort()
		return fmt.Errorf("flush zstd stream: %w", err)
	}
	return z.w.Commit()
}

func (z *zstdWriter) Abort() error {
	_ = z.enc.Close()
	return z.w.Abort()
}

type zstdReader struct {
	dec *zstd.Decoder
	f   io.Closer
}

func (z *zstdReader) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdReader) Close() error {
	z.dec.Close()
	return z.f.Close()
}
