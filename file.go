package huff

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Report describes one file operation. Sizes are in bytes.
type Report struct {
	OriginalSize   int64
	CompressedSize int64
	Elapsed        time.Duration
}

// Ratio returns the compressed size as a percentage of the original, or 0
// for an empty original. Values above 100 mean the input expanded.
func (r Report) Ratio() float64 {
	if r.OriginalSize == 0 {
		return 0
	}
	return float64(r.CompressedSize) / float64(r.OriginalSize) * 100
}

// CompressFile compresses the file at in and publishes the container at out.
func CompressFile(ctx context.Context, in, out string, opts ...Option) (Report, error) {
	start := time.Now()
	data, err := readInput(in)
	if err != nil {
		return Report{}, err
	}
	blob, err := NewEncoder(opts...).Compress(ctx, data)
	if err != nil {
		return Report{}, fmt.Errorf("compress %s: %w", in, err)
	}
	if err := publish(ctx, out, blob); err != nil {
		return Report{}, err
	}
	return Report{
		OriginalSize:   int64(len(data)),
		CompressedSize: int64(len(blob)),
		Elapsed:        time.Since(start),
	}, nil
}

// DecompressFile restores the container at in and publishes the original at out.
func DecompressFile(ctx context.Context, in, out string, opts ...Option) (Report, error) {
	start := time.Now()
	blob, err := readInput(in)
	if err != nil {
		return Report{}, err
	}
	data, err := NewDecoder(opts...).Decompress(ctx, blob)
	if err != nil {
		return Report{}, fmt.Errorf("decompress %s: %w", in, err)
	}
	if err := publish(ctx, out, data); err != nil {
		return Report{}, err
	}
	return Report{
		OriginalSize:   int64(len(data)),
		CompressedSize: int64(len(blob)),
		Elapsed:        time.Since(start),
	}, nil
}

// StatFile reports the sizes of a container from its header and file size
// alone, without decoding any symbols.
func StatFile(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	h, err := ReadHeader(f)
	if err != nil {
		return Report{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if h.OriginalLen > math.MaxInt64 {
		return Report{}, corruptf("original length %d out of range", h.OriginalLen)
	}
	return Report{
		OriginalSize:   int64(h.OriginalLen),
		CompressedSize: info.Size(),
	}, nil
}

func readInput(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrInvalidInput, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return data, nil
}

// publish writes data next to path and renames it into place, so readers
// of path see either nothing or the complete result.
func publish(ctx context.Context, path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish output: %w", err)
	}
	return nil
}
