package huff

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	data := []byte(strings.Repeat("file round trip with some redundancy. ", 500))
	in := writeFile(t, dir, "input.txt", data)
	packed := filepath.Join(dir, "input"+FileExtension)
	restored := filepath.Join(dir, "restored.txt")

	report, err := CompressFile(context.Background(), in, packed)
	if err != nil {
		t.Fatalf("CompressFile failed: %v", err)
	}
	info, err := os.Stat(packed)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if report.OriginalSize != int64(len(data)) || report.CompressedSize != info.Size() {
		t.Fatalf("report = %+v, file is %d bytes", report, info.Size())
	}
	if report.Ratio() <= 0 || report.Ratio() >= 100 {
		t.Fatalf("Ratio = %.2f, want between 0 and 100", report.Ratio())
	}

	back, err := DecompressFile(context.Background(), packed, restored)
	if err != nil {
		t.Fatalf("DecompressFile failed: %v", err)
	}
	if back.OriginalSize != report.OriginalSize || back.CompressedSize != report.CompressedSize {
		t.Fatalf("decompress report %+v differs from compress report %+v", back, report)
	}
	got, err := os.ReadFile(restored)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("restored file differs from input")
	}
}

func TestFileRoundTripEmpty(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "empty", nil)
	packed := filepath.Join(dir, "empty"+FileExtension)
	restored := filepath.Join(dir, "empty.out")

	report, err := CompressFile(context.Background(), in, packed)
	if err != nil {
		t.Fatalf("CompressFile failed: %v", err)
	}
	if report.Ratio() != 0 {
		t.Fatalf("Ratio of empty input = %.2f, want 0", report.Ratio())
	}
	if _, err := DecompressFile(context.Background(), packed, restored); err != nil {
		t.Fatalf("DecompressFile failed: %v", err)
	}
	got, err := os.ReadFile(restored)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("restored %d bytes, want 0", len(got))
	}
}

func TestStatFile(t *testing.T) {
	dir := t.TempDir()
	data := []byte("aaaabbbccd")
	in := writeFile(t, dir, "in", data)
	packed := filepath.Join(dir, "in"+FileExtension)
	if _, err := CompressFile(context.Background(), in, packed); err != nil {
		t.Fatalf("CompressFile failed: %v", err)
	}

	report, err := StatFile(packed)
	if err != nil {
		t.Fatalf("StatFile failed: %v", err)
	}
	if report.OriginalSize != 10 || report.CompressedSize != 69 {
		t.Fatalf("report = %+v, want 10 -> 69", report)
	}
	if report.Elapsed != 0 {
		t.Fatalf("StatFile reported elapsed time %v", report.Elapsed)
	}

	if _, err := StatFile(in); !errors.Is(err, ErrCorruptContainer) {
		t.Fatalf("stat of plain file: got %v, want ErrCorruptContainer", err)
	}
	if _, err := StatFile(filepath.Join(dir, "missing")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("stat of missing file: got %v, want ErrInvalidInput", err)
	}
}

func TestFileMissingInput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	if _, err := CompressFile(context.Background(), filepath.Join(dir, "nope"), out); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("compress: got %v, want ErrInvalidInput", err)
	}
	if _, err := DecompressFile(context.Background(), filepath.Join(dir, "nope"), out); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("decompress: got %v, want ErrInvalidInput", err)
	}
	if _, err := CompressFile(context.Background(), dir, out); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("compress directory: got %v, want ErrInvalidInput", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output created for failed operation")
	}
}

func TestDecompressFileCorruptLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	blob := mustCompress(t, []byte("aaaabbbccd"))
	blob[offChecksum] ^= 0xFF
	in := writeFile(t, dir, "bad"+FileExtension, blob)
	out := filepath.Join(dir, "bad.out")

	_, err := DecompressFile(context.Background(), in, out)
	if !errors.Is(err, ErrCorruptContainer) {
		t.Fatalf("got %v, want ErrCorruptContainer", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output created for corrupt input")
	}
	if names := dirEntries(t, dir); len(names) != 1 {
		t.Fatalf("directory holds %v, want only the input", names)
	}
}

func TestPublishReplacesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "target", []byte("old contents"))
	if err := publish(context.Background(), path, []byte("new")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "new" {
		t.Fatalf("got %q, want %q", got, "new")
	}
	if names := dirEntries(t, dir); len(names) != 1 {
		t.Fatalf("temporary files left behind: %v", names)
	}
}

func TestPublishCanceledKeepsOldFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "target", []byte("old contents"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := publish(ctx, path, []byte("new")); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "old contents" {
		t.Fatalf("canceled publish replaced the file with %q", got)
	}
	if names := dirEntries(t, dir); len(names) != 1 {
		t.Fatalf("temporary files left behind: %v", names)
	}
}

func TestPublishMissingDirectory(t *testing.T) {
	dir := t.TempDir()
	err := publish(context.Background(), filepath.Join(dir, "no", "such", "dir", "out"), []byte("x"))
	if err == nil {
		t.Fatalf("expected error publishing into a missing directory")
	}
}
