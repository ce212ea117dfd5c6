// Command huff compresses and decompresses files in the .hf container format.
//
//	huff [-v] [-max-bytes N] compress <in> <out>
//	huff [-v] [-max-bytes N] decompress <in> <out>
//	huff stat <file>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/seiflotfy/huff"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  huff [flags] compress <in> <out%s>\n", huff.FileExtension)
	fmt.Fprintf(w, "  huff [flags] decompress <in%s> <out>\n", huff.FileExtension)
	fmt.Fprintf(w, "  huff stat <file%s>\n", huff.FileExtension)
	fmt.Fprintf(w, "Flags:\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("huff", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	verbose := fs.Bool("v", false, "log every pipeline stage")
	maxBytes := fs.Uint64("max-bytes", 0, "refuse originals larger than this many bytes (0 = unlimited)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		usage(stderr, fs)
		return exitUsage
	}

	log := logrus.New()
	log.SetOutput(stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	opts := []huff.Option{
		huff.WithLogger(log),
		huff.WithMaxInputBytes(*maxBytes),
	}

	rest := fs.Args()
	if len(rest) == 0 {
		usage(stderr, fs)
		return exitUsage
	}
	cmd, rest := rest[0], rest[1:]

	switch {
	case (cmd == "compress" || cmd == "c") && len(rest) == 2:
		report, err := huff.CompressFile(ctx, rest[0], rest[1], opts...)
		if err != nil {
			return fail(log, err)
		}
		fmt.Fprintf(stdout, "Compressed %s -> %s\n", rest[0], rest[1])
		printReport(stdout, report)
	case (cmd == "decompress" || cmd == "d") && len(rest) == 2:
		report, err := huff.DecompressFile(ctx, rest[0], rest[1], opts...)
		if err != nil {
			return fail(log, err)
		}
		fmt.Fprintf(stdout, "Decompressed %s -> %s\n", rest[0], rest[1])
		printReport(stdout, report)
	case cmd == "stat" && len(rest) == 1:
		report, err := huff.StatFile(rest[0])
		if err != nil {
			return fail(log, err)
		}
		fmt.Fprintf(stdout, "%s\n", rest[0])
		printReport(stdout, report)
	default:
		fmt.Fprintf(stderr, "Error: bad command %q with %d arguments\n", cmd, len(rest))
		usage(stderr, fs)
		return exitUsage
	}
	return exitOK
}

func printReport(w io.Writer, r huff.Report) {
	fmt.Fprintf(w, "Original: %d bytes\n", r.OriginalSize)
	fmt.Fprintf(w, "Compressed: %d bytes\n", r.CompressedSize)
	fmt.Fprintf(w, "Compression ratio: %.2f%%\n", r.Ratio())
	if r.Elapsed > 0 {
		fmt.Fprintf(w, "Elapsed: %s\n", r.Elapsed)
	}
}

func fail(log logrus.FieldLogger, err error) int {
	kind := "error"
	switch {
	case errors.Is(err, huff.ErrInvalidInput):
		kind = "invalid input"
	case errors.Is(err, huff.ErrCorruptContainer):
		kind = "corrupt container"
	case errors.Is(err, huff.ErrUnsupportedVersion):
		kind = "unsupported format"
	case errors.Is(err, huff.ErrInvariant):
		kind = "internal error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = "aborted"
	}
	log.WithField("kind", kind).Error(err)
	return exitFail
}
