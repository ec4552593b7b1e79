// Command pkgcas fetches package tarballs into a content-addressable store.
//
// Usage:
//
//	pkgcas [flags] fetch URL INTEGRITY
//	pkgcas [flags] lookup INTEGRITY
//	pkgcas [flags] usage
//
// fetch and lookup print the package index as JSON. Settings come from
// flags, PKGCAS_* environment variables and an optional YAML config file,
// in that order of precedence.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/meigma/pkgcas"
)

// exitNotFound is returned by lookup when the package is not in the store.
const exitNotFound = 2

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("pkgcas", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printHelp(stderr, fs) }

	var fv flagValues
	fv.register(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := resolveConfig(&fv, fs, getenv)
	if err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printHelp(stderr, fs)
		return errors.New("missing command")
	}
	cmd, rest := rest[0], rest[1:]

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	client, err := pkgcas.NewClient(clientOptions(cfg, logger)...)
	if err != nil {
		return err
	}

	switch cmd {
	case "fetch":
		if len(rest) != 2 {
			return errors.New("usage: pkgcas fetch URL INTEGRITY")
		}
		idx, err := client.FetchTarball(ctx, rest[0], rest[1])
		if err != nil {
			return err
		}
		return writeJSON(stdout, idx)
	case "lookup":
		if len(rest) != 1 {
			return errors.New("usage: pkgcas lookup INTEGRITY")
		}
		idx, ok, err := client.Lookup(rest[0])
		if err != nil {
			return err
		}
		if !ok {
			return &exitError{code: exitNotFound, err: fmt.Errorf("%s is not in %s", rest[0], client.Store().Dir())}
		}
		return writeJSON(stdout, idx)
	case "usage":
		if len(rest) != 0 {
			return errors.New("usage: pkgcas usage")
		}
		u, err := client.Store().Usage()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "store:   %s\nobjects: %d\nindexes: %d\nbytes:   %d\n",
			client.Store().Dir(), u.Objects, u.Indexes, u.Bytes)
		return err
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func clientOptions(cfg config, logger *slog.Logger) []pkgcas.Option {
	opts := []pkgcas.Option{
		pkgcas.WithLogger(logger),
		pkgcas.WithWorkers(cfg.Workers),
		pkgcas.WithExtractWorkers(cfg.ExtractWorkers),
		pkgcas.WithTimeout(cfg.Timeout),
		pkgcas.WithPlainHTTP(cfg.PlainHTTP),
	}
	if cfg.Store != "" {
		opts = append(opts, pkgcas.WithStoreDir(cfg.Store))
	}
	if cfg.MaxArchiveSize != 0 {
		opts = append(opts, pkgcas.WithMaxArchiveSize(cfg.MaxArchiveSize))
	}
	if cfg.MaxUnpackedSize != 0 {
		opts = append(opts, pkgcas.WithMaxUnpackedSize(cfg.MaxUnpackedSize))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, pkgcas.WithUserAgent(cfg.UserAgent))
	}
	for key, value := range cfg.Headers {
		opts = append(opts, pkgcas.WithHeader(key, value))
	}
	if cfg.DockerConfig {
		opts = append(opts, pkgcas.WithDockerConfig())
	}
	return opts
}

func writeJSON(w io.Writer, idx pkgcas.Index) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(idx)
}

func printHelp(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, `Usage: pkgcas [flags] <command> [args]

Commands:
  fetch URL INTEGRITY   download, verify and store a package tarball
  lookup INTEGRITY      print the stored index of a fetched package
  usage                 summarize the store contents

Flags:
%s`, fs.FlagUsages())
}
