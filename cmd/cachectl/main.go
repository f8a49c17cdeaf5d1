// Command cachectl inspects and maintains the H1B filter cache outside the
// API process.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/offersplus/backend/internal/cache"
	"github.com/offersplus/backend/internal/config"
	"github.com/offersplus/backend/internal/logger"
	"github.com/offersplus/backend/internal/prefetch"
	"github.com/offersplus/backend/internal/server"
)

const usage = `usage: cachectl <command> [flags]

commands:
  stats     print entry counts, size and age range as JSON
  cleanup   remove expired entries
  clear     remove every entry
  warm      fetch the prefetch targets into the cache now
`

func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "cachectl:", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("unknown or missing command")

func run(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errUsage
	}
	cmd, args := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	backend := fs.String("backend", cfg.CacheBackend, "cache backend: bolt, redis or memory")
	path := fs.String("path", cfg.CachePath, "bolt cache file")
	targets := fs.String("targets", cfg.PrefetchTargetsFile, "YAML prefetch targets for warm")
	if err := fs.Parse(args); err != nil {
		return err
	}
	local := *cfg
	local.CacheBackend, local.CachePath, local.PrefetchTargetsFile = *backend, *path, *targets

	store, err := server.OpenStore(ctx, &local)
	if err != nil {
		return err
	}
	defer store.Close()

	switch cmd {
	case "stats":
		return stats(ctx, store, out)
	case "cleanup":
		removed, err := store.Cleanup(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %d expired entries\n", removed)
		return nil
	case "clear":
		if err := store.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "cache cleared")
		return nil
	case "warm":
		return warm(ctx, &local, store, out)
	}
	fmt.Fprint(out, usage)
	return fmt.Errorf("%w: %s", errUsage, cmd)
}

func stats(ctx context.Context, store *cache.Store, out io.Writer) error {
	st, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func warm(ctx context.Context, cfg *config.Config, store *cache.Store, out io.Writer) error {
	src, closeSource, err := server.OpenSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()
	svc := server.NewService(cfg, store, src)

	specs := prefetch.DefaultSpecs()
	if cfg.PrefetchTargetsFile != "" {
		if specs, err = prefetch.LoadSpecs(cfg.PrefetchTargetsFile); err != nil {
			return err
		}
	}
	report := prefetch.New(store, svc.PageTargets(specs), prefetch.Options{}).Run(ctx)
	fmt.Fprintf(out, "fetched %d, skipped %d, failed %d\n", report.Fetched, report.Skipped, report.Failed)
	if report.Failed > 0 {
		return fmt.Errorf("%d targets failed", report.Failed)
	}
	return nil
}
