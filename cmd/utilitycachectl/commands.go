package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	uc "github.com/adamryczkowski/utilitycache"
	"github.com/adamryczkowski/utilitycache/prune"
)

// GetCmd streams a resident item's raw blob to stdout. It bypasses the
// producer codec entirely: the CLI has no way to supply one, so it can
// only serve items that are already resident, not compute new ones.
type GetCmd struct {
	ItemKey string `arg:"" help:"Hex-encoded item key."`
}

func (c *GetCmd) Run(app *appContext) error {
	ctx := context.Background()
	key, err := uc.ParseItemKey(c.ItemKey)
	if err != nil {
		return fmt.Errorf("parsing item key: %w", err)
	}

	item, err := app.coordinator.GetObjectInfo(ctx, key)
	if err != nil {
		return err
	}
	if !item.IsResident() {
		return fmt.Errorf("item %s is not resident; compute it through the library API first", key)
	}

	rc, err := app.store.Read(ctx, string(item.StorageKey))
	if err != nil {
		return fmt.Errorf("reading blob %s: %w", item.StorageKey, err)
	}
	defer func() { _ = rc.Close() }()

	_, err = io.Copy(os.Stdout, rc)
	return err
}

// InfoCmd prints a cache item's metadata record without recording an
// access.
type InfoCmd struct {
	ItemKey string `arg:"" help:"Hex-encoded item key."`
}

func (c *InfoCmd) Run(app *appContext) error {
	key, err := uc.ParseItemKey(c.ItemKey)
	if err != nil {
		return fmt.Errorf("parsing item key: %w", err)
	}
	item, err := app.coordinator.GetObjectInfo(context.Background(), key)
	if err != nil {
		return err
	}
	return printJSON(item)
}

// PruneCmd runs the pruning engine, once or repeatedly.
type PruneCmd struct {
	RemoveHistory bool          `help:"Clear access logs after eviction."`
	Verbose       bool          `help:"Log non-fatal invariant violations."`
	BatchSize     int           `help:"Bound how many resident items a single prune inspects. 0 means unlimited."`
	Watch         time.Duration `help:"Repeat the prune every interval until interrupted. This is a caller-driven loop in the CLI, not a background goroutine in the library."`
}

func (c *PruneCmd) Run(app *appContext) error {
	opts := prune.Options{RemoveHistory: c.RemoveHistory, Verbose: c.Verbose, BatchSize: c.BatchSize}

	if c.Watch <= 0 {
		return c.runOnce(app, opts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	ticker := time.NewTicker(c.Watch)
	defer ticker.Stop()
	for {
		if err := c.runOnce(app, opts); err != nil {
			app.logger.Error("prune failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (c *PruneCmd) runOnce(app *appContext, opts prune.Options) error {
	result, err := app.coordinator.PruneCache(context.Background(), opts)
	if err != nil {
		return err
	}
	app.logger.Info("prune complete",
		"repaired", len(result.RepairedItems),
		"orphans_deleted", len(result.OrphansDeleted),
		"evicted_unconditional", len(result.EvictedUnconditional),
		"evicted_for_space", len(result.EvictedForSpace),
		"bytes_reclaimed", result.BytesReclaimed,
		"final_free_space", result.FinalFreeSpace,
		"non_fatal_errors", len(result.NonFatalErrors),
	)
	return nil
}

// ForgetCmd deletes a cache item's blob and metadata record entirely.
type ForgetCmd struct {
	ItemKey string `arg:"" help:"Hex-encoded item key."`
}

func (c *ForgetCmd) Run(app *appContext) error {
	key, err := uc.ParseItemKey(c.ItemKey)
	if err != nil {
		return fmt.Errorf("parsing item key: %w", err)
	}
	return app.coordinator.Forget(context.Background(), key)
}

// StatsCmd prints resident-set summary statistics.
type StatsCmd struct{}

func (c *StatsCmd) Run(app *appContext) error {
	stats, err := app.coordinator.Stats(context.Background())
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
