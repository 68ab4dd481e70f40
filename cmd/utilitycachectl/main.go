// Command utilitycachectl inspects and maintains a utility-scored compute
// cache: it opens the reference BoltDB metadata store and filesystem object
// store directly, wires OpenTelemetry metrics, and exposes get/info/prune/
// forget/stats subcommands over them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/adamryczkowski/utilitycache/cache"
	"github.com/adamryczkowski/utilitycache/metadatastore"
	"github.com/adamryczkowski/utilitycache/objectstore"
	"github.com/adamryczkowski/utilitycache/prune"
	"github.com/adamryczkowski/utilitycache/telemetry"
)

// CLI is the kong command tree.
type CLI struct {
	StorageDir   string `default:"./cache/blobs" type:"path" help:"Object store root directory."`
	MetadataPath string `default:"./cache/metadata.db" type:"path" help:"Metadata database file path."`
	LogLevel     string `default:"info" enum:"debug,info,warn,error" help:"Log level."`
	LogFormat    string `default:"text" enum:"text,json" help:"Log format."`
	Prometheus   bool   `help:"Enable the Prometheus metrics exporter on :9090/metrics."`
	OTLPEndpoint string `help:"OTLP gRPC endpoint for metrics export, e.g. localhost:4317."`

	Get    GetCmd    `cmd:"" help:"Print the raw bytes of a resident item's blob."`
	Info   InfoCmd   `cmd:"" help:"Print a cache item's metadata record as JSON."`
	Prune  PruneCmd  `cmd:"" help:"Run the pruning engine once, or repeatedly with --watch."`
	Forget ForgetCmd `cmd:"" help:"Delete a cache item's blob and metadata record."`
	Stats  StatsCmd  `cmd:"" help:"Print resident-set summary statistics as JSON."`
}

// appContext bundles the wired stores and coordinator shared by every
// subcommand's Run method, built once in main and passed down rather than
// re-wired per invocation.
type appContext struct {
	coordinator *cache.Coordinator
	store       objectstore.Store
	logger      *slog.Logger
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("utilitycachectl"),
		kong.Description("Inspect and maintain a utility-scored compute cache."),
		kong.UsageOnError(),
	)

	logger, err := newLogger(cli.LogLevel, cli.LogFormat)
	kctx.FatalIfErrorf(err)

	ctx := context.Background()

	store, err := objectstore.NewFilesystem(cli.StorageDir)
	kctx.FatalIfErrorf(err)

	meta, err := metadatastore.NewBoltDB(cli.MetadataPath, metadatastore.WithLogger(logger))
	kctx.FatalIfErrorf(err)
	defer func() { _ = meta.Close() }()

	provider, err := telemetry.New(ctx, telemetry.Config{
		EnablePrometheus: cli.Prometheus,
		OTLPEndpoint:     cli.OTLPEndpoint,
	})
	kctx.FatalIfErrorf(err)
	defer func() { _ = provider.MeterProvider.Shutdown(ctx) }()

	coordMetrics, err := cache.NewMetrics(provider.MeterProvider.Meter("utilitycache/cache"))
	kctx.FatalIfErrorf(err)
	pruneMetrics, err := prune.NewMetrics(provider.MeterProvider.Meter("utilitycache/prune"))
	kctx.FatalIfErrorf(err)

	coordinator, err := cache.NewCoordinator(ctx, meta, store,
		cache.WithLogger(logger),
		cache.WithMetrics(coordMetrics),
		cache.WithPruneMetrics(pruneMetrics),
	)
	kctx.FatalIfErrorf(err)

	if cli.Prometheus && provider.PromHandler != nil {
		go serveMetrics(logger, provider.PromHandler)
	}

	app := &appContext{coordinator: coordinator, store: store, logger: logger}

	err = kctx.Run(app)
	kctx.FatalIfErrorf(err)
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	switch format {
	case "text":
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		})), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
}

func serveMetrics(logger *slog.Logger, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	logger.Info("serving metrics", "address", ":9090")
	if err := http.ListenAndServe(":9090", mux); err != nil { //nolint:gosec // operator tooling, not internet-facing
		logger.Error("metrics server stopped", "error", err)
	}
}
