package agentrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cfgpkg "github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/config"
	"github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/runtime"
	httpserver "github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/server/http"
	pebblestore "github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/storage/pebble"
	logpkg "github.com/brdigitals4u/ttm-eld-mobile-sub000/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// test seam; tests swap this out to control the environment
var getenv = func(key string) string { return os.Getenv(key) }

type Options struct {
	DataDir  string
	HTTPAddr string
	Fsync    pebblestore.FsyncMode
	Config   cfgpkg.Config

	// AutoFlush disables the recurring timer when false; appends still
	// flush at the threshold and POST /v1/flush still works.
	AutoFlush bool
}

// Run starts the agent (queue, auto-flush timer, HTTP control API) and
// blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context; layer a
	// local signal context over the provided one.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	storeDir := filepath.Join(opts.DataDir, "store")

	// Build process-wide logger from env; defaults: level=info, format=text
	cfg := &logpkg.Config{
		Level:  getenvDefault("LOCQ_LOG_LEVEL", "info"),
		Format: getenvDefault("LOCQ_LOG_FORMAT", "text"),
	}
	procLogger, err := logpkg.ApplyConfig(cfg)
	if err != nil {
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(cfg.Level); e == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g. Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)

	rt, err := runtime.Open(runtime.Options{
		DataDir: storeDir,
		Fsync:   opts.Fsync,
		Config:  opts.Config,
		Logger:  procLogger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting locq agent",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("queue", opts.Config.QueueName),
		logpkg.Int("flush_threshold", opts.Config.FlushThreshold),
		logpkg.Dur("flush_interval", opts.Config.FlushInterval()),
		logpkg.Str("upload_url", opts.Config.Upload.URL),
		logpkg.Str("level", cfg.Level),
		logpkg.Str("format", cfg.Format),
	)

	// Warm the queue so pending entries from a previous run are visible
	// (and logged) before the first request arrives.
	if err := rt.Queue().EnsureInitialized(sctx); err != nil {
		return err
	}
	if opts.AutoFlush && opts.Config.FlushInterval() > 0 {
		rt.Queue().StartAutoFlush(opts.Config.FlushInterval())
	}

	hsrv := httpserver.New(rt, procLogger)
	errCh := make(chan error, 1)
	go func() { errCh <- hsrv.ListenAndServe(sctx, opts.HTTPAddr) }()

	select {
	case <-sctx.Done():
	case err := <-errCh:
		if err != nil && sctx.Err() == nil {
			hsrv.Close()
			return err
		}
	}
	hsrv.Close()
	// one last attempt to hand off anything still queued
	fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rt.Queue().Flush(fctx)
	return nil
}
