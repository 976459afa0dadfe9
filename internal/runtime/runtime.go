package runtime

import (
	"context"
	"errors"

	cfgpkg "github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/config"
	httpdelivery "github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/delivery/http"
	"github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/locqueue"
	pebblestore "github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/storage/pebble"
	logpkg "github.com/brdigitals4u/ttm-eld-mobile-sub000/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
	Logger  logpkg.Logger

	// Delivery overrides the HTTP client built from Config.Upload.
	// Used by tests and embedders.
	Delivery locqueue.Delivery
}

// Runtime wires storage, config, delivery, and the queue for a
// single-node agent.
type Runtime struct {
	db     *pebblestore.DB
	config cfgpkg.Config
	logger logpkg.Logger
	queue  *locqueue.Queue
}

// Open initializes the underlying storage and returns a Runtime.
//
// The queue itself initializes lazily on first use, so an agent with a
// corrupt or slow store still starts and reports unhealthy instead of
// crash-looping.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync})
	if err != nil {
		return nil, err
	}

	delivery := opts.Delivery
	if delivery == nil && opts.Config.Upload.URL != "" {
		client, err := httpdelivery.New(httpdelivery.Options{
			URL:       opts.Config.Upload.URL,
			Timeout:   opts.Config.Upload.UploadTimeout(),
			AuthToken: opts.Config.Upload.AuthToken,
			Logger:    logger.With(logpkg.Component("delivery")),
		})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		delivery = client
	}
	if delivery == nil {
		// No endpoint configured. The agent still accepts and persists
		// samples; every flush fails and leaves them queued.
		logger.Warn("no upload URL configured; queued samples will not be delivered")
		delivery = unconfiguredDelivery{}
	}

	queue := locqueue.NewQueue(db, opts.Config.QueueName, delivery,
		locqueue.WithFlushThreshold(opts.Config.FlushThreshold),
		locqueue.WithQueueLogger(logger.With(logpkg.Component("locqueue"))),
	)

	return &Runtime{db: db, config: opts.Config, logger: logger, queue: queue}, nil
}

type unconfiguredDelivery struct{}

func (unconfiguredDelivery) SubmitBatch(ctx context.Context, batch []locqueue.BatchSample) (*locqueue.DeliveryResult, error) {
	return nil, errors.New("runtime: no upload URL configured")
}

// Queue returns the outbound location queue.
func (r *Runtime) Queue() *locqueue.Queue { return r.queue }

// Close stops background flushing and closes underlying resources.
func (r *Runtime) Close() error {
	if r.queue != nil {
		r.queue.StopAutoFlush()
	}
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth verifies the storage layer is reachable.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	return nil
}

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
