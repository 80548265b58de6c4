// main.go - anoncoind: validates anonymous-coin blocks and transactions
// against the anonymity-set state and serves it over HTTP.
//
// Usage:
//
//	anoncoind --regtest --listen 127.0.0.1:8335
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"anoncoin/internal/events"
	"anoncoin/internal/ledger"
	"anoncoin/internal/store"
)

const version = "0.1.0"

func main() {
	if err := run(os.Args[1:]); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// daemon holds everything run starts, so that it can be torn down in
// reverse order.
type daemon struct {
	cfg       *Config
	kv        store.KV
	validator *ledger.Validator
	bus       *events.Bus
	recorder  *events.Recorder
	metrics   *Metrics
	audit     *AuditLog
	server    *Server
	stops     []func()
	closeOnce sync.Once
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if cfg.ShowVersion {
		fmt.Println("anoncoind version", version)
		return nil
	}

	if err := setLogLevels(cfg.LogLevel); err != nil {
		return err
	}
	if cfg.LogFile != "" {
		if err := initLogRotator(cfg.LogFile, cfg.MaxLogFileSize, cfg.MaxLogFiles); err != nil {
			return err
		}
		defer logRotator.Close()
	}

	d, err := newDaemon(cfg)
	if err != nil {
		ancdLog.Errorf("Startup failed: %v", err)
		return err
	}
	defer d.close()

	ready := make(chan struct{}, 1)
	if err := d.server.StartServer(ready); err != nil {
		return err
	}
	<-ready
	ancdLog.Infof("anoncoind %s listening on %s at height %d", version,
		d.server.Address, d.validator.Chain().Height())

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	sig := <-interrupt
	ancdLog.Infof("Received %v, shutting down", sig)
	return nil
}

// newDaemon opens the store, replays it into a fresh state and wires the
// validator to its observers.
func newDaemon(cfg *Config) (*daemon, error) {
	d := &daemon{cfg: cfg, bus: events.NewBus()}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath()), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	kv, err := store.NewBolt(cfg.DBPath(), time.Second)
	if err != nil {
		return nil, err
	}
	d.kv = kv

	persister := ledger.NewPersister(kv)
	state := ledger.NewState(ledger.NewChain(), cfg.Limits())
	if err := persister.Load(state); err != nil {
		d.close()
		return nil, fmt.Errorf("failed to load block store: %w", err)
	}

	sigmaCtx, sparkParams := cfg.Params()
	d.validator, err = ledger.NewValidator(state, ledger.Config{
		Sigma:     sigmaCtx,
		Spark:     sparkParams,
		Limits:    cfg.Limits(),
		Bus:       d.bus,
		Persister: persister,
		Workers:   cfg.MaxConcurrency,
	})
	if err != nil {
		d.close()
		return nil, err
	}

	if cfg.EnableAudit {
		d.audit, err = NewAuditLog(cfg.AuditLogPath, cfg.MaxLogFileSize, cfg.MaxLogFiles)
		if err != nil {
			d.close()
			return nil, err
		}
		d.stops = append(d.stops, d.bus.SubscribeAll(d.auditEvent))
	}

	d.recorder = events.NewRecorder(d.bus, cfg.EventBuffer)
	d.stops = append(d.stops, d.recorder.Stop)
	d.metrics = NewMetrics(state)
	d.stops = append(d.stops, d.metrics.Observe(d.bus))

	health := NewHealthChecker(version, state.Chain().Height)
	health.RegisterComponent("store", func() error {
		_, err := kv.Get([]byte("blocks"), []byte{0})
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	})
	health.RegisterComponent("ledger", func() error {
		if d.validator.Halted() {
			return ledger.ErrStateCorrupted
		}
		return nil
	})
	health.RegisterComponent("mempool", func() error {
		if n := state.MempoolSize(); n > 10*cfg.MaxSpendInputsPerBlock {
			return fmt.Errorf("%w: %d serials reserved", errDegraded, n)
		}
		return nil
	})

	d.server = NewServer(ServerConfig{
		ID:        "anoncoind",
		Address:   cfg.Listen,
		Validator: d.validator,
		Recorder:  d.recorder,
		Metrics:   d.metrics,
		Health:    health,
		Limiter:   NewClientRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
	})
	return d, nil
}

// auditEvent records rejections and chain rollbacks.
func (d *daemon) auditEvent(ev events.Event) {
	switch ev.Kind {
	case events.SpendRejected:
		d.audit.Record("SPEND_REJECTED", map[string]interface{}{
			"reason": ev.Reason,
		})
	case events.BlockDisconnected:
		d.audit.Record("BLOCK_DISCONNECTED", map[string]interface{}{
			"height": ev.Height,
			"hash":   ev.BlockHash.String(),
		})
	}
}

func (d *daemon) close() {
	d.closeOnce.Do(d.shutdown)
}

func (d *daemon) shutdown() {
	if d.server != nil && d.server.server != nil {
		if err := d.server.Stop(); err != nil {
			ancdLog.Warnf("Server shutdown: %v", err)
		}
	}
	for i := len(d.stops) - 1; i >= 0; i-- {
		d.stops[i]()
	}
	if err := d.audit.Close(); err != nil {
		ancdLog.Warnf("Audit log close: %v", err)
	}
	if d.kv != nil {
		if err := d.kv.Close(); err != nil {
			ancdLog.Warnf("Block store close: %v", err)
		}
	}
}
