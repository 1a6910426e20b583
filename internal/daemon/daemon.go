// Package daemon implements the gtpstamp process lifecycle.
package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/gtpstamp/internal/config"
	"firestige.xyz/gtpstamp/internal/core/stamp"
	"firestige.xyz/gtpstamp/internal/hook"
	"firestige.xyz/gtpstamp/internal/log"
	"firestige.xyz/gtpstamp/internal/metrics"
)

// Version is set at build time.
var Version = "0.1.0"

// interceptor is the packet interception point driven by the daemon.
type interceptor interface {
	Start(ctx context.Context) error
	Stop()
}

// Daemon owns the stamper, the queue hook and the metrics server.
type Daemon struct {
	config     *config.GlobalConfig
	configPath string

	stamper       *stamp.Stamper
	hook          interceptor
	metricsServer *metrics.Server // nil if metrics disabled
	logCloser     io.Closer

	newHook func(config.QueueConfig, *stamp.Stamper) interceptor

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	sigChan  chan os.Signal
}

// New loads the configuration at configPath and creates a Daemon.
func New(configPath string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	d := &Daemon{
		config:     cfg,
		configPath: configPath,
		newHook: func(q config.QueueConfig, st *stamp.Stamper) interceptor {
			return hook.New(q, st)
		},
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// NewStamper builds the stamper described by cfg.
func NewStamper(cfg *config.GlobalConfig) (*stamp.Stamper, error) {
	order, err := stamp.ParseByteOrder(cfg.Stamp.TimestampOrder)
	if err != nil {
		return nil, err
	}
	return stamp.New(stamp.Options{
		NodeID:         cfg.Node.NodeID(),
		TimestampOrder: order,
		StrictLength:   cfg.Stamp.StrictLength,
		Observer:       metrics.Observer{},
		WarnPerSource:  cfg.Stamp.WarnPerSource,
		WarnWindow:     cfg.Stamp.WarnWindow,
	}), nil
}

// Start initializes and starts all daemon components. On failure the
// components already started are stopped again.
func (d *Daemon) Start() error {
	// 1. Logging
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"version": Version,
		"node":    d.config.Node.ID,
		"config":  d.configPath,
	}).Info("starting gtpstamp daemon")

	// 2. PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Metrics
	if err := d.startMetrics(); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Stamper and hook
	st, err := NewStamper(d.config)
	if err != nil {
		d.Stop()
		return err
	}
	d.stamper = st

	h := d.newHook(d.config.Queue, st)
	if err := h.Start(d.ctx); err != nil {
		d.Stop()
		return fmt.Errorf("failed to attach queues: %w", err)
	}
	d.hook = h

	log.GetLogger().WithFields(map[string]interface{}{
		"queue":           d.config.Queue.Num,
		"queues":          d.config.Queue.Count,
		"strict_length":   d.config.Stamp.StrictLength,
		"timestamp_order": d.config.Stamp.TimestampOrder,
	}).Info("daemon started successfully")
	return nil
}

// Stop performs graceful shutdown. It is safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		logger := log.GetLogger()
		logger.Info("initiating graceful shutdown")

		// 1. Detach from the queues first so no packet waits on us.
		if d.hook != nil {
			d.hook.Stop()
		}

		// 2. Metrics
		if d.metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := d.metricsServer.Stop(shutdownCtx); err != nil {
				logger.WithError(err).Error("error stopping metrics server")
			}
			cancel()
		}

		d.cancel()

		if d.sigChan != nil {
			signal.Stop(d.sigChan)
		}

		if err := d.removePIDFile(); err != nil {
			logger.WithError(err).Error("error removing PID file")
		}

		logger.Info("daemon stopped gracefully")

		if d.logCloser != nil {
			_ = d.logCloser.Close()
		}
	})
}

// Run blocks until SIGTERM or SIGINT, or until the daemon context is
// cancelled. SIGHUP reloads the configuration.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	log.GetLogger().Info("daemon running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				log.GetLogger().WithField("signal", sig.String()).Info("received shutdown signal")
				d.Stop()
				return nil
			case syscall.SIGHUP:
				if err := d.Reload(); err != nil {
					log.GetLogger().WithError(err).Error("failed to reload config")
				}
			}

		case <-d.ctx.Done():
			d.Stop()
			return nil
		}
	}
}

// Shutdown makes Run return.
func (d *Daemon) Shutdown() {
	d.cancel()
}

// Reload re-reads the configuration file.
// Hot-reloadable: log settings.
// Cold (requires restart): node, stamp, queue and metrics settings.
func (d *Daemon) Reload() error {
	log.GetLogger().WithField("path", d.configPath).Info("reloading configuration")

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	old := d.config
	requiresRestart := []string{}
	if newConfig.Node != old.Node {
		requiresRestart = append(requiresRestart, "node")
	}
	if newConfig.Stamp != old.Stamp {
		requiresRestart = append(requiresRestart, "stamp")
	}
	if newConfig.Queue != old.Queue {
		requiresRestart = append(requiresRestart, "queue")
	}
	if newConfig.Metrics != old.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}

	// Only the log section takes effect; keep the running values for the rest.
	applied := *old
	applied.Log = newConfig.Log
	d.config = &applied
	if err := d.initLogging(); err != nil {
		d.config = old
		return fmt.Errorf("failed to reinitialize logging: %w", err)
	}

	log.GetLogger().WithField("requires_restart", requiresRestart).Info("configuration reloaded")
	return nil
}

// Config returns the active configuration.
func (d *Daemon) Config() *config.GlobalConfig {
	return d.config
}

func (d *Daemon) initLogging() error {
	closer, err := log.Init(d.config.Log)
	if err != nil {
		return err
	}
	if d.logCloser != nil {
		_ = d.logCloser.Close()
	}
	d.logCloser = closer

	log.GetLogger().WithField("level", d.config.Log.Level).Debug("logging initialized")
	return nil
}

func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		log.GetLogger().Info("metrics server disabled")
		return nil
	}

	srv := metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := srv.Start(d.ctx); err != nil {
		return err
	}
	d.metricsServer = srv
	return nil
}

func (d *Daemon) writePIDFile() error {
	path := d.config.Control.PIDFile
	if path == "" {
		return nil
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", path, err)
	}

	log.GetLogger().WithField("path", path).WithField("pid", pid).Debug("PID file written")
	return nil
}

func (d *Daemon) removePIDFile() error {
	path := d.config.Control.PIDFile
	if path == "" {
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", path, err)
	}
	return nil
}
