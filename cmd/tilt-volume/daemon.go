package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/tilt-volume/internal/config"
	"github.com/sweeney/tilt-volume/internal/gpio"
	"github.com/sweeney/tilt-volume/internal/ingest"
	"github.com/sweeney/tilt-volume/internal/mqtt"
	"github.com/sweeney/tilt-volume/internal/state"
	"github.com/sweeney/tilt-volume/internal/status"
	"github.com/sweeney/tilt-volume/internal/volume"
	"github.com/sweeney/tilt-volume/internal/web"
)

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger
	if cfg.Logging.Debug && !verbose {
		if log, err = newLogger(true); err != nil {
			return err
		}
	}

	// Bind first: without the socket there is nothing to do.
	addr := ingest.Addr(cfg.Listen.Host, cfg.Listen.Port)
	conn, err := ingest.Bind(addr)
	if err != nil {
		return err
	}
	log.Info("success binding: udp server up", zap.String("addr", conn.LocalAddr().String()))

	d := &daemon{
		cfg:   cfg,
		log:   log,
		store: state.NewStore(),
		now:   time.Now,
	}
	defer d.close()

	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			BufferSize: cfg.MQTT.BufferSize,
		}, log.Named("mqtt"))
		if err != nil {
			conn.Close()
			return fmt.Errorf("init mqtt: %w", err)
		}
		d.publisher = pub
		d.mqttStatus = pub
	}

	ctrl, err := d.buildController()
	if err != nil {
		conn.Close()
		return err
	}
	d.listener = ingest.NewListener(conn, d.store, ctrl, log.Named("ingest"))

	d.tracker = status.NewTracker(d.now(), status.Config{
		ListenAddr:   conn.LocalAddr().String(),
		HTTPAddr:     cfg.HTTP.Addr,
		Broker:       cfg.MQTT.Broker,
		VolumeMode:   cfg.Volume.Mode,
		HeartbeatMs:  cfg.Heartbeat.Milliseconds(),
		StaleAfterMs: cfg.StaleAfter.Milliseconds(),
	}, d.store, d.listener.Stats())
	if net := readNetworkInfo(); net != nil {
		d.tracker.SetNetwork(net)
	}

	if cfg.HTTP.Addr != "" {
		d.web = web.New(cfg.HTTP.Addr, d.tracker, d.store, log.Named("http"))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return d.run(cmd.Context(), sigCh)
}

// daemon wires the listener to its sinks. Fields left nil are disabled.
type daemon struct {
	cfg        config.Config
	log        *zap.Logger
	store      *state.Store
	listener   *ingest.Listener
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	web        *web.Server
	armSwitch  gpio.Reader
	async      *volume.AsyncController
	now        func() time.Time
}

// buildController picks the volume controller from config and wraps it with
// the rate limit and the arm switch. Command and MQTT controllers run on their
// own worker so the listener never waits on them.
func (d *daemon) buildController() (volume.Controller, error) {
	var ctrl volume.Controller
	slow := d.cfg.Volume.Mode == config.ModeCommand || d.cfg.Volume.Mode == config.ModeMQTT
	switch d.cfg.Volume.Mode {
	case config.ModeCommand:
		c, err := volume.NewCommandController(d.cfg.Volume.Command, d.cfg.Volume.Timeout)
		if err != nil {
			return nil, err
		}
		ctrl = c
	case config.ModeMQTT:
		if d.publisher == nil {
			return nil, errors.New("volume mode mqtt requires a broker")
		}
		ctrl = volume.NewMQTTController(d.publisher, d.now)
	default:
		ctrl = volume.NewLogController(d.log.Named("volume"))
	}

	if d.cfg.Volume.MinInterval > 0 {
		ctrl = volume.NewRateLimitedController(ctrl, d.cfg.Volume.MinInterval, d.now)
	}

	if d.cfg.Volume.ArmPin >= 0 {
		sw, err := gpio.NewRealReader(d.cfg.Volume.ArmChip, d.cfg.Volume.ArmPin)
		if err != nil {
			return nil, fmt.Errorf("init arm switch: %w", err)
		}
		d.armSwitch = sw
		ctrl = volume.NewGatedController(ctrl, sw)
	}

	if slow {
		d.async = volume.NewAsyncController(ctrl, d.log.Named("volume"))
		ctrl = d.async
	}
	return ctrl, nil
}

// run starts every component and blocks until a signal arrives or ctx is
// cancelled. Only startup failures are returned.
func (d *daemon) run(ctx context.Context, sig <-chan os.Signal) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.publishStatus("STARTUP", "")

	g, gctx := errgroup.WithContext(ctx)

	reason := make(chan string, 1)
	g.Go(func() error {
		select {
		case s := <-sig:
			d.log.Info("shutting down", zap.Stringer("signal", s))
			reason <- signalName(s)
			cancel()
		case <-gctx.Done():
			reason <- "CONTEXT"
		}
		return nil
	})

	if d.web != nil {
		g.Go(func() error {
			d.log.Info("http status server listening", zap.String("addr", d.cfg.HTTP.Addr))
			if err := d.web.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return d.web.Shutdown(shutdownCtx)
		})
	}

	if d.publisher != nil {
		// Subscribe before the listener runs so no reading is missed.
		updates, unsubscribe := d.store.Subscribe(16)
		g.Go(func() error {
			defer unsubscribe()
			d.forwardSnapshots(gctx, updates)
			return nil
		})
	}

	g.Go(func() error {
		return d.listener.Run(gctx)
	})

	if d.cfg.Heartbeat > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(d.cfg.Heartbeat)
			defer ticker.Stop()
			d.heartbeatLoop(gctx, ticker.C)
			return nil
		})
	}

	d.log.Info("started",
		zap.String("volume_mode", d.cfg.Volume.Mode),
		zap.String("broker", d.cfg.MQTT.Broker),
		zap.Duration("heartbeat", d.cfg.Heartbeat))

	err := g.Wait()
	d.publishStatus("SHUTDOWN", <-reason)
	return err
}

// forwardSnapshots publishes each stored snapshot to MQTT, at most one per
// publish interval.
func (d *daemon) forwardSnapshots(ctx context.Context, updates <-chan state.Snapshot) {
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-updates:
			if iv := d.cfg.MQTT.PublishInterval; iv > 0 && !last.IsZero() && snap.UpdatedAt.Sub(last) < iv {
				continue
			}
			last = snap.UpdatedAt
			if err := d.publisher.PublishSnapshot(snap); err != nil {
				if errors.Is(err, mqtt.ErrNotConnected) {
					d.log.Debug("snapshot not published", zap.Error(err))
				} else {
					d.log.Warn("snapshot publish error", zap.Error(err))
				}
			}
		}
	}
}

func (d *daemon) heartbeatLoop(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				d.tracker.SetNetwork(net)
			}
			snap := d.publishStatus("HEARTBEAT", "")
			d.log.Info("heartbeat",
				zap.Duration("uptime", snap.Uptime().Truncate(time.Second)),
				zap.Uint64("received", snap.Counters.Received),
				zap.Uint64("dropped", snap.Counters.Dropped),
				zap.Uint64("raise_requests", snap.Counters.RaiseRequests),
				zap.Bool("stale", snap.Stale()))
		}
	}
}

// publishStatus sends a full status snapshot as a retained system event.
func (d *daemon) publishStatus(event, reason string) status.Snapshot {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	snap := d.tracker.Snapshot()
	if d.publisher == nil {
		return snap
	}

	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		d.log.Warn("failed to publish system event", zap.String("event", event), zap.Error(err))
	} else {
		d.log.Info("published system event", zap.String("event", event))
	}
	return snap
}

func (d *daemon) close() {
	if d.async != nil {
		d.async.Close()
	}
	if d.armSwitch != nil {
		if err := d.armSwitch.Close(); err != nil {
			d.log.Warn("close arm switch", zap.Error(err))
		}
	}
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			d.log.Warn("close mqtt", zap.Error(err))
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
