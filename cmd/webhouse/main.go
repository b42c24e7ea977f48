// Command webhouse drives the house actuators, runs the heating controller
// and motion alarm, and serves one remote client over TCP or WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/webhouse/internal/alarm"
	"github.com/sweeney/webhouse/internal/config"
	"github.com/sweeney/webhouse/internal/gpio"
	"github.com/sweeney/webhouse/internal/history"
	"github.com/sweeney/webhouse/internal/house"
	"github.com/sweeney/webhouse/internal/lm75"
	"github.com/sweeney/webhouse/internal/logger"
	"github.com/sweeney/webhouse/internal/logic"
	"github.com/sweeney/webhouse/internal/mqtt"
	"github.com/sweeney/webhouse/internal/pwm"
	"github.com/sweeney/webhouse/internal/session"
	"github.com/sweeney/webhouse/internal/status"
	"github.com/sweeney/webhouse/internal/transport"
	"github.com/sweeney/webhouse/internal/web"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logger.Errorf(context.Background(), "fatal: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		printState bool
	)

	cmd := &cobra.Command{
		Use:           "webhouse",
		Short:         "Home automation controller for the webhouse board",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, printState)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "YAML config file")
	f.BoolVar(&printState, "print-state", false, "Print current device state and exit")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("listen", ":5000", "TCP client address (empty to disable)")
	f.String("http", ":8080", "HTTP status and WebSocket address (empty to disable both)")
	f.String("websocket-path", "/ws", "WebSocket client endpoint on the HTTP server (empty to disable)")
	f.String("broker", "", "MQTT broker address (empty to disable)")
	f.Duration("heartbeat", 15*time.Minute, "MQTT heartbeat interval (0 to disable)")

	return cmd
}

// shutdownSignal is the cancel cause recorded when a signal stops the daemon.
type shutdownSignal struct{ sig os.Signal }

func (s shutdownSignal) Error() string { return "received " + signalName(s.sig) }

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

// shutdownReason names why ctx ended, for the SHUTDOWN event.
func shutdownReason(ctx context.Context) string {
	var s shutdownSignal
	if errors.As(context.Cause(ctx), &s) {
		return signalName(s.sig)
	}
	return "CANCELLED"
}

// withSignals returns a context cancelled by SIGINT or SIGTERM, recording the
// signal as the cause.
func withSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case s := <-sigCh:
			logger.Infof(ctx, "received %v, shutting down", s)
			cancel(shutdownSignal{sig: s})
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel(context.Canceled)
	}
}

func run(parent context.Context, cfg *config.Config, printState bool) error {
	if parent == nil {
		parent = context.Background()
	}
	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	} else {
		logger.Warnf(parent, "unknown log level %q, using info", cfg.LogLevel)
	}
	defer logger.Sync()

	hw, err := openHardware(cfg, printState)
	if err != nil {
		return err
	}
	defer hw.close()

	if printState {
		return printHouse(os.Stdout, cfg, hw.house(nil))
	}

	ctx, stop := withSignals(parent)
	defer stop()

	var publisher mqtt.Publisher = mqtt.Nop{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.Nop{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher, mqttStatus = p, p
	}
	defer publisher.Close()

	mirrors := []session.Mirror{publisher}
	if cfg.InfluxDB.URL != "" {
		rec, err := history.Connect(ctx, history.Config{
			URL:    cfg.InfluxDB.URL,
			Token:  cfg.InfluxDB.Token,
			Org:    cfg.InfluxDB.Org,
			Bucket: cfg.InfluxDB.Bucket,
		})
		if err != nil {
			// History is optional; keep controlling the house without it.
			logger.Warnf(ctx, "influxdb unavailable, history disabled: %v", err)
		} else {
			defer rec.Close()
			mirrors = append(mirrors, rec)
		}
	}

	conns := make(chan transport.Conn)
	if cfg.Listen != "" {
		ln, err := transport.ListenTCP(cfg.Listen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Listen, err)
		}
		defer ln.Close()
		go func() {
			if err := ln.Serve(ctx, conns); err != nil {
				logger.Errorf(ctx, "tcp listener: %v", err)
			}
		}()
		logger.Infof(ctx, "tcp client listener on %s", ln.Addr())
	}

	ticker := time.NewTicker(cfg.Session.Interval)
	defer ticker.Stop()

	var heartbeat <-chan time.Time
	if cfg.MQTT.Heartbeat > 0 && cfg.MQTT.Broker != "" {
		hb := time.NewTicker(cfg.MQTT.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	return runDaemon(ctx, cfg, daemonDeps{
		hardware:   hw.house,
		pir:        hw.pir,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		mirrors:    mirrors,
		now:        time.Now,
	}, ticker.C, heartbeat, conns)
}

// daemonDeps are the collaborators runDaemon wires together.
type daemonDeps struct {
	// hardware builds the house hardware around the alarm monitor.
	hardware   func(a house.Alarm) house.Hardware
	pir        gpio.EdgeWaiter
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	mirrors    []session.Mirror
	now        func() time.Time
}

// runDaemon runs until ctx is cancelled, then drives the house to its safe
// state and announces the shutdown.
func runDaemon(ctx context.Context, cfg *config.Config, d daemonDeps, tick, heartbeat <-chan time.Time, conns chan transport.Conn) error {
	monitor := alarm.New(d.pir, alarm.Options{
		IdlePoll: cfg.Alarm.IdlePoll,
		Debounce: cfg.Alarm.Debounce,
		Retry:    cfg.Alarm.Retry,
	})
	if cfg.Alarm.ArmOnStart {
		monitor.Arm()
	}

	h, err := house.Open(d.hardware(monitor), houseOptions(cfg, d.now))
	if err != nil {
		return fmt.Errorf("open house: %w", err)
	}

	heating := logic.NewController(cfg.Heating.DebounceTicks)

	tracker := status.NewTracker(d.now(), status.Config{
		Listen:          cfg.Listen,
		HTTPAddr:        cfg.HTTP,
		Broker:          cfg.MQTT.Broker,
		SessionMs:       cfg.Session.Interval.Milliseconds(),
		DebounceTicks:   cfg.Heating.DebounceTicks,
		SampleMs:        cfg.Temperature.SampleInterval.Milliseconds(),
		AlarmDebounceMs: cfg.Alarm.Debounce.Milliseconds(),
	})
	if state, err := h.ReadState(); err != nil {
		logger.Warnf(ctx, "initial state read: %v", err)
	} else {
		tracker.Update(state, heating.Counts())
	}

	publishStatus(ctx, d, tracker, "STARTUP", "", true)

	if err := monitor.Start(ctx); err != nil {
		closeErr := h.Close()
		return errors.Join(fmt.Errorf("start alarm: %w", err), closeErr)
	}

	var srv *web.Server
	if cfg.HTTP != "" {
		opts := web.Options{House: h}
		if cfg.WebSocketEnabled() {
			opts.WebSocket = transport.NewWSHandler(ctx, conns)
			opts.WebSocketPath = cfg.WebSocketPath
		}
		srv = web.New(cfg.HTTP, tracker, opts)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf(ctx, "http server error: %v", err)
			}
		}()
		logger.Infof(ctx, "http status server listening on %s", cfg.HTTP)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		watchStatus(ctx, d, tracker, heartbeat)
	}()

	loop := session.New(session.Config{
		House:         h,
		Heating:       heating,
		Tracker:       tracker,
		AlarmTriggers: monitor.Triggers,
		Mirrors:       d.mirrors,
		Now:           d.now,
	})

	logger.Infof(ctx, "started: listen=%s http=%s session=%v target=%d broker=%s",
		cfg.Listen, cfg.HTTP, cfg.Session.Interval, cfg.Heating.Target, cfg.MQTT.Broker)

	runErr := loop.Run(ctx, tick, conns)

	monitor.Wait()
	wg.Wait()

	var errs []error
	if runErr != nil {
		errs = append(errs, fmt.Errorf("session: %w", runErr))
	}
	if state, err := h.ReadState(); err == nil {
		tracker.Update(state, heating.Counts())
	}
	if err := h.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close house: %w", err))
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		cancel()
	}

	publishStatus(ctx, d, tracker, "SHUTDOWN", shutdownReason(ctx), true)

	return errors.Join(errs...)
}

// watchStatus keeps the MQTT connection flag current and publishes
// heartbeats until ctx is done.
func watchStatus(ctx context.Context, d daemonDeps, tracker *status.Tracker, heartbeat <-chan time.Time) {
	refresh := time.NewTicker(time.Second)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh.C:
			tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
		case <-heartbeat:
			snap := tracker.Snapshot()
			logger.Infof(ctx, "heartbeat: uptime=%v heater_on=%d heater_off=%d frames=%d",
				snap.Uptime().Truncate(time.Second), snap.Heating.HeaterOn, snap.Heating.HeaterOff, snap.Counters.FramesSent)
			publishStatus(ctx, d, tracker, "HEARTBEAT", "", false)
		}
	}
}

func publishStatus(ctx context.Context, d daemonDeps, tracker *status.Tracker, event, reason string, retained bool) {
	tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	snap := tracker.Snapshot()

	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		logger.Warnf(ctx, "failed to publish %s event: %v", event, err)
		return
	}
	logger.Debugf(ctx, "published %s event", event)
}

// printHouse writes a one-line summary of the current device state.
func printHouse(w io.Writer, cfg *config.Config, hw house.Hardware) error {
	state, err := house.Peek(hw, houseOptions(cfg, time.Now))
	fmt.Fprintf(w, "TV: %s, Lamp A: %d%%, Lamp B: %d%%, Heater: %d%%, Temperature: %d (target %d)\n",
		onOff(state.TV), state.LampA, state.LampB, state.Heater, state.MeasuredTemperature, state.TargetTemperature)
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	return nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func houseOptions(cfg *config.Config, now func() time.Time) house.Options {
	return house.Options{
		Period:            cfg.PWM.Period,
		TemperatureOffset: cfg.Temperature.Offset,
		SampleInterval:    cfg.Temperature.SampleInterval,
		Target:            cfg.Heating.Target,
		Now:               now,
	}
}

// boardHardware holds the opened devices of the real board.
type boardHardware struct {
	chip   io.Closer
	tv     gpio.Output
	led    gpio.Output
	pir    gpio.EdgeInput
	lampA  *pwm.SysfsChannel
	lampB  *pwm.SysfsChannel
	heater *pwm.SysfsChannel
	sensor *lm75.I2CSensor
}

// openHardware opens the board. With peek set the outputs are requested as
// they are, so reading them leaves the relays alone, and the PIR is skipped.
func openHardware(cfg *config.Config, peek bool) (*boardHardware, error) {
	chip, err := gpio.OpenChip(cfg.GPIO.Chip)
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	hw := &boardHardware{chip: chip}

	fail := func(what string, err error) (*boardHardware, error) {
		hw.close()
		return nil, fmt.Errorf("init %s: %w", what, err)
	}

	request := chip.RequestOutput
	if peek {
		request = chip.RequestAsIs
	}
	tv, err := request(cfg.GPIO.TV)
	if err != nil {
		return fail("tv output", err)
	}
	hw.tv = tv
	led, err := request(cfg.GPIO.LED)
	if err != nil {
		return fail("led output", err)
	}
	hw.led = led

	if !peek {
		pir, err := chip.RequestRisingEdge(cfg.GPIO.PIR)
		if err != nil {
			return fail("pir input", err)
		}
		hw.pir = pir
	}

	hw.lampA = pwm.Open(cfg.PWM.LampA)
	hw.lampB = pwm.Open(cfg.PWM.LampB)
	hw.heater = pwm.Open(cfg.PWM.Heater)
	hw.sensor = lm75.NewI2CSensor(cfg.LM75.Bus, cfg.LM75.Address)

	return hw, nil
}

func (b *boardHardware) house(a house.Alarm) house.Hardware {
	if a == nil {
		a = alarm.New(nil, alarm.DefaultOptions())
	}
	return house.Hardware{
		TV:     b.tv,
		LED:    b.led,
		LampA:  b.lampA,
		LampB:  b.lampB,
		Heater: b.heater,
		Sensor: b.sensor,
		Alarm:  a,
	}
}

// close releases every line, then the chip. Outputs already released by
// house.Close ignore the second Close.
func (b *boardHardware) close() {
	for _, c := range []io.Closer{b.tv, b.led, b.pir} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			logger.Warnf(context.Background(), "release gpio: %v", err)
		}
	}
	if err := b.chip.Close(); err != nil {
		logger.Warnf(context.Background(), "release gpio chip: %v", err)
	}
}
