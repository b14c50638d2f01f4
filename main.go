package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/vitalsgw/config"
	"github.com/mjasion/balena-home/vitalsgw/device"
	"github.com/mjasion/balena-home/vitalsgw/mqtt"
	"github.com/mjasion/balena-home/vitalsgw/pairing"
	"github.com/mjasion/balena-home/vitalsgw/panel"
	"github.com/mjasion/balena-home/vitalsgw/pkg/buffer"
	pkgmetrics "github.com/mjasion/balena-home/vitalsgw/pkg/metrics"
	"github.com/mjasion/balena-home/vitalsgw/pkg/profiling"
	"github.com/mjasion/balena-home/vitalsgw/pkg/telemetry"
	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
	"github.com/mjasion/balena-home/vitalsgw/radio"
	"github.com/mjasion/balena-home/vitalsgw/rtc"
	"github.com/mjasion/balena-home/vitalsgw/sleep"
	"github.com/mjasion/balena-home/vitalsgw/timeservice"
)

func main() {
	configPath := flag.String("c", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting vitals gateway")
	cfg.PrintConfig(logger)

	profiler, err := profiling.Start(&cfg.Profiling, logger)
	if err != nil {
		logger.Error("failed to initialize profiler", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			logger.Error("failed to shutdown profiler", zap.Error(err))
		}
	}()

	ctx := context.Background()
	otelProviders, err := telemetry.InitProviders(ctx, &cfg.OpenTelemetry, logger)
	if err != nil {
		logger.Error("failed to initialize OpenTelemetry providers", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown OpenTelemetry providers", zap.Error(err))
		}
	}()

	ctx, mainSpan := otel.Tracer("main").Start(ctx, "main.run")
	defer mainSpan.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	categories := cfg.BLE.SensorCategories()
	store := rtc.NewFileStore(cfg.Storage.Path, categories, logger)

	bleRadio, err := radio.NewBlueZ(cfg.BLE.AdapterID, categories, logger)
	if err != nil {
		logger.Error("failed to initialize BLE radio", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if err := bleRadio.Close(); err != nil {
			logger.Error("failed to close BLE radio", zap.Error(err))
		}
	}()

	if cfg.TimeService.Enabled {
		if err := timeservice.Register(bleRadio.Adapter(), cfg.TimeService.Value, logger); err != nil {
			logger.Error("failed to register time service", zap.Error(err))
			os.Exit(1)
		}
		adv, err := timeservice.Advertise(bleRadio.Adapter(), cfg.TimeService.DeviceName, logger)
		if err != nil {
			logger.Warn("advertising disabled", zap.Error(err))
		} else {
			defer adv.Stop()
		}
	}

	var presses chan types.Press
	var indicator pairing.Indicator = panel.NewLogIndicator(logger)
	if cfg.Panel.Enabled {
		led, button, err := panel.Open(cfg.Panel.LEDPin, cfg.Panel.ButtonPin, panel.Thresholds{
			Debounce: time.Duration(cfg.Panel.DebounceMillis) * time.Millisecond,
			Medium:   time.Duration(cfg.Panel.MediumPressMillis) * time.Millisecond,
			Long:     time.Duration(cfg.Panel.LongPressMillis) * time.Millisecond,
		}, logger)
		if err != nil {
			logger.Error("failed to initialize GPIO panel", zap.Error(err))
			os.Exit(1)
		}
		defer led.Close()
		indicator = led
		presses = make(chan types.Press, 1)

		wg.Add(1)
		go func() {
			defer wg.Done()
			button.Run(ctx, presses)
		}()
	} else {
		logger.Info("GPIO panel disabled, indicator is logged")
	}

	deps := device.Deps{
		Radio:     bleRadio,
		Indicator: indicator,
		Store:     store,
		Presses:   presses,
	}

	var pusher *pkgmetrics.Pusher
	var readings *buffer.RingBuffer[types.Reading]
	if cfg.Prometheus.Enabled {
		readings = buffer.New[types.Reading](cfg.Prometheus.BufferSize, logger)
		logger.Info("ring buffer created", zap.Int("capacity", cfg.Prometheus.BufferSize))

		pusher = pkgmetrics.New(pkgmetrics.Config{
			URL:          cfg.Prometheus.URL,
			Username:     cfg.Prometheus.Username,
			Password:     cfg.Prometheus.Password,
			PushInterval: time.Duration(cfg.Prometheus.PushIntervalSeconds) * time.Second,
			BatchSize:    cfg.Prometheus.BatchSize,
			Labels:       cfg.Prometheus.Labels,
		}, readings, logger)
		deps.Readings = readings

		wg.Add(1)
		go func() {
			defer wg.Done()
			pusher.Start(ctx)
		}()
	}

	if cfg.MQTT.Enabled {
		mqttClient := mqtt.NewClient(cfg.MQTT, logger)
		connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
		err := mqttClient.Connect(connectCtx)
		connectCancel()
		if err != nil {
			logger.Warn("mqtt broker unreachable, will keep retrying", zap.Error(err))
		}
		defer mqttClient.Disconnect()
		deps.Publisher = mqttClient
	}

	sleeper := sleep.New(logger)
	defer sleeper.Stop()
	deps.Sleeper = sleeper

	gateway, err := device.New(pairing.Config{
		RSSIFloor:      int16(cfg.BLE.RSSIFloor),
		ScanWindow:     cfg.BLE.ScanWindow(),
		WakeInterval:   cfg.Sleep.WakeInterval(),
		PairingTimeout: cfg.BLE.PairingTimeout(),
	}, deps, logger)
	if err != nil {
		logger.Error("failed to initialize device", zap.Error(err))
		os.Exit(1)
	}

	runErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr <- gateway.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-runErr:
		if err != nil {
			logger.Error("device loop failed", zap.Error(err))
		}
	}

	cancel()

	logger.Info("waiting for goroutines to finish")
	wg.Wait()

	if pusher != nil {
		logger.Info("performing final metrics push", zap.Int("reading_count", readings.Len()))
		finalCtx, finalCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer finalCancel()
		if err := pusher.Flush(finalCtx); err != nil {
			logger.Error("failed final metrics push", zap.Error(err))
		}
	}

	logger.Info("vitals gateway stopped")
}
