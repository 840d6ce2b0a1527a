package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/zone-heater/db"
	"github.com/thatsimonsguy/zone-heater/internal/api"
	"github.com/thatsimonsguy/zone-heater/internal/config"
	"github.com/thatsimonsguy/zone-heater/internal/controlloop"
	"github.com/thatsimonsguy/zone-heater/internal/datadog"
	"github.com/thatsimonsguy/zone-heater/internal/firmware"
	"github.com/thatsimonsguy/zone-heater/internal/gpio"
	"github.com/thatsimonsguy/zone-heater/internal/logging"
	"github.com/thatsimonsguy/zone-heater/internal/mqtt"
	"github.com/thatsimonsguy/zone-heater/internal/notifications"
	"github.com/thatsimonsguy/zone-heater/internal/sensor"
	"github.com/thatsimonsguy/zone-heater/internal/valve"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("base_path", cfg.MQTT.BasePath).
		Msg("Starting zone heater controller")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	datadog.InitMetrics(cfg.Datadog)
	defer datadog.Close()

	registry, err := cfg.Registry()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid zone configuration")
	}

	dbConn, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open history database")
	}
	defer dbConn.Close()

	recorder := db.NewRecorder(dbConn)
	recorder.Start(ctx)

	relay, err := gpio.NewRelay(cfg.RelayConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open heater relay")
	}
	defer relay.Close()

	valves, err := valve.New(valve.NewPWM(cfg.Valves.PWMChip), cfg.Valves.Servos, cfg.ValveConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up valve servos")
	}
	defer valves.Close()
	if err := valves.Home(); err != nil {
		log.Warn().Err(err).Msg("Some valves could not be homed")
	}

	sensors := sensor.NewW1Source(cfg.Sensors.DevicesDir, cfg.Sensors.Channels)
	go sensors.Poll(ctx, time.Duration(cfg.Sensors.PollSeconds)*time.Second)

	transport, err := mqtt.NewClient(cfg.MQTT)
	if err != nil {
		log.Fatal().Err(err).Str("broker", cfg.MQTT.Broker).Msg("Failed to create MQTT client")
	}
	defer transport.Close()

	notifier := notifications.New(cfg.NtfyServer, cfg.NtfyTopic)
	updater := firmware.New(ctx, cfg.FirmwarePath, notifier)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-updater.Done():
				if err == nil {
					log.Info().Str("path", cfg.FirmwarePath).Msg("New firmware staged, restart the service to apply it")
				}
			}
		}
	}()

	loop := controlloop.New(controlloop.Deps{
		Registry:   registry,
		Source:     sensors,
		Heater:     relay,
		Valves:     valves,
		Transport:  transport,
		Firmware:   updater,
		Enumerator: sensors,
		Recorder:   recorder,
		Hysteresis: cfg.Hysteresis,
		Cadence: controlloop.Cadence{
			Telemetry: cfg.Cadence.Telemetry(),
			Control:   cfg.Cadence.Control(),
			Keepalive: cfg.Cadence.Keepalive(),
		},
	})

	server := api.NewServer(dbConn, loop)
	go func() {
		if err := server.Start(ctx, cfg.HTTPPort); err != nil {
			log.Error().Err(err).Msg("REST API server stopped")
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	if err := notifier.Send("Zone heater started", "Controller is online"); err != nil {
		log.Warn().Err(err).Msg("Failed to send startup notification")
	}

	loop.Run(ctx, transport.Events(), ticker.C)

	recorder.Wait()
	log.Info().Msg("Zone heater controller stopped")
}
