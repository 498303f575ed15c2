// cmd/chassisd/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tamzrod/chassis-manager/internal/blade"
	"github.com/tamzrod/chassis-manager/internal/chassis"
	"github.com/tamzrod/chassis-manager/internal/config"
	"github.com/tamzrod/chassis-manager/internal/logging"
	"github.com/tamzrod/chassis-manager/internal/metrics"
	"github.com/tamzrod/chassis-manager/internal/poller"
	"github.com/tamzrod/chassis-manager/internal/writer"
)

func main() {
	if len(os.Args) < 2 {
		logging.ConfigureRuntime()
		log.Fatal().Msg("usage: chassisd <config.yaml|config.toml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.ConfigureRuntime()
		log.Fatal().Err(err).Msg("config load failed")
	}

	logging.Configure(logging.ProfileRuntime, cfg.Chassis.Logging.Level)

	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validation failed")
	}
	config.Normalize(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Metrics (optional)
	// --------------------

	var (
		obs    blade.Observer
		health chassis.HealthObserver
	)
	if addr := cfg.Chassis.Metrics.Listen; addr != "" {
		m, err := metrics.New()
		if err != nil {
			log.Fatal().Err(err).Msg("metrics setup failed")
		}
		obs, health = m, m

		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("listen", addr).Msg("metrics server stopped")
			}
		}()
		defer srv.Close()
		log.Info().Str("listen", addr).Msg("metrics enabled")
	}

	// --------------------
	// Lines + blade clients
	// --------------------

	reg, closeLines, err := chassis.Build(cfg, obs, chassis.OpenSerial)
	if err != nil {
		log.Fatal().Err(err).Msg("chassis build failed")
	}
	defer closeLines()

	// ---- status memory clients (shared by every blade) ----
	clients, closeWriters, err := writer.BuildEndpointClients(cfg.Chassis.StatusMemory)
	if err != nil {
		log.Fatal().Err(err).Msg("status memory client failed")
	}
	defer closeWriters()

	// --------------------
	// Build per-blade pipelines
	// --------------------

	for _, b := range cfg.Chassis.Blades {
		client, _ := reg.Get(b.Slot)

		// ---- poller ----
		p, err := poller.Build(cfg.Chassis.Poll, client)
		if err != nil {
			log.Fatal().Err(err).Uint8("slot", b.Slot).Msg("poller build failed")
		}

		// ---- status plan ----
		plan, err := writer.BuildPlan(b, cfg.Chassis.StatusMemory)
		if err != nil {
			log.Fatal().Err(err).Uint8("slot", b.Slot).Msg("status plan failed")
		}
		statusWriter, _ := writer.NewDeviceStatusWriter(plan, clients)

		// ---- channel between poller and mirror ----
		out := make(chan poller.PollResult)

		m := &chassis.Mirror{
			Slot:        b.Slot,
			InletSensor: inletSensor(cfg),
			Writer:      statusWriter,
			Health:      health,
		}
		go m.Run(ctx, out)

		// poller producer
		go p.Run(ctx, out)
	}

	log.Info().Int("blades", len(cfg.Chassis.Blades)).Msg("chassis manager running")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	for _, c := range reg.All() {
		c.Logoff()
	}
}

// inletSensor is the sensor mirrored as inlet temperature.
func inletSensor(cfg *config.Config) byte {
	if s := cfg.Chassis.Sensors.Inlet.Sensor; s != 0 {
		return s
	}
	return config.DefaultInletSensor
}
