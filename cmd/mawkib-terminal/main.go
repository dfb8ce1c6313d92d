package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/hajjtech/mawkib/internal/config"
	"github.com/hajjtech/mawkib/internal/db"
	"github.com/hajjtech/mawkib/internal/httpapi"
	"github.com/hajjtech/mawkib/internal/mawkib/codec"
	"github.com/hajjtech/mawkib/internal/mawkib/metrics"
	"github.com/hajjtech/mawkib/internal/mawkib/sensor"
	"github.com/hajjtech/mawkib/internal/mawkib/sensor/sim"
	"github.com/hajjtech/mawkib/internal/mawkib/service"
	"github.com/hajjtech/mawkib/internal/mawkib/store/sqlite"
)

func main() {
	var (
		configPath = pflag.String("config", "", "path to YAML config file")
		addr       = pflag.String("addr", "", "listen address (overrides config)")
		seedDev    = pflag.Bool("seed-dev", false, "seed dev pilgrims on startup")
		hashPIN    = pflag.String("hash-pin", "", "print the bcrypt hash of the given PIN and exit")
	)
	pflag.Parse()

	logger := log.New(os.Stdout, "mawkib-terminal ", log.LstdFlags|log.LUTC)

	if *hashPIN != "" {
		h, err := service.HashPIN(*hashPIN)
		if err != nil {
			logger.Fatalf("hash-pin: %v", err)
		}
		os.Stdout.WriteString(h + "\n")
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Card codec. Dev gets a throwaway secret so bring-up works without
	// provisioning; prod validation already required a real one.
	secret := cfg.CardKeySecret
	if secret == "" {
		secret = "mawkib-dev-insecure-secret"
		logger.Printf("WARNING: using built-in dev card key secret")
	}
	cdc, err := codec.New(secret)
	if err != nil {
		logger.Fatalf("init codec: %v", err)
	}

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if *seedDev {
		if cfg.Env != "dev" {
			logger.Fatalf("--seed-dev is only allowed with env=dev")
		}
		if err := db.SeedDev(ctx, conn, cdc); err != nil {
			logger.Fatalf("seed dev data: %v", err)
		}
		logger.Printf("dev pilgrims seeded")
	}

	writer := db.NewWorker(conn)
	defer writer.Close()

	pilgrims := sqlite.NewPilgrimStore(conn, writer)
	attempts := sqlite.NewAttemptStore(conn, writer)
	trips := sqlite.NewTripStore(conn, writer)

	// Peripherals. Hardware sensor drivers register here; dev runs on
	// simulated sensors.
	var (
		finger sensor.FingerprintSensor
		camera sensor.Camera
		door   sensor.DoorSensor
		cards  sensor.CardWriter
	)
	if cfg.Env == "dev" {
		simDoor := &sim.Door{}
		simDoor.SetClosed(true)
		finger = &sim.Fingerprint{Default: sensor.MatchResult{Matched: true}}
		camera = &sim.Camera{}
		door = simDoor
		cards = &sim.CardWriter{}
		logger.Printf("dev mode: simulated sensors attached")
	} else {
		logger.Fatalf("no hardware sensor drivers registered for env=prod")
	}

	var pins service.PINVerifier
	if cfg.AdminPINHash != "" {
		pins, err = service.NewBcryptPINVerifier(cfg.AdminPINHash)
		if err != nil {
			logger.Fatalf("init pin verifier: %v", err)
		}
	} else {
		devHash, err := service.HashPIN("123456")
		if err != nil {
			logger.Fatalf("init dev pin: %v", err)
		}
		pins, _ = service.NewBcryptPINVerifier(devHash)
		logger.Printf("WARNING: using built-in dev supervisor PIN")
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	auth := service.NewAuthenticator(cdc, pilgrims, finger, attempts, logger, m)
	recon := service.NewReconciler(camera, cfg.SampleWindow, cfg.SampleQuorum, logger, m)
	ctrl := service.NewTripController(auth, recon, door, pins, trips, logger, m,
		service.TripControllerConfig{
			HeadcountWindows: cfg.HeadcountWindows,
			DoorTimeout:      cfg.DoorTimeout,
			DoorPollInterval: cfg.DoorPollInterval,
		})
	enroller := service.NewEnroller(cdc, pilgrims, finger, cards, logger)

	pruner := service.NewAttemptPruner(attempts, service.PrunerConfig{
		RetentionDays: cfg.AttemptRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:     logger,
		Addr:       cfg.HTTPAddr,
		Controller: ctrl,
		Enroller:   enroller,
		Trips:      trips,
		Registry:   registry,
	})

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
