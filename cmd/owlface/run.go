package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/owlfacerec/owlface/config"
	"github.com/owlfacerec/owlface/pkg/imaging"
	"github.com/owlfacerec/owlface/pkg/inference"
	"github.com/owlfacerec/owlface/pkg/models"
	"github.com/owlfacerec/owlface/pkg/observability"
	"github.com/owlfacerec/owlface/pkg/search"
	"github.com/owlfacerec/owlface/pkg/server"
	"github.com/owlfacerec/owlface/pkg/store/memory"
	"github.com/owlfacerec/owlface/pkg/store/postgres"
	"github.com/owlfacerec/owlface/pkg/targets"
)

// run is the entrypoint for the owlface server
func run() {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		log.Fatalf("Error configuring owlface: %s", err)
	}

	handleCLIOptions(cfg)

	log.Infof("Starting owlface server version %s", config.VersionString)

	config.SetLogLevel(cfg)

	ctx := context.Background()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		log.Fatalf("Error configuring tracing: %s", err)
	}

	appState := NewAppState(ctx, cfg)

	srv := server.Create(appState)
	done := setupSignalHandler(srv, appState, shutdownTracing)

	log.Infof("Listening on: %s", srv.Addr)
	err = srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}

	<-done
}

// NewAppState connects to postgres, loads every registered target into memory and wires
// the registration and search pipeline. Any failure is fatal: serving searches from a
// partially loaded store would return wrong answers.
func NewAppState(ctx context.Context, cfg *config.Config) *models.AppState {
	appState := &models.AppState{
		Config: cfg,
	}

	db, err := postgres.NewPostgresConn(appState)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := postgres.CreateSchema(ctx, appState, db); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}
	targetStore := postgres.NewTargetStoreDAO(db)
	appState.TargetStore = targetStore

	extractor := inference.NewClient(cfg.Inference)
	if cfg.Inference.CheckReady {
		readyCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Inference.Timeout)*time.Second)
		err := extractor.Ready(readyCtx)
		cancel()
		if err != nil {
			log.Fatalf("Inference server is not ready: %v", err)
		}
		log.Infof("Model %s is ready at %s", cfg.Inference.ModelName, cfg.Inference.ServerURL)
	}

	store := memory.NewRecordStore(cfg.Embedding.Dimensions)
	synchronizer := targets.NewSynchronizer(store, targetStore)
	if err := synchronizer.Load(ctx); err != nil {
		log.Fatalf("Failed to load targets: %v", err)
	}

	appState.TargetService = targets.NewService(
		imaging.NewDecoder(cfg.Preprocessing.MaxPixels).Decode,
		imaging.NewPreprocessor(cfg.Preprocessing),
		extractor,
		store,
		synchronizer,
		search.NewEngine(cfg.Search.Workers, cfg.Search.MinChunkSize),
	)

	return appState
}

// handleCLIOptions handles CLI options that don't require the server to run
func handleCLIOptions(cfg *config.Config) {
	if showVersion {
		fmt.Println(config.VersionString)
		os.Exit(0)
	}
	if dumpConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			log.Fatalf("Error dumping config: %s", err)
		}
		fmt.Print(string(out))
		os.Exit(0)
	}
}

// setupSignalHandler drains the HTTP server on SIGINT/SIGTERM, then closes the database
// connection and flushes traces. The returned channel is closed once that is done.
func setupSignalHandler(
	srv *http.Server,
	appState *models.AppState,
	shutdownTracing observability.ShutdownFunc,
) <-chan struct{} {
	done := make(chan struct{})
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer close(done)
		sig := <-signalCh
		log.Infof("Received %s, shutting down", sig)

		timeout := time.Duration(appState.Config.Server.ShutdownTimeout) * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("Error shutting down HTTP server: %v", err)
		}
		if err := appState.TargetStore.Close(); err != nil {
			log.Errorf("Error closing TargetStore connection: %v", err)
		}
		if err := shutdownTracing(ctx); err != nil {
			log.Errorf("Error flushing traces: %v", err)
		}
	}()
	return done
}
