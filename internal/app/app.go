package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"arstudio/internal/config"
	"arstudio/internal/core"
	"arstudio/internal/objstore"
	"arstudio/internal/pairing"
	"arstudio/internal/server"
	"arstudio/internal/store"
	"arstudio/internal/tokens"
)

// App is the application layer between the CLI and the HTTP server.
// It constructs all dependencies from config, exposes high-level operations,
// and manages resource lifecycles on Close.
type App struct {
	cfg     *config.Config
	logger  core.Logger
	client  *store.Client
	objects objstore.ObjectStore
	pairing *pairing.Store
	tokens  *tokens.Issuer
	server  *server.Server
	logFile *os.File
}

// NewApp creates a fully wired App from the given config.
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	runID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	clock := core.RealClock{}
	idgen := core.UUIDGenerator{}

	client, err := store.NewClient(ctx, cfg, logger, clock, idgen)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating store client: %w", err)
	}

	objects, err := objstore.NewObjectStoreFromConfig(ctx, cfg.ObjectStore)
	if err != nil {
		client.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating object store: %w", err)
	}

	codes := client.DefaultDatabase().Collection("pairing_codes")
	pairingStore := pairing.NewStore(codes, clock)

	var issuer *tokens.Issuer
	if cfg.Tokens.Secret != "" {
		issuer, err = tokens.NewIssuer(cfg.Tokens.Secret, cfg.TokenTTL(), clock)
		if err != nil {
			client.Close()
			logFile.Close()
			return nil, fmt.Errorf("creating token issuer: %w", err)
		}
	} else {
		logger.Warn("no API secret configured, token routes disabled")
	}

	srv := server.New(client, objects, pairingStore, issuer, server.HeaderOrgResolver{}, logger, clock)

	return &App{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		objects: objects,
		pairing: pairingStore,
		tokens:  issuer,
		server:  srv,
		logFile: logFile,
	}, nil
}

// Logger exposes the wired logger for CLI commands.
func (a *App) Logger() core.Logger { return a.logger }

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Router() }

// Serve runs the HTTP server until ctx is canceled, then shuts it down
// gracefully.
func (a *App) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.cfg.ListenAddr, "backend", a.client.Backend().String())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// GeneratePairingCode creates a pairing code for the given organization.
func (a *App) GeneratePairingCode(ctx context.Context, orgID string) (*pairing.Code, error) {
	return a.pairing.Generate(ctx, orgID)
}

// Backend reports which storage backend the app selected.
func (a *App) Backend() core.Backend { return a.client.Backend() }

// Close releases the store client and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.client.Close(); err != nil {
		firstErr = fmt.Errorf("closing store client: %w", err)
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}
