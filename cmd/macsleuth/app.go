package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"macsleuth/internal/adapter"
	"macsleuth/internal/config"
	"macsleuth/internal/handler"
	"macsleuth/internal/hub"
	"macsleuth/internal/loader"
	"macsleuth/internal/logger"
	"macsleuth/internal/repository"
	"macsleuth/internal/repository/file"
	"macsleuth/internal/repository/sqlite"
	"macsleuth/internal/service"
)

// app holds the wired components for one command invocation
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *adapter.Registry
	store    repository.StateStore
	journal  repository.SuggestionJournal
	svc      *service.LearningService
	closers  []io.Closer
}

type appOptions struct {
	// requirePeople fails startup when the people file cannot be read
	requirePeople bool
	// dryRun keeps state in memory; nothing is written
	dryRun bool
}

func loadConfig() (*config.Config, string, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if debugFlag {
		cfg.Log.Debug = true
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log := logger.Component("main")
	if path != "" {
		log.Debug().Str("path", path).Msg("Config loaded")
	}

	a := &app{cfg: cfg, log: log}

	if err := a.openStores(opts.dryRun); err != nil {
		a.Close()
		return nil, err
	}

	people, err := loadPeople(cfg.PeopleFile)
	if err != nil {
		if opts.requirePeople {
			a.Close()
			return nil, err
		}
		log.Warn().Err(err).Msg("People file unavailable, continuing without identities")
	}

	if err := a.buildRegistry(); err != nil {
		a.Close()
		return nil, err
	}

	a.svc, err = service.NewLearningService(ctx, a.registry, a.store, service.LearningOptions{
		Engine:     cfg.CorrelationConfig(),
		HistoryCap: cfg.Engine.HistoryCap,
		People:     people,
		Journal:    a.journal,
	}, logger.Get())
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *app) openStores(dryRun bool) error {
	cfg := a.cfg

	var sqliteRepo *sqlite.Repository
	switch cfg.State.Backend {
	case config.BackendSQLite:
		repo, err := openDatabase(cfg.State.Path)
		if err != nil {
			return fmt.Errorf("open state database: %w", err)
		}
		a.closers = append(a.closers, repo)
		a.store = repo
		sqliteRepo = repo
	default:
		store, err := file.NewWithFormat(cfg.State.Path, cfg.State.Format)
		if err != nil {
			return err
		}
		a.store = store
	}

	switch {
	case cfg.Journal.Path != "" && (sqliteRepo == nil || cfg.Journal.Path != cfg.State.Path):
		repo, err := openDatabase(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		a.closers = append(a.closers, repo)
		a.journal = repo
	case sqliteRepo != nil:
		a.journal = sqliteRepo
	}

	if dryRun {
		snap, err := a.store.Load(context.Background())
		if err != nil && !errors.Is(err, repository.ErrCorruptState) {
			return fmt.Errorf("load state: %w", err)
		}
		a.store = repository.NewMemoryStore(snap)
		a.journal = nil
	}

	return nil
}

func (a *app) buildRegistry() error {
	cfg := a.cfg
	base := logger.Get()
	a.registry = adapter.NewRegistry(base)

	targets := cfg.Scanner.Targets
	if len(targets) == 0 && cfg.Scanner.AutoTargets {
		detected, err := adapter.DetectLocalSubnets()
		if err != nil {
			a.log.Warn().Err(err).Msg("Subnet detection failed")
		}
		a.log.Info().Strs("targets", detected).Msg("Using detected local subnets")
		targets = detected
	}

	if len(targets) > 0 {
		scan := cfg.EffectiveScan()
		scanner := adapter.NewNmapScanner(targets, base,
			adapter.WithPortRange(scan.Ports),
			adapter.WithOSDetection(scan.OSDetection),
			adapter.WithSkipHostDiscovery(cfg.Scanner.SkipHostDiscovery),
			adapter.WithTimeout(scan.Timeout),
			adapter.WithHostTimeout(scan.HostTimeout),
		)
		if err := a.registry.RegisterSource(scanner); err != nil {
			return err
		}
	} else {
		a.log.Warn().Msg("No scanner targets configured, cycles will see no devices")
	}

	if n := cfg.Neighbors; n != nil {
		a.registry.RegisterEnricher(adapter.NewNeighborProbe(adapter.NeighborConfig{
			Host:        n.Host,
			Port:        n.Port,
			User:        n.User,
			KeyFile:     n.KeyFile,
			PasswordEnv: n.PasswordEnv,
			Command:     n.Command,
			Timeout:     n.Timeout.Duration(),
		}, base))
	}

	if p := cfg.Presence; p != nil {
		token := os.Getenv(p.TokenEnv)
		if token == "" {
			return fmt.Errorf("presence token variable %s is empty", p.TokenEnv)
		}
		ha := adapter.NewHomeAssistant(p.BaseURL, token, p.Timeout.Duration(), base)
		if err := a.registry.RegisterPresence(ha); err != nil {
			return err
		}
	}

	if t := cfg.Tado; t != nil {
		username, password := os.Getenv(t.UsernameEnv), os.Getenv(t.PasswordEnv)
		if username == "" || password == "" {
			return fmt.Errorf("tado credential variables %s and %s must be set", t.UsernameEnv, t.PasswordEnv)
		}
		var secret string
		if t.ClientSecretEnv != "" {
			secret = os.Getenv(t.ClientSecretEnv)
		}
		tado := adapter.NewTado(adapter.TadoConfig{
			BaseURL:      t.BaseURL,
			AuthURL:      t.AuthURL,
			ClientID:     t.ClientID,
			ClientSecret: secret,
			Username:     username,
			Password:     password,
			TokenFile:    t.TokenFile,
			Timeout:      t.Timeout.Duration(),
		}, base)
		if err := a.registry.RegisterPresence(tado); err != nil {
			return err
		}
	}

	return nil
}

// Close releases databases opened by the app
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openDatabase(path string) (*sqlite.Repository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return sqlite.New(path)
}

func loadPeople(path string) ([]loader.Person, error) {
	doc, err := loader.LoadPeople(path)
	if err != nil {
		return nil, fmt.Errorf("load people: %w", err)
	}
	return doc.People, nil
}

// startServer serves the HTTP API and the suggestion event stream until ctx
// is done. The caller owns shutdown of the returned server.
func (a *app) startServer(ctx context.Context, addr string) *http.Server {
	base := logger.Get()

	sseHub := hub.New(base)
	go sseHub.Run(ctx)

	events := make(chan service.Event, 100)
	a.svc.EventBus().Subscribe(events)
	go func() {
		defer a.svc.EventBus().Unsubscribe(events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				sseHub.Broadcast(ev)
			}
		}
	}()

	mux := http.NewServeMux()
	handler.NewLearningHandler(a.svc, base).Register(mux)
	mux.Handle("GET /events", sseHub)

	log := logger.Component("http")
	server := &http.Server{
		Addr:        addr,
		Handler:     handler.Chain(mux, handler.Recover(log), handler.Logger(log)),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		a.log.Info().Str("addr", addr).Msg("HTTP API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return server
}
