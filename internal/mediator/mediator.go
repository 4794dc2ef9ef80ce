package mediator

import (
	"context"
	"database/sql"
	"fmt"

	"imageforge/config"
	"imageforge/internal/auth"
	"imageforge/internal/clients/pollinations"
	"imageforge/internal/clients/replicate"
	"imageforge/internal/library"
	"imageforge/internal/services"
	"imageforge/internal/storage"
	"imageforge/internal/store"
)

type App struct {
	api *services.Api
	gen *services.GeneratorService
	hub *services.Hub
	db  *sql.DB

	cancel context.CancelFunc
	// settings
	Config *config.Config
}

func NewApp(cfg config.Config) (*App, error) {

	ctx, cancel := context.WithCancel(context.Background())

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("error creating newapp: %w", err)
	}
	queries := store.NewQueries(db)

	objects, err := storage.NewDiskStore(cfg.Storage.BaseDir, cfg.Storage.PublicBaseUrl)
	if err != nil {
		cancel()
		db.Close()
		return nil, fmt.Errorf("error creating newapp: %w", err)
	}

	lib := library.New(queries, objects, cfg.Saves)
	verifier := auth.NewVerifier(cfg.Auth)
	hub := services.NewHub()

	providers := []services.Provider{
		pollinations.NewClient(cfg.Providers.Pollinations),
		replicate.NewClient(cfg.Providers.Replicate),
	}
	gen := services.NewGeneratorService(ctx, providers, cfg.Providers.Default, lib, hub, cfg.Saves.MaxConcurrent)
	gen.Run()

	api := services.NewApi(gen, lib, verifier, hub, objects.BaseDir(), cfg.Api)

	return &App{
		api:    api,
		gen:    gen,
		hub:    hub,
		db:     db,
		cancel: cancel,
		Config: &cfg,
	}, nil
}

func (a *App) Start() {
	a.api.Start()
}

func (a *App) Shutdown() {
	a.cancel()
	if a.gen != nil {
		a.gen.Shutdown()
	}
	if a.hub != nil {
		a.hub.Shutdown()
	}
	if a.db != nil {
		a.db.Close()
	}
}
