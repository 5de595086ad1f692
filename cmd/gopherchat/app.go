package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/suPer8Hu/gopherchat/internal/ai"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/config"
	"github.com/suPer8Hu/gopherchat/internal/db"
	"github.com/suPer8Hu/gopherchat/internal/store/redisstore"
	"github.com/suPer8Hu/gopherchat/internal/store/sqlstore"
	"github.com/suPer8Hu/gopherchat/internal/stream"
)

// app is the wiring shared by every command that touches conversations.
type app struct {
	repo    *chat.Repository
	catalog *chat.Catalog
	ctrl    *stream.Controller
	close   func()
}

func newApp(ctx context.Context) (*app, error) {
	store, closeStore, err := openPersister(ctx, *cfg)
	if err != nil {
		return nil, err
	}

	repo, err := chat.NewRepository(ctx, store, chat.WithLogger(log))
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("load conversations: %w", err)
	}

	catalog := chat.DefaultCatalog()
	if cfg.AIProvider == "openrouter" {
		// a configured model pins every request, and generations record it
		catalog = catalog.Pinned(cfg.OpenRouterModel)
	}
	source := ai.NewSource(newRegistry(*cfg), cfg.AIProvider, ai.NewFallbackGenerator(), log)
	ctrl := stream.NewController(repo, source, catalog, log)

	return &app{repo: repo, catalog: catalog, ctrl: ctrl, close: closeStore}, nil
}

// openPersister picks the snapshot store named by cfg.StoreBackend.
func openPersister(ctx context.Context, cfg config.Config) (chat.Persister, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return chat.NewMemoryPersister(), func() {}, nil

	case config.StoreRedis:
		rdb := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		s := redisstore.New(rdb, cfg.RedisKey)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		log.Info("using redis store", "addr", cfg.RedisAddr, "key", cfg.RedisKey)
		return s, func() { _ = s.Close() }, nil

	default:
		gdb, err := db.Open(cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		s := sqlstore.New(gdb)
		if err := s.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("using sql store", "dialect", gdb.Dialector.Name())
		closeDB := func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return s, closeDB, nil
	}
}

// newRegistry registers both remote providers; cfg.AIProvider picks one.
func newRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		// catalog ids are OpenRouter names; Ollama keeps its own default
		if m == "" || strings.Contains(m, "/") {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})

	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenRouterModel
		}
		p := ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName)
		p.Log = log
		return p, nil
	})

	return reg
}
