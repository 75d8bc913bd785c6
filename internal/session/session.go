// Package session assembles one relationship-query session from
// configuration: the chunk source, the lineage store and cache, and the
// engine service over them.
package session

import (
	"fmt"
	"log"

	"github.com/scrypster/kinship/internal/config"
	"github.com/scrypster/kinship/internal/engine"
	"github.com/scrypster/kinship/internal/lineage"
	"github.com/scrypster/kinship/internal/storage"
	"github.com/scrypster/kinship/internal/storage/filesource"
	"github.com/scrypster/kinship/internal/storage/httpsource"
	"github.com/scrypster/kinship/internal/storage/postgres"
	"github.com/scrypster/kinship/internal/storage/sqlite"
)

// Session is a configured query session.
type Session struct {
	Service *engine.Service
	Source  storage.ChunkSource
	Class   lineage.DeviceClass
}

// OpenSource creates the chunk source selected by cfg.Source.Kind.
func OpenSource(cfg *config.Config) (storage.ChunkSource, error) {
	sc := cfg.Source
	switch sc.Kind {
	case config.SourceFile:
		return filesource.New(sc.Dir), nil

	case config.SourceHTTP:
		hc := httpsource.DefaultConfig(sc.BaseURL)
		if sc.Timeout > 0 {
			hc.Timeout = sc.Timeout
		}
		hc.RequestsPerSecond = sc.RequestsPerSecond
		hc.Burst = sc.Burst
		return httpsource.New(hc, nil)

	case config.SourceSQLite:
		return sqlite.NewStore(sc.SQLitePath)

	case config.SourcePostgres:
		return postgres.NewStore(sc.PostgresDSN)

	default:
		return nil, fmt.Errorf("session: unknown source kind %q", sc.Kind)
	}
}

// Open builds a session. The cache capacity follows the configured device
// class; queries default to cfg.Query.MaxDepth.
func Open(cfg *config.Config) (*Session, error) {
	src, err := OpenSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("session: open %s source: %w", cfg.Source.Kind, err)
	}
	return New(cfg, src), nil
}

// New builds a session over an existing source.
func New(cfg *config.Config, src storage.ChunkSource) *Session {
	class := cfg.Cache.Class()
	capacity := cfg.Cache.Capacity()

	store := lineage.NewStore(src)
	cache := lineage.NewCache(store, capacity)
	svc := engine.NewService(store, cache, engine.WithDefaultMaxDepth(cfg.Query.MaxDepth))

	log.Printf("session: %s source, %s cache of %d lineages, max depth %d",
		cfg.Source.Kind, class, capacity, svc.DefaultMaxDepth())

	return &Session{Service: svc, Source: src, Class: class}
}

// Close releases the source's connections, if it holds any.
func (s *Session) Close() error {
	if c, ok := s.Source.(storage.Closer); ok {
		return c.Close()
	}
	return nil
}
