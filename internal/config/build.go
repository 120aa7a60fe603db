package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/roach88/fedq/internal/endpoint"
	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/member"
	"github.com/roach88/fedq/internal/member/rest"
	"github.com/roach88/fedq/internal/member/sparqlhttp"
	"github.com/roach88/fedq/internal/store"
)

// BuildOptions are the runtime collaborators of the members a Config
// describes.
type BuildOptions struct {
	// Secrets resolves credential lookups. Default: environment variables.
	Secrets member.Resolver
	// Client is used by HTTP members. Default: http.DefaultClient.
	Client *http.Client
	Logger *slog.Logger
}

// Registry opens every configured member and registers it. Local stores
// are opened here; closing the registry closes them.
func (c *Config) Registry(opts BuildOptions) (*member.Registry, error) {
	if opts.Secrets == nil {
		opts.Secrets = member.EnvResolver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	reg := member.NewRegistry(member.WithRegistryLogger(opts.Logger))
	for _, m := range c.Members {
		h := member.Handle{ID: m.ID, Ref: m.Ref, Kind: m.Kind}
		conn, err := c.connector(m, opts)
		if err == nil {
			if m.Queryable {
				h.Kind = member.KindSPARQL
			}
			err = reg.Register(h, conn, m.Descriptor)
		}
		if err != nil {
			return nil, errors.Join(fmt.Errorf("member %s: %w", m.ID, err), reg.Close())
		}
		opts.Logger.Debug("member registered",
			"member", m.ID,
			"kind", h.Kind,
			"ref", h.Ref)
	}
	if c.Default != "" {
		if err := reg.SetDefault(c.Default); err != nil {
			return nil, errors.Join(err, reg.Close())
		}
	}
	return reg, nil
}

func (c *Config) connector(m Member, opts BuildOptions) (member.Connector, error) {
	switch m.Kind {
	case member.KindLocal:
		s, err := store.Open(c.StorePath(m))
		if err != nil {
			return nil, err
		}
		if !m.Queryable {
			return s, nil
		}
		ep, err := endpoint.New(m.ID, s, endpoint.WithLogger(opts.Logger))
		if err != nil {
			return nil, errors.Join(err, s.Close())
		}
		return ep, nil

	case member.KindSPARQL:
		return sparqlhttp.NewConnector(sparqlhttp.Config{
			Endpoint: m.Endpoint,
			Auth:     sparqlhttp.Auth(m.Auth),
			Secrets:  opts.Secrets,
			Client:   opts.Client,
			Logger:   opts.Logger,
		})

	case member.KindREST, member.KindKeyword, member.KindAggregate:
		return rest.NewConnector(rest.Config{
			Endpoint:   m.Endpoint,
			Descriptor: m.Descriptor,
			Bearer:     m.Auth.Bearer,
			Secrets:    opts.Secrets,
			Client:     opts.Client,
			Logger:     opts.Logger,
		})
	}
	return nil, fmt.Errorf("unknown member kind %q", m.Kind)
}

// StorePath returns the database path of a local member, resolved against
// the configuration directory.
func (c *Config) StorePath(m Member) string {
	if filepath.IsAbs(m.Path) || c.Dir == "" {
		return m.Path
	}
	return filepath.Join(c.Dir, m.Path)
}

// EngineOptions returns the engine tunables of the configuration.
func (c *Config) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithBatchSize(c.BatchSize),
		engine.WithParallelism(c.Parallelism),
		engine.WithQueueSize(c.QueueSize),
	}
}
