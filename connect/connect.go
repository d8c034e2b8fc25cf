package connect

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/CaliLuke/go-docmap/adapters/bolt"
	"github.com/CaliLuke/go-docmap/adapters/memory"
	"github.com/CaliLuke/go-docmap/adapters/mongo"
	"github.com/CaliLuke/go-docmap/adapters/sqlite"
	"github.com/CaliLuke/go-docmap/odm"
)

// ErrUnsupportedURL is returned for URLs whose scheme names no backend.
var ErrUnsupportedURL = errors.New("unsupported database url")

// NewLogger builds a development logger writing to stdout when debug is
// set and a production logger otherwise.
func NewLogger(debug bool) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		z := zap.NewDevelopmentConfig()
		z.OutputPaths = []string{"stdout"}
		logger, err = z.Build()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Sugar(), nil
}

// Open connects to the backend named by cfg.URL and returns a Store over it.
func Open(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (*odm.Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	adapter, err := OpenAdapter(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return odm.NewStore(adapter, odm.WithLogger(logger)), nil
}

// OpenAdapter dispatches on the URL scheme:
//
//	nedb://memory, nedb://, memory://   in-process store
//	nedb://<path>, bolt://<path>        bbolt file
//	sqlite://<path>, sqlite://:memory:  SQLite database
//	mongodb://..., mongodb+srv://...    MongoDB
func OpenAdapter(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (odm.Adapter, error) {
	scheme, rest, ok := strings.Cut(cfg.URL, "://")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, cfg.URL)
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	logger.Debugf("connect: opening %s backend", scheme)

	switch scheme {
	case "memory":
		return memory.New(memory.WithLogger(logger)), nil
	case "nedb":
		if rest == "" || rest == "memory" {
			return memory.New(memory.WithLogger(logger)), nil
		}
		return openBolt(rest, logger)
	case "bolt":
		return openBolt(rest, logger)
	case "sqlite":
		if rest == "" {
			return nil, fmt.Errorf("%w: sqlite url needs a file path", ErrUnsupportedURL)
		}
		a, err := sqlite.Open(ctx, rest, sqlite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return a, nil
	case "mongodb", "mongodb+srv":
		a, err := mongo.Connect(ctx, cfg.URL, mongoDatabase(cfg), mongo.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, scheme)
}

func openBolt(path string, logger *zap.SugaredLogger) (odm.Adapter, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: bolt url needs a file path", ErrUnsupportedURL)
	}
	a, err := bolt.Open(path, bolt.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return a, nil
}

// mongoDatabase prefers the database in the URL path over cfg.Database.
func mongoDatabase(cfg Config) string {
	if u, err := url.Parse(cfg.URL); err == nil {
		if name := strings.TrimPrefix(u.Path, "/"); name != "" {
			return name
		}
	}
	if cfg.Database != "" {
		return cfg.Database
	}
	return DefaultDatabase
}
