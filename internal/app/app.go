// Package app wires the database, registries and schema manager together
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/devplatform/modelgraph/internal/blog"
	"github.com/devplatform/modelgraph/internal/config"
	"github.com/devplatform/modelgraph/internal/definition"
	"github.com/devplatform/modelgraph/internal/filter"
	"github.com/devplatform/modelgraph/internal/graphql"
	"github.com/devplatform/modelgraph/internal/handler"
	"github.com/devplatform/modelgraph/internal/introspect"
	"github.com/devplatform/modelgraph/internal/orm"
	"github.com/devplatform/modelgraph/internal/transformer"
	"github.com/devplatform/modelgraph/internal/types"
	"github.com/devplatform/modelgraph/internal/validation"
)

// App is a fully wired service
type App struct {
	DB      *orm.DB
	Redis   *redis.Client
	Manager *graphql.Manager
	Handler *handler.Handler
}

// New opens the database and registers the blog definitions and the
// configured schemas
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	models, err := blog.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to register models: %w", err)
	}

	db, err := orm.Open(ctx, cfg.DBDriver, cfg.DBDSN, orm.Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}, models, logger)
	if err != nil {
		return nil, err
	}

	a, err := Wire(ctx, db, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// Wire builds the service over an open database
func Wire(ctx context.Context, db *orm.DB, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	if cfg.DBMigrate {
		if db.Dialect() != orm.SQLite {
			return nil, fmt.Errorf("DB_MIGRATE only supports sqlite, got %s", db.Driver())
		}
		if err := blog.Migrate(ctx, db); err != nil {
			return nil, err
		}
		logger.Info("Migrated blog tables")
	}

	grammar, err := filter.ForDriver(db.Driver())
	if err != nil {
		return nil, err
	}

	defs := definition.NewRegistry()
	intro := introspect.New(db, introspect.NewCache(), logger)

	var client *redis.Client
	if cfg.RedisAddr != "" {
		if client, err = openRedis(ctx, cfg); err != nil {
			return nil, err
		}
		intro.WithStore(introspect.NewRedisStore(client, cfg.RedisPrefix, cfg.RedisTTL))
		logger.WithField("addr", cfg.RedisAddr).Info("Sharing introspected columns through redis")
	}

	resolver := types.New(db, defs, intro, grammar, types.Config{
		TypeDepth:      cfg.TypeDepth,
		SelectionDepth: cfg.SelectionDepth,
		MaxQueryDepth:  cfg.MaxQueryDepth,
	}, logger)
	engine := transformer.New(db, defs, resolver, intro, grammar, validation.New(), logger)
	manager := graphql.NewManager(defs, resolver, engine, db, logger)

	if err := register(ctx, manager, db, cfg); err != nil {
		if client != nil {
			client.Close()
		}
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"driver":  db.Driver(),
		"schemas": manager.SchemaNames(),
	}).Info("GraphQL engine ready")

	return &App{
		DB:      db,
		Redis:   client,
		Manager: manager,
		Handler: handler.New(manager, db, cfg, logger),
	}, nil
}

func register(ctx context.Context, manager *graphql.Manager, db *orm.DB, cfg *config.Config) error {
	blogDefs, err := blog.Definitions(db.Models())
	if err != nil {
		return err
	}
	for _, def := range blogDefs {
		if err := manager.RegisterDefinition(def); err != nil {
			return err
		}
	}

	schemas := map[string]config.SchemaConfig{config.DefaultSchema: config.DefaultSchemaConfig()}
	if cfg.SchemasFile != "" {
		if schemas, err = config.LoadSchemas(cfg.SchemasFile); err != nil {
			return err
		}
	}
	for name, schema := range schemas {
		manager.RegisterSchema(name, schema)
	}

	// fail fast on configuration errors instead of at the first request
	for _, name := range manager.SchemaNames() {
		if _, err := manager.Schema(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Close releases the database pool and the redis client
func (a *App) Close() error {
	if a.Redis != nil {
		a.Redis.Close()
	}
	return a.DB.Close()
}
