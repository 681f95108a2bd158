package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Batch transaction modes
const (
	BatchPerOperation = "operation"
	BatchWhole        = "batch"
)

// DefaultSchema is the schema served at /graphql
const DefaultSchema = "default"

// Wildcard in a schema entry list stands for every registered definition
const Wildcard = "*"

// Config holds all configuration for the GraphQL service
type Config struct {
	// Database configuration
	DBDriver          string        `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN             string        `envconfig:"DB_DSN" default:"file:modelgraph.db?_pragma=foreign_keys(1)"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
	DBMigrate         bool          `envconfig:"DB_MIGRATE" default:"false"`

	// Redis shares introspected columns between replicas; empty address disables it
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string        `envconfig:"REDIS_PREFIX" default:"modelgraph:columns:"`
	RedisTTL      time.Duration `envconfig:"REDIS_TTL" default:"1h"`

	// GraphQL configuration
	SchemasFile      string            `envconfig:"GRAPHQL_SCHEMAS_FILE"`
	TypeDepth        int               `envconfig:"GRAPHQL_TYPE_DEPTH" default:"8"`
	SelectionDepth   int               `envconfig:"GRAPHQL_SELECTION_DEPTH" default:"0"`
	MaxQueryDepth    int               `envconfig:"GRAPHQL_MAX_QUERY_DEPTH" default:"0"`
	BatchTransaction string            `envconfig:"GRAPHQL_BATCH_TRANSACTION" default:"operation"`
	PrettyJSON       bool              `envconfig:"GRAPHQL_PRETTY_JSON" default:"false"`
	GraphiQL         bool              `envconfig:"GRAPHQL_GRAPHIQL" default:"false"`
	ResponseHeaders  map[string]string `envconfig:"GRAPHQL_RESPONSE_HEADERS"`

	// Server configuration
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsPort int    `envconfig:"METRICS_PORT" default:"9090"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// CORS configuration
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`

	// Graceful shutdown timeout
	ShutdownTimeout int `envconfig:"SHUTDOWN_TIMEOUT" default:"30"`
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg, err := Process()
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// Process reads configuration from environment variables and validates it
func Process() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.BatchTransaction != BatchPerOperation && cfg.BatchTransaction != BatchWhole {
		return nil, fmt.Errorf("failed to load configuration: GRAPHQL_BATCH_TRANSACTION must be %q or %q, got %q",
			BatchPerOperation, BatchWhole, cfg.BatchTransaction)
	}
	return &cfg, nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// SchemaConfig lists the entries of a schema's root types. An entry names a
// definition, a registered custom field or the * wildcard.
type SchemaConfig struct {
	Query    []string `yaml:"query"`
	Mutation []string `yaml:"mutation"`
}

// DefaultSchemaConfig exposes every definition plus the built-in fields
func DefaultSchemaConfig() SchemaConfig {
	return SchemaConfig{
		Query:    []string{Wildcard, "health", "stats"},
		Mutation: []string{Wildcard},
	}
}

type schemasFile struct {
	Schemas map[string]SchemaConfig `yaml:"schemas"`
}

// LoadSchemas reads named schema configurations from a YAML file:
//
//	schemas:
//	  default:
//	    query: ["*", health]
//	    mutation: ["*"]
//	  public:
//	    query: [Post, Comment]
func LoadSchemas(path string) (map[string]SchemaConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schemas file: %w", err)
	}
	return ParseSchemas(data)
}

// ParseSchemas decodes the YAML schema configuration
func ParseSchemas(data []byte) (map[string]SchemaConfig, error) {
	var file schemasFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse schemas file: %w", err)
	}
	if len(file.Schemas) == 0 {
		return nil, fmt.Errorf("failed to parse schemas file: no schemas defined")
	}

	names := make([]string, 0, len(file.Schemas))
	for name := range file.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if len(file.Schemas[name].Query) == 0 {
			return nil, fmt.Errorf("failed to parse schemas file: schema %q has no query entries", name)
		}
	}
	return file.Schemas, nil
}
