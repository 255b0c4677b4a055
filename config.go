package main

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/haydenwoodhead/autointern/data"
	"github.com/haydenwoodhead/autointern/data/dynamodb"
	"github.com/haydenwoodhead/autointern/data/inmemory"
	"github.com/haydenwoodhead/autointern/data/postgresql"
	"github.com/haydenwoodhead/autointern/data/sqlite3"
	"github.com/joho/godotenv"
)

const inMemory = "memory"
const postgreSQL = "postgres"
const sqlite = "sqlite3"
const dynamoDB = "dynamo"

const callbackPath = "/api/v1/integrations/google/callback/"

// config is read from the environment, optionally seeded from a .env file
type config struct {
	Key        string `env:"KEY,required"`
	URL        string `env:"WEBSITE_URL,required"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	AdminKey   string `env:"ADMIN_KEY"`

	DBType      string `env:"DB_TYPE" envDefault:"memory"`
	DatabaseURL string `env:"DATABASE_URL"`
	DynamoTable string `env:"DYNAMO_TABLE"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	OpenAIKey     string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	MGDomain string `env:"MG_DOMAIN"`
	MGKey    string `env:"MG_KEY"`
	MGFrom   string `env:"MG_FROM"`

	Developing    bool `env:"DEVELOPING" envDefault:"false"`
	UsingLambda   bool `env:"LAMBDA" envDefault:"false"`
	RestoreRealIP bool `env:"RESTORE_REAL_IP" envDefault:"false"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// mailgunEnabled reports whether quick send has a provider to send through
func (c *config) mailgunEnabled() bool {
	return c.MGDomain != "" && c.MGKey != ""
}

// platformFrom is the sender of quick send emails
func (c *config) platformFrom() string {
	if c.MGFrom != "" {
		return c.MGFrom
	}
	return "Auto Intern <noreply@" + c.MGDomain + ">"
}

func (c *config) redirectURL() string {
	return strings.TrimSuffix(c.URL, "/") + callbackPath
}

func loadConfig() (*config, error) {
	// a missing .env file is fine
	_ = godotenv.Load()

	cfg := &config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// KEY signs session cookies and oauth state
	if len(cfg.Key) < 16 {
		return nil, fmt.Errorf("KEY must be at least 16 bytes, got %d", len(cfg.Key))
	}

	switch cfg.DBType {
	case postgreSQL, sqlite:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for DB_TYPE %v", cfg.DBType)
		}
	case dynamoDB:
		if cfg.DynamoTable == "" {
			return nil, fmt.Errorf("DYNAMO_TABLE is required for DB_TYPE %v", cfg.DBType)
		}
	case inMemory:
	default:
		return nil, fmt.Errorf("unknown DB_TYPE %q", cfg.DBType)
	}

	return cfg, nil
}

func (c *config) database() data.Database {
	switch c.DBType {
	case postgreSQL:
		return postgresql.GetPostgreSQLDB(c.DatabaseURL)
	case sqlite:
		return sqlite3.GetSQLite3DB(c.DatabaseURL)
	case dynamoDB:
		return dynamodb.GetNewDynamoDB(c.DynamoTable)
	default:
		return inmemory.GetInMemoryDB()
	}
}
