// Package config loads runtime settings: database connection strings from
// the environment and the business-retention rule file.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
)

// Config holds the connection settings for one migration run, populated
// from environment variables (the .env file is loaded in main).
type Config struct {
	SQLConnString   string
	MongoConnString string
	MongoDatabase   string
}

// Load reads the connection settings from the environment.
func Load() (*Config, error) {
	sqlConn := os.Getenv("SQL_CONNECTION_STRING")
	if sqlConn == "" {
		return nil, errors.New("SQL_CONNECTION_STRING environment variable not set")
	}

	mongoConn := os.Getenv("MONGO_CONNECTION_STRING")
	if mongoConn == "" {
		return nil, errors.New("MONGO_CONNECTION_STRING environment variable not set")
	}

	mongoDB := os.Getenv("MONGO_DATABASE")
	if mongoDB == "" {
		mongoDB = "visiocare"
	}

	return &Config{
		SQLConnString:   sqlConn,
		MongoConnString: mongoConn,
		MongoDatabase:   mongoDB,
	}, nil
}
