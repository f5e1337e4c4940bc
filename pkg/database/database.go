// Package database opens the two database handles the migration needs:
// the legacy MS SQL Server source and the MongoDB destination.
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/microsoft/go-mssqldb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/visiocare/clinic-migrator/pkg/logger"
)

// ConnectSQL opens and pings the legacy SQL Server database.
func ConnectSQL(connString string) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", connString)
	if err != nil {
		return nil, errors.Wrap(err, "opening SQL database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "pinging SQL database")
	}

	logger.Infof("Connected to MS SQL Server")
	return db, nil
}

// ConnectMongo opens and pings the destination MongoDB deployment.
func ConnectMongo(connString string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connString))
	if err != nil {
		return nil, errors.Wrap(err, "creating MongoDB client")
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		discCtx, discCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer discCancel()
		_ = client.Disconnect(discCtx)
		return nil, errors.Wrap(err, "pinging MongoDB")
	}

	logger.Infof("Connected to MongoDB")
	return client, nil
}

// Disconnect closes the Mongo client with a bounded timeout.
func Disconnect(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		logger.Warnf("Error disconnecting from MongoDB: %v", err)
	}
}
