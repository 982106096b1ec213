package client

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"eventmarket/pkg/db/postgres"
	"eventmarket/pkg/db/sqlite"
	"eventmarket/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Client holds the storage connections of a running service. Only the one
// selected by the storage driver is set.
type Client struct {
	Mongo    *mongo.Client
	Postgres *pgxpool.Pool
	SQLite   *sql.DB
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) SetMongo(log *logger.Logger, mongoURI string, mongoConnTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB", "error", err)
	}

	log.Info("Successfully connected to MongoDB")
	c.Mongo = client
}

func (c *Client) SetPostgres(log *logger.Logger, dsn string, connTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, dsn)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", "error", err)
	}

	log.Info("Successfully connected to PostgreSQL")
	c.Postgres = pool
}

func (c *Client) SetSQLite(log *logger.Logger, path string) {
	db, err := sqlite.Open(path)
	if err != nil {
		log.Fatal("Failed to open SQLite database", "error", err, "path", path)
	}

	log.Info("Successfully opened SQLite database", "path", path)
	c.SQLite = db
}

func (c *Client) Ping(ctx context.Context) error {
	switch {
	case c.Mongo != nil:
		return c.Mongo.Ping(ctx, nil)
	case c.Postgres != nil:
		return c.Postgres.Ping(ctx)
	case c.SQLite != nil:
		return c.SQLite.PingContext(ctx)
	}
	return errors.New("no storage client configured")
}

func (c *Client) GracefulShutdown(log *logger.Logger) {
	if c.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Mongo.Disconnect(ctx); err != nil {
			log.Error("Failed to disconnect from MongoDB", "error", err)
		}
	}
	if c.Postgres != nil {
		c.Postgres.Close()
	}
	if c.SQLite != nil {
		if err := c.SQLite.Close(); err != nil {
			log.Error("Failed to close SQLite database", "error", err)
		}
	}
	log.Info("Storage connections closed")
}
