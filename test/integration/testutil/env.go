//go:build integration

package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"eventmarket/pkg/client"
)

const (
	DefaultLocksURL           = "http://localhost:8080"
	DefaultJobCartsURL        = "http://localhost:8081"
	DefaultHealthCheckTimeout = 30 * time.Second
)

// TestEnv points the suites at a running stack. Mongo is optional: when
// TEST_MONGO_URI is unset the suites skip direct collection cleanup.
type TestEnv struct {
	MongoURI     string
	DatabaseName string
	LocksURL     string
	JobCartsURL  string
}

func NewTestEnv() *TestEnv {
	return &TestEnv{
		MongoURI:     os.Getenv("TEST_MONGO_URI"),
		DatabaseName: getEnv("TEST_DB_NAME", DefaultDatabaseName),
		LocksURL:     getEnv("TEST_LOCKS_URL", DefaultLocksURL),
		JobCartsURL:  getEnv("TEST_JOBCARTS_URL", DefaultJobCartsURL),
	}
}

// Setup waits for the service at baseURL and empties the given collections.
func (e *TestEnv) Setup(t *testing.T, baseURL string, collections ...string) *MongoHelper {
	t.Helper()

	if err := client.NewHttpClient(baseURL).WaitForHealthy(context.Background(), DefaultHealthCheckTimeout); err != nil {
		t.Fatalf("service at %s is not healthy: %v", baseURL, err)
	}

	if e.MongoURI == "" {
		return nil
	}
	mongo := NewMongoHelper(t, e.MongoURI, e.DatabaseName)
	for _, name := range collections {
		mongo.CleanCollection(t, name)
	}
	t.Cleanup(func() {
		for _, name := range collections {
			mongo.CleanCollection(t, name)
		}
		mongo.Close(t)
	})
	return mongo
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
