package database

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// TestDbEnvVar names the environment variable holding the connection string of a Postgres server tests may use.
const TestDbEnvVar = "BATCHSCHED_TEST_POSTGRES"

// TestDbAvailable reports whether a Postgres server has been configured for tests.
func TestDbAvailable() bool {
	return os.Getenv(TestDbEnvVar) != ""
}

// WithTestDb creates a dedicated database on the server named by BATCHSCHED_TEST_POSTGRES,
// calls action with a pool connected to it and drops the database afterwards.
func WithTestDb(action func(db *pgxpool.Pool) error) error {
	ctx := context.Background()
	connectionString := os.Getenv(TestDbEnvVar)
	if connectionString == "" {
		return errors.Errorf("%s is not set", TestDbEnvVar)
	}

	dbName := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	db, err := pgx.Connect(ctx, connectionString)
	if err != nil {
		return errors.WithStack(err)
	}
	defer db.Close(ctx)

	if _, err := db.Exec(ctx, "CREATE DATABASE "+dbName); err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		_, err := db.Exec(ctx, "DROP DATABASE "+dbName+" WITH (FORCE)")
		if err != nil {
			log.WithError(err).Warnf("Failed to drop test database %s", dbName)
		}
	}()

	testDbPool, err := pgxpool.New(ctx, connectionString+" dbname="+dbName)
	if err != nil {
		return errors.WithStack(err)
	}
	defer testDbPool.Close()

	return action(testDbPool)
}
