package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/testdb"
	log "gopkg.in/inconshreveable/log15.v2"
)

const defaultTestDatabase = "winprod_test"

// InitTestDBManager connects a *testdb.Manager to the database named by TEST_DATABASE, or winprod_test when it is
// unset. Databases are reset between tests with pgundolog. It requires a *testing.M to ensure it is only called by
// TestMain. If something fails it calls os.Exit(1).
func InitTestDBManager(*testing.M) *testdb.Manager {
	manager := &testdb.Manager{
		ResetDB: func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, `select pgundolog.undo()`)
			return err
		},
	}

	dbname := os.Getenv("TEST_DATABASE")
	if dbname == "" {
		dbname = defaultTestDatabase
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	err := manager.Connect(ctx, fmt.Sprintf("dbname=%s", dbname))
	if err != nil {
		fmt.Println("failed to init testdb.Manager:", err)
		os.Exit(1)
	}

	return manager
}

// Logger returns a logger that writes to stdout when TEST_LOG_LEVEL is set and discards everything otherwise.
func Logger() log.Logger {
	logger := log.New()

	lvl, err := log.LvlFromString(os.Getenv("TEST_LOG_LEVEL"))
	if err != nil {
		logger.SetHandler(log.DiscardHandler())
		return logger
	}

	logger.SetHandler(log.LvlFilterHandler(lvl, log.StdoutHandler))
	return logger
}
