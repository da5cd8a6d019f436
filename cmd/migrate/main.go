// Command migrate applies the ledger schema to the configured database.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Nzyazin/tutorledger/internal/core/logger"
	"github.com/Nzyazin/tutorledger/pkg/config"
	"github.com/Nzyazin/tutorledger/pkg/postgresdb"
)

func main() {
	log, cleanup, err := logger.NewLogger(os.Getenv("LOG_DIR"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := run(log); err != nil {
		log.Error("Migration failed", logger.ErrorField("error", err))
		cleanup()
		os.Exit(1)
	}
	log.Info("Schema is up to date")
}

func run(log logger.Logger) error {
	cfg, err := config.LoadConfigDB()
	if err != nil {
		return err
	}

	db, err := postgresdb.NewPostgresDB(*cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return db.Migrate(ctx)
}
