package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Nzyazin/tutorledger/internal/core/logger"
	"github.com/Nzyazin/tutorledger/internal/core/metrics"
	"github.com/Nzyazin/tutorledger/internal/core/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"

	retryBaseDelay = 20 * time.Millisecond
)

type Options struct {
	// LockTimeout is applied with SET LOCAL to every read-write unit of work.
	LockTimeout time.Duration
	MaxAttempts int
}

type postgresLedgerRepo struct {
	db   *sqlx.DB
	log  logger.Logger
	opts Options
}

func NewPostgresLedgerRepo(db *sqlx.DB, log logger.Logger, opts Options) repository.LedgerRepository {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &postgresLedgerRepo{
		db:   db,
		log:  log,
		opts: opts,
	}
}

// WithTx runs fn in one database transaction and re-runs the whole unit when
// Postgres reports a serialization failure, deadlock or lock timeout.
func (r *postgresLedgerRepo) WithTx(ctx context.Context, mode repository.TxMode, fn func(repository.Store) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		err := r.executeTx(ctx, mode, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrTransient) {
			return err
		}

		lastErr = err
		if attempt == r.opts.MaxAttempts {
			break
		}

		metrics.TxRetries.Inc()
		r.log.Warn("Retrying ledger transaction",
			logger.IntField("attempt", attempt),
			logger.ErrorField("error", err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ctx.Err(), lastErr)
		case <-time.After(time.Duration(attempt*attempt) * retryBaseDelay):
		}
	}

	return fmt.Errorf("transaction failed after %d attempts: %w", r.opts.MaxAttempts, lastErr)
}

func (r *postgresLedgerRepo) executeTx(ctx context.Context, mode repository.TxMode, fn func(repository.Store) error) (err error) {
	txOpts := &sql.TxOptions{Isolation: sql.LevelSerializable}
	if mode == repository.ReadOnly {
		txOpts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}

	tx, err := r.db.BeginTxx(ctx, txOpts)
	if err != nil {
		r.log.Error("Error beginning transaction", logger.ErrorField("error", err))
		return fmt.Errorf("error beginning transaction: %w", classify(err))
	}

	var isCommitted bool
	defer func() {
		if isCommitted {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.log.Error("Transaction rollback failed", logger.ErrorField("error", rbErr))
			err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
	}()

	if mode == repository.ReadWrite && r.opts.LockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", r.opts.LockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("set lock timeout: %w", classify(err))
		}
	}

	if err = fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		r.log.Error("Error committing transaction", logger.ErrorField("error", err))
		return fmt.Errorf("commit failed: %w", classify(err))
	}

	isCommitted = true
	return nil
}

// classify maps driver errors onto repository sentinels while keeping the
// original error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", repository.ErrNotFound, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %w", repository.ErrTransient, err)
		case codeUniqueViolation:
			return fmt.Errorf("%w: %w", repository.ErrConflict, err)
		}
	}
	return err
}
