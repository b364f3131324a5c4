package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fundscope/internal/storage"
	"fundscope/internal/storage/migrations"
)

const pgErrUniqueViolation = "23505"

// querier is the subset of pgx shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides Postgres persistence for requests and the fund ledger.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies the embedded schema.
func (s *Store) Migrate(ctx context.Context) error {
	return migrations.RunPostgres(ctx, s.pool)
}

func (s *Store) Requests() storage.RequestStore { return requestStore{db: s.pool} }
func (s *Store) Funds() storage.FundStore       { return fundStore{db: s.pool} }
func (s *Store) PendingFunds() storage.PendingFundStore {
	return pendingFundStore{db: s.pool}
}
func (s *Store) BlockchainEvents() storage.BlockchainEventStore {
	return eventStore{db: s.pool}
}

// WithinTx runs fn in a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow storage.UnitOfWork) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, txUnit{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txUnit struct {
	db querier
}

func (u txUnit) Requests() storage.RequestStore                 { return requestStore{db: u.db} }
func (u txUnit) Funds() storage.FundStore                       { return fundStore{db: u.db} }
func (u txUnit) PendingFunds() storage.PendingFundStore         { return pendingFundStore{db: u.db} }
func (u txUnit) BlockchainEvents() storage.BlockchainEventStore { return eventStore{db: u.db} }

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Amounts travel as decimal text so NUMERIC(78,0) round-trips exactly.
func amountText(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func parseAmount(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(strings.TrimSpace(*s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", *s)
	}
	return v, nil
}

func hashKey(txHash string) string {
	return strings.ToLower(strings.TrimSpace(txHash))
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

var (
	_ storage.Store      = (*Store)(nil)
	_ storage.UnitOfWork = txUnit{}
)
