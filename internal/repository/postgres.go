// Package repository хранит журнал попыток отправки бронирований.
package repository

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/surfbooking/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository хранит попытки отправки в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil || i == len(delays) || !retryable(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delays[i]):
		}
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// pgxpool сам переподключается, повторяем только конфликты транзакций.
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Reserve записывает новую попытку. Номер бронирования, уже закреплённый за другой попыткой,
// отклоняется с model.ErrBookingNumberReused.
func (r *PostgresRepository) Reserve(ctx context.Context, a model.Attempt) error {
	err := r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO submission_attempts
			   (id, session_id, booking_number, channel, state, currency, net_amount, payment_ref, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $9)`,
			a.ID, a.SessionID, a.BookingNumber, string(a.Channel), string(a.State),
			a.Currency, a.NetAmount.String(), a.PaymentRef, a.CreatedAt,
		)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", model.ErrBookingNumberReused, a.BookingNumber)
		}
		return fmt.Errorf("reserve attempt: %w", err)
	}
	return nil
}

// UpdateState меняет состояние попытки.
func (r *PostgresRepository) UpdateState(ctx context.Context, id string, state model.CheckoutState) error {
	return r.update(ctx, id, `UPDATE submission_attempts SET state = $2, updated_at = now() WHERE id = $1`, string(state))
}

// SetPaymentRef сохраняет токен или идентификатор платежа шлюза.
func (r *PostgresRepository) SetPaymentRef(ctx context.Context, id, ref string) error {
	return r.update(ctx, id, `UPDATE submission_attempts SET payment_ref = $2, updated_at = now() WHERE id = $1`, ref)
}

func (r *PostgresRepository) update(ctx context.Context, id, query string, value string) error {
	var affected int64
	err := r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx, query, id, value)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("attempt %s: %w", id, model.ErrNotFound)
	}
	return nil
}

const attemptColumns = `id, session_id, booking_number, channel, state, currency, net_amount::text, payment_ref, created_at, updated_at`

// Get возвращает попытку по идентификатору.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*model.Attempt, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM submission_attempts WHERE id = $1`, id)

	a, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("attempt %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

// ListPending возвращает попытки, ожидающие шлюз с момента раньше before.
func (r *PostgresRepository) ListPending(ctx context.Context, before time.Time) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM submission_attempts
		 WHERE state = $1 AND updated_at < $2
		 ORDER BY updated_at`,
		string(model.StateGatewayPending), before,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending attempts: %w", err)
	}
	defer rows.Close()

	var res []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		res = append(res, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	var (
		a       model.Attempt
		channel string
		state   string
		net     string
	)
	if err := row.Scan(&a.ID, &a.SessionID, &a.BookingNumber, &channel, &state,
		&a.Currency, &net, &a.PaymentRef, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(net)
	if err != nil {
		return nil, fmt.Errorf("parse net amount %q: %w", net, err)
	}
	a.Channel = model.Channel(channel)
	a.State = model.CheckoutState(state)
	a.NetAmount = amount
	return &a, nil
}
