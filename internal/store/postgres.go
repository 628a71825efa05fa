package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/errdigest/pkg/models"
)

const recordColumns = `id, signature, runtime, client_id, client_version, user_id, user_name,
	error_type, error_message, stacktrace, report_date, actual_date_time, count, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewPostgresStore creates a new PostgresStore. maxRetries bounds the extra
// attempts an upsert makes after a write conflict.
func NewPostgresStore(pool *pgxpool.Pool, maxRetries int) *PostgresStore {
	return &PostgresStore{pool: pool, maxRetries: maxRetries}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Error Records ---

func (s *PostgresStore) UpsertErrorRecord(ctx context.Context, key models.RecordKey, fn UpdateFunc) (*models.ErrorRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		rec, err := s.upsertOnce(ctx, key, fn)
		if err == nil {
			return rec, nil
		}
		if !isConflictError(err) {
			return nil, fmt.Errorf("upsert error record %s: %w", key, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("upsert error record %s: %w (%v)", key, ErrContention, lastErr)
}

// upsertOnce runs one read-modify-write cycle. The row lock taken by
// SELECT ... FOR UPDATE serializes writers of an existing key; two writers
// racing to create the key collide on the unique constraint and the loser
// retries as an update.
func (s *PostgresStore) upsertOnce(ctx context.Context, key models.RecordKey, fn UpdateFunc) (*models.ErrorRecord, error) {
	var result *models.ErrorRecord
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		current, err := scanRecord(tx.QueryRow(ctx,
			`SELECT `+recordColumns+` FROM error_records
			 WHERE signature = $1 AND client_version = $2 AND report_date = $3 FOR UPDATE`,
			key.Signature, key.ClientVersion, key.ReportDate))
		if errors.Is(err, pgx.ErrNoRows) {
			current = nil
		} else if err != nil {
			return fmt.Errorf("select for update: %w", err)
		}

		next, err := fn(cloneRecord(current))
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if current == nil {
			if next.ID == uuid.Nil {
				next.ID = uuid.New()
			}
			result, err = scanRecord(tx.QueryRow(ctx,
				`INSERT INTO error_records (id, signature, runtime, client_id, client_version, user_id, user_name,
				   error_type, error_message, stacktrace, report_date, actual_date_time, count, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
				 RETURNING `+recordColumns,
				next.ID, key.Signature, next.Runtime, next.ClientID, key.ClientVersion, next.UserID, next.UserName,
				next.ErrorType, next.ErrorMessage, next.Stacktrace, key.ReportDate, next.ActualDateTime, next.Count, now))
			return err
		}

		result, err = scanRecord(tx.QueryRow(ctx,
			`UPDATE error_records SET count = $2, updated_at = $3 WHERE id = $1 RETURNING `+recordColumns,
			current.ID, next.Count, now))
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) ListErrorRecords(ctx context.Context, filter RecordFilter) ([]*models.ErrorRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM error_records
		 WHERE client_id = $1 AND report_date = $2
		 ORDER BY client_version DESC, count DESC, actual_date_time ASC
		 LIMIT $3`,
		filter.ClientID, filter.ReportDate, filter.limit())
	if err != nil {
		return nil, fmt.Errorf("list error records: %w", err)
	}
	defer rows.Close()

	var records []*models.ErrorRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *PostgresStore) DeleteErrorRecords(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM error_records WHERE id = ANY($1::uuid[])`, strIDs)
	if err != nil {
		return 0, fmt.Errorf("delete error records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// --- Subscriptions ---

func (s *PostgresStore) GetSubscription(ctx context.Context, clientID string) (*models.Subscription, error) {
	sub := models.Subscription{ClientID: clientID, Subscribers: []string{}}
	err := s.pool.QueryRow(ctx,
		`SELECT created_at FROM applications WHERE client_id = $1`, clientID,
	).Scan(&sub.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT email FROM subscribers WHERE client_id = $1 ORDER BY created_at, email`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		sub.Subscribers = append(sub.Subscribers, email)
	}
	return &sub, rows.Err()
}

func (s *PostgresStore) AddSubscriber(ctx context.Context, clientID, email string) (bool, error) {
	var added bool
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO applications (client_id) VALUES ($1) ON CONFLICT (client_id) DO NOTHING`, clientID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO subscribers (client_id, email) VALUES ($1, $2) ON CONFLICT (client_id, email) DO NOTHING`,
			clientID, email)
		if err != nil {
			return err
		}
		added = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("add subscriber: %w", err)
	}
	return added, nil
}

func (s *PostgresStore) RemoveSubscriber(ctx context.Context, clientID, email string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM subscribers WHERE client_id = $1 AND email = $2`, clientID, email)
	if err != nil {
		return false, fmt.Errorf("remove subscriber: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanRecord(row pgx.Row) (*models.ErrorRecord, error) {
	var r models.ErrorRecord
	if err := row.Scan(&r.ID, &r.Signature, &r.Runtime, &r.ClientID, &r.ClientVersion, &r.UserID, &r.UserName,
		&r.ErrorType, &r.ErrorMessage, &r.Stacktrace, &r.ReportDate, &r.ActualDateTime, &r.Count,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.ReportDate = r.ReportDate.UTC()
	return &r, nil
}

// isConflictError reports whether err is a write conflict worth retrying:
// unique_violation, serialization_failure or deadlock_detected.
func isConflictError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001", "40P01":
			return true
		}
	}
	return false
}
