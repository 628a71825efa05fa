package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/errdigest/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type errorRecordRow struct {
	ID             string `gorm:"primaryKey"`
	Signature      string `gorm:"not null;uniqueIndex:idx_error_records_key,priority:1"`
	Runtime        string `gorm:"not null"`
	ClientID       string `gorm:"not null;index:idx_error_records_client_day,priority:1"`
	ClientVersion  string `gorm:"not null;uniqueIndex:idx_error_records_key,priority:2"`
	UserID         string `gorm:"not null"`
	UserName       string `gorm:"not null"`
	ErrorType      string `gorm:"not null"`
	ErrorMessage   string `gorm:"not null"`
	Stacktrace     string `gorm:"type:text;not null"`
	ReportDate     string `gorm:"not null;uniqueIndex:idx_error_records_key,priority:3;index:idx_error_records_client_day,priority:2"`
	ActualDateTime time.Time
	Count          int `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (errorRecordRow) TableName() string { return "error_records" }

type applicationRow struct {
	ClientID  string `gorm:"primaryKey"`
	CreatedAt time.Time
}

func (applicationRow) TableName() string { return "applications" }

type subscriberRow struct {
	ClientID  string `gorm:"primaryKey"`
	Email     string `gorm:"primaryKey"`
	CreatedAt time.Time
}

func (subscriberRow) TableName() string { return "subscribers" }

// SQLiteStore implements Store on an embedded SQLite database through gorm.
// It uses a single connection so transactions never interleave within the
// process; it is meant for single-instance deployments and tests.
type SQLiteStore struct {
	db         *gorm.DB
	maxRetries int
}

// NewSQLiteStore opens (creating if needed) the database at path and
// migrates its schema.
func NewSQLiteStore(path string, maxRetries int) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&errorRecordRow{}, &applicationRow{}, &subscriberRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db, maxRetries: maxRetries}, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// --- Error Records ---

func (s *SQLiteStore) UpsertErrorRecord(ctx context.Context, key models.RecordKey, fn UpdateFunc) (*models.ErrorRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		rec, err := s.upsertOnce(ctx, key, fn)
		if err == nil {
			return rec, nil
		}
		if !isSQLiteConflict(err) {
			return nil, fmt.Errorf("upsert error record %s: %w", key, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("upsert error record %s: %w (%v)", key, ErrContention, lastErr)
}

func (s *SQLiteStore) upsertOnce(ctx context.Context, key models.RecordKey, fn UpdateFunc) (*models.ErrorRecord, error) {
	var result *models.ErrorRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row errorRecordRow
		err := tx.Where("signature = ? AND client_version = ? AND report_date = ?",
			key.Signature, key.ClientVersion, formatDay(key.ReportDate)).Take(&row).Error

		var current *models.ErrorRecord
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			current = row.toModel()
		}

		next, err := fn(cloneRecord(current))
		if err != nil {
			return err
		}

		if current == nil {
			if next.ID == uuid.Nil {
				next.ID = uuid.New()
			}
			next.Signature = key.Signature
			next.ClientVersion = key.ClientVersion
			next.ReportDate = key.ReportDate
			newRow := rowFromModel(next)
			if err := tx.Create(&newRow).Error; err != nil {
				return err
			}
			result = newRow.toModel()
			return nil
		}

		row.Count = next.Count
		if err := tx.Model(&row).Update("count", next.Count).Error; err != nil {
			return err
		}
		result = row.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLiteStore) ListErrorRecords(ctx context.Context, filter RecordFilter) ([]*models.ErrorRecord, error) {
	var rows []errorRecordRow
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND report_date = ?", filter.ClientID, formatDay(filter.ReportDate)).
		Order("client_version DESC").Order("count DESC").Order("actual_date_time ASC").
		Limit(filter.limit()).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list error records: %w", err)
	}

	records := make([]*models.ErrorRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toModel())
	}
	return records, nil
}

func (s *SQLiteStore) DeleteErrorRecords(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	res := s.db.WithContext(ctx).Where("id IN ?", strIDs).Delete(&errorRecordRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete error records: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// --- Subscriptions ---

func (s *SQLiteStore) GetSubscription(ctx context.Context, clientID string) (*models.Subscription, error) {
	var app applicationRow
	err := s.db.WithContext(ctx).Where("client_id = ?", clientID).Take(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	var subs []subscriberRow
	if err := s.db.WithContext(ctx).Where("client_id = ?", clientID).
		Order("created_at").Order("email").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	sub := &models.Subscription{ClientID: clientID, Subscribers: make([]string, 0, len(subs)), CreatedAt: app.CreatedAt}
	for _, r := range subs {
		sub.Subscribers = append(sub.Subscribers, r.Email)
	}
	return sub, nil
}

func (s *SQLiteStore) AddSubscriber(ctx context.Context, clientID, email string) (bool, error) {
	var added bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&applicationRow{ClientID: clientID}).Error; err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&subscriberRow{ClientID: clientID, Email: email})
		if res.Error != nil {
			return res.Error
		}
		added = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("add subscriber: %w", err)
	}
	return added, nil
}

func (s *SQLiteStore) RemoveSubscriber(ctx context.Context, clientID, email string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("client_id = ? AND email = ?", clientID, email).
		Delete(&subscriberRow{})
	if res.Error != nil {
		return false, fmt.Errorf("remove subscriber: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *errorRecordRow) toModel() *models.ErrorRecord {
	day, _ := time.Parse(models.ReportDateLayout, r.ReportDate)
	return &models.ErrorRecord{
		ID:             uuid.MustParse(r.ID),
		Signature:      r.Signature,
		Runtime:        r.Runtime,
		ClientID:       r.ClientID,
		ClientVersion:  r.ClientVersion,
		UserID:         r.UserID,
		UserName:       r.UserName,
		ErrorType:      r.ErrorType,
		ErrorMessage:   r.ErrorMessage,
		Stacktrace:     r.Stacktrace,
		ReportDate:     day,
		ActualDateTime: r.ActualDateTime.UTC(),
		Count:          r.Count,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func rowFromModel(m *models.ErrorRecord) errorRecordRow {
	return errorRecordRow{
		ID:             m.ID.String(),
		Signature:      m.Signature,
		Runtime:        m.Runtime,
		ClientID:       m.ClientID,
		ClientVersion:  m.ClientVersion,
		UserID:         m.UserID,
		UserName:       m.UserName,
		ErrorType:      m.ErrorType,
		ErrorMessage:   m.ErrorMessage,
		Stacktrace:     m.Stacktrace,
		ReportDate:     formatDay(m.ReportDate),
		ActualDateTime: m.ActualDateTime,
		Count:          m.Count,
	}
}

func formatDay(t time.Time) string {
	return t.Format(models.ReportDateLayout)
}

func isSQLiteConflict(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
