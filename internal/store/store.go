package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/errdigest/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// ErrContention is returned when an upsert could not commit within its retry
// budget. The occurrence is lost; callers must not retry.
var ErrContention = errors.New("store contention: retries exhausted")

// UpdateFunc computes the next state of a record. current is nil when no
// record exists for the key. It may run more than once per upsert and must
// not have side effects. For an existing record only Count is persisted; the
// exemplar fields are immutable once written.
type UpdateFunc func(current *models.ErrorRecord) (*models.ErrorRecord, error)

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// UpsertErrorRecord atomically reads the record for key, applies fn and
	// writes the result, retrying a bounded number of times on write conflicts.
	UpsertErrorRecord(ctx context.Context, key models.RecordKey, fn UpdateFunc) (*models.ErrorRecord, error)
	ListErrorRecords(ctx context.Context, filter RecordFilter) ([]*models.ErrorRecord, error)
	DeleteErrorRecords(ctx context.Context, ids []uuid.UUID) (int, error)

	GetSubscription(ctx context.Context, clientID string) (*models.Subscription, error)
	// AddSubscriber creates the subscription on first use and reports whether
	// email was newly added.
	AddSubscriber(ctx context.Context, clientID, email string) (bool, error)
	RemoveSubscriber(ctx context.Context, clientID, email string) (bool, error)
}

type RecordFilter struct {
	ClientID   string
	ReportDate time.Time
	Limit      int
}

const defaultListLimit = 1000

func (f RecordFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

func cloneRecord(r *models.ErrorRecord) *models.ErrorRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
