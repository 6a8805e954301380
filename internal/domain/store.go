package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	BondID string
}

// BondStore holds bonds and their audit logs.
type BondStore interface {
	Create(ctx context.Context, bond Bond) error
	Get(ctx context.Context, id string) (Bond, error)
	List(ctx context.Context) ([]Bond, error)
	Count(ctx context.Context) (int, error)
	// Update applies fn to the stored bond while holding the store's write
	// lock. The bond is left untouched when fn returns an error.
	Update(ctx context.Context, id string, fn func(*Bond) error) (Bond, error)
}

// ProductionStore holds the production history of each bond.
type ProductionStore interface {
	AppendSamples(ctx context.Context, samples []ProductionSample) error
	Sample(ctx context.Context, bondID, date string) (ProductionSample, error)
	Samples(ctx context.Context, bondID string) ([]ProductionSample, error)
}

// AuditEntry is a single journal row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only journal of oracle events.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
