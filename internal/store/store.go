// Package store defines the persistence contract for the lifecycle engine
// and its PostgreSQL and SQLite implementations.
package store

import (
	"context"

	"github.com/crewbase/lifecycle-engine/internal/model"
)

// Store is the repository abstraction the engine operates on. Current-record
// lookups return (nil, nil) when no record exists. AppendAssessment and
// RolloverDocument perform their flip-and-insert as one transaction so the
// "exactly one current record" invariants hold without in-process locks.
//
// Mutating operations take the notification events emitted for the change
// and write them in the same transaction, so a state change and its events
// commit or roll back together. Events whose (contractor, type, caused_by)
// tuple already exists are dropped; each method returns the subset it
// actually stored.
type Store interface {
	// Contractors (notification routing data).
	UpsertContractor(ctx context.Context, c model.Contractor) error
	GetContractor(ctx context.Context, id string) (*model.Contractor, error)

	// Risk assessments (append-only history).
	GetCurrentAssessment(ctx context.Context, contractorID string) (*model.RiskAssessment, error)
	AppendAssessment(ctx context.Context, a *model.RiskAssessment, events []model.NotificationEvent) ([]model.NotificationEvent, error)

	// Lifecycle items.
	GetLifecycleItem(ctx context.Context, contractorID string, kind model.ItemKind, itemType string) (*model.LifecycleItem, error)
	ListLifecycleItems(ctx context.Context, contractorID string, kind model.ItemKind) ([]model.LifecycleItem, error)
	UpsertLifecycleItem(ctx context.Context, item model.LifecycleItem, events []model.NotificationEvent) ([]model.NotificationEvent, error)
	// SeedLifecycleItems inserts the given items where absent and leaves
	// existing rows untouched. Returns the number inserted alongside the
	// stored events.
	SeedLifecycleItems(ctx context.Context, items []model.LifecycleItem, events []model.NotificationEvent) (int64, []model.NotificationEvent, error)

	// Documents (copy-on-write versioning). A non-nil slot is upserted in
	// the rollover transaction, marking the matching lifecycle item.
	GetCurrentDocument(ctx context.Context, contractorID, documentType string) (*model.DocumentRecord, error)
	ListCurrentDocuments(ctx context.Context, contractorID string) ([]model.DocumentRecord, error)
	RolloverDocument(ctx context.Context, rec *model.DocumentRecord, slot *model.LifecycleItem, events []model.NotificationEvent) ([]model.NotificationEvent, error)

	// Notifications (durable append outside any state change, e.g. document
	// sweeps).
	AppendNotifications(ctx context.Context, events []model.NotificationEvent) ([]model.NotificationEvent, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
