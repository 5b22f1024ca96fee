package engine

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/crewbase/lifecycle-engine/internal/model"
)

// mockStore is a testify mock over store.Store for engine unit tests.
//
// Methods that persist notification events return the stored subset. Tests
// configure Return(nil, ...) to mean "the store accepted the whole batch";
// the mock then echoes the events argument, since event IDs are minted at
// run time and cannot be matched up front. An explicit empty slice means the
// store deduplicated everything.
type mockStore struct {
	mock.Mock
}

func storedOrEcho(ret any, events []model.NotificationEvent) []model.NotificationEvent {
	if stored, ok := ret.([]model.NotificationEvent); ok {
		return stored
	}
	return events
}

func (m *mockStore) UpsertContractor(ctx context.Context, c model.Contractor) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockStore) GetContractor(ctx context.Context, id string) (*model.Contractor, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*model.Contractor)
	return c, args.Error(1)
}

func (m *mockStore) GetCurrentAssessment(ctx context.Context, contractorID string) (*model.RiskAssessment, error) {
	args := m.Called(ctx, contractorID)
	a, _ := args.Get(0).(*model.RiskAssessment)
	return a, args.Error(1)
}

func (m *mockStore) AppendAssessment(ctx context.Context, a *model.RiskAssessment, events []model.NotificationEvent) ([]model.NotificationEvent, error) {
	args := m.Called(ctx, a, events)
	return storedOrEcho(args.Get(0), events), args.Error(1)
}

func (m *mockStore) GetLifecycleItem(ctx context.Context, contractorID string, kind model.ItemKind, itemType string) (*model.LifecycleItem, error) {
	args := m.Called(ctx, contractorID, kind, itemType)
	it, _ := args.Get(0).(*model.LifecycleItem)
	return it, args.Error(1)
}

func (m *mockStore) ListLifecycleItems(ctx context.Context, contractorID string, kind model.ItemKind) ([]model.LifecycleItem, error) {
	args := m.Called(ctx, contractorID, kind)
	items, _ := args.Get(0).([]model.LifecycleItem)
	return items, args.Error(1)
}

func (m *mockStore) UpsertLifecycleItem(ctx context.Context, item model.LifecycleItem, events []model.NotificationEvent) ([]model.NotificationEvent, error) {
	args := m.Called(ctx, item, events)
	return storedOrEcho(args.Get(0), events), args.Error(1)
}

func (m *mockStore) SeedLifecycleItems(ctx context.Context, items []model.LifecycleItem, events []model.NotificationEvent) (int64, []model.NotificationEvent, error) {
	args := m.Called(ctx, items, events)
	return args.Get(0).(int64), storedOrEcho(args.Get(1), events), args.Error(2)
}

func (m *mockStore) GetCurrentDocument(ctx context.Context, contractorID, documentType string) (*model.DocumentRecord, error) {
	args := m.Called(ctx, contractorID, documentType)
	d, _ := args.Get(0).(*model.DocumentRecord)
	return d, args.Error(1)
}

func (m *mockStore) ListCurrentDocuments(ctx context.Context, contractorID string) ([]model.DocumentRecord, error) {
	args := m.Called(ctx, contractorID)
	docs, _ := args.Get(0).([]model.DocumentRecord)
	return docs, args.Error(1)
}

func (m *mockStore) RolloverDocument(ctx context.Context, rec *model.DocumentRecord, slot *model.LifecycleItem, events []model.NotificationEvent) ([]model.NotificationEvent, error) {
	args := m.Called(ctx, rec, slot, events)
	return storedOrEcho(args.Get(0), events), args.Error(1)
}

func (m *mockStore) AppendNotifications(ctx context.Context, events []model.NotificationEvent) ([]model.NotificationEvent, error) {
	args := m.Called(ctx, events)
	return storedOrEcho(args.Get(0), events), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}
