package application

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/oksasatya/identity-lifecycle-service/internal/domain/entity"
)

// MockIdentityStore is a testify mock of repository.IdentityStore.
type MockIdentityStore struct {
	mock.Mock
}

func (m *MockIdentityStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdentityStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdentityStore) FindByID(ctx context.Context, id string) (*entity.Identity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Identity), args.Error(1)
}

func (m *MockIdentityStore) FindByProviderAndProviderID(ctx context.Context, provider, providerID string) (*entity.Identity, error) {
	args := m.Called(ctx, provider, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Identity), args.Error(1)
}

func (m *MockIdentityStore) Insert(ctx context.Context, i entity.Identity) (*entity.Identity, error) {
	args := m.Called(ctx, i)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Identity), args.Error(1)
}

func (m *MockIdentityStore) UpsertByProviderKey(ctx context.Context, i entity.Identity) (*entity.Identity, error) {
	args := m.Called(ctx, i)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Identity), args.Error(1)
}

func (m *MockIdentityStore) UpdateStatus(ctx context.Context, id string, expected, next entity.Status, now time.Time) (bool, error) {
	args := m.Called(ctx, id, expected, next, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdentityStore) UpdateProfileFields(ctx context.Context, id string, patch entity.ProfilePatch, now time.Time) (*entity.Identity, error) {
	args := m.Called(ctx, id, patch, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Identity), args.Error(1)
}

func (m *MockIdentityStore) Search(ctx context.Context, term string, offset, limit int) ([]entity.Identity, int64, error) {
	args := m.Called(ctx, term, offset, limit)
	items, _ := args.Get(0).([]entity.Identity)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *MockIdentityStore) BulkExpirePending(ctx context.Context, cutoff, now time.Time) (int64, error) {
	args := m.Called(ctx, cutoff, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockIdentityStore) CountByStatus(ctx context.Context) (map[entity.Status]int64, error) {
	args := m.Called(ctx)
	counts, _ := args.Get(0).(map[entity.Status]int64)
	return counts, args.Error(1)
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	events []IdentityEvent
}

func (p *recordingPublisher) PublishJSON(_ context.Context, body any) error {
	if ev, ok := body.(IdentityEvent); ok {
		p.events = append(p.events, ev)
	}
	return nil
}
