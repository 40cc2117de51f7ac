package repository

import (
	"context"
	"time"

	"github.com/oksasatya/identity-lifecycle-service/internal/domain/entity"
)

// IdentityStore defines the durable storage contract consumed by the application layer.
//
// Lookups return entity.ErrNotFound when no row matches. Insert and
// UpsertByProviderKey return *entity.ConstraintViolationError on unique
// index conflicts. Transport failures surface as entity.ErrStoreUnavailable
// or entity.ErrTimeout.
type IdentityStore interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	FindByID(ctx context.Context, id string) (*entity.Identity, error)
	FindByProviderAndProviderID(ctx context.Context, provider, providerID string) (*entity.Identity, error)
	Insert(ctx context.Context, i entity.Identity) (*entity.Identity, error)
	// UpsertByProviderKey inserts i or, when (provider, provider_id) already
	// exists, replaces its profile fields and updated_at in one atomic write.
	UpsertByProviderKey(ctx context.Context, i entity.Identity) (*entity.Identity, error)
	// UpdateStatus applies next only if the row is still in expected.
	UpdateStatus(ctx context.Context, id string, expected, next entity.Status, now time.Time) (bool, error)
	UpdateProfileFields(ctx context.Context, id string, patch entity.ProfilePatch, now time.Time) (*entity.Identity, error)
	Search(ctx context.Context, term string, offset, limit int) ([]entity.Identity, int64, error)
	BulkExpirePending(ctx context.Context, cutoff, now time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[entity.Status]int64, error)
}
