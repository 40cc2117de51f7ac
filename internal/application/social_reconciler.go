package application

import (
	"context"
	"time"

	"github.com/oksasatya/identity-lifecycle-service/internal/domain/entity"
	repo "github.com/oksasatya/identity-lifecycle-service/internal/domain/repository"
)

// SocialReconciler merges social login profiles keyed by (provider, providerID).
//
// On a match the profile fields are replaced wholesale, empty values
// included; status, username, id and created_at are kept. The decision is
// taken by a single conditional write at the store, never by a lookup here.
type SocialReconciler struct {
	store repo.IdentityStore
	call  storeCall
	now   func() time.Time
	newID func() string
}

func NewSocialReconciler(store repo.IdentityStore, call storeCall, now func() time.Time, newID func() string) *SocialReconciler {
	return &SocialReconciler{store: store, call: call, now: now, newID: newID}
}

func (r *SocialReconciler) Upsert(ctx context.Context, p entity.SocialProfile) (*entity.Identity, error) {
	candidate, err := entity.NewFromSocialProfile(r.newID(), p, r.now())
	if err != nil {
		return nil, err
	}
	got, err := write(ctx, r.call, func(ctx context.Context) (*entity.Identity, error) {
		return r.store.UpsertByProviderKey(ctx, candidate)
	})
	if err != nil {
		return nil, asDuplicate(err)
	}
	return got, nil
}
