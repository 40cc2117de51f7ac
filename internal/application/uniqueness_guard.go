package application

import (
	"context"
	"time"

	"github.com/oksasatya/identity-lifecycle-service/internal/domain/entity"
	repo "github.com/oksasatya/identity-lifecycle-service/internal/domain/repository"
)

// UniquenessGuard creates password identities. The existence checks are a
// fast path only; the store's unique indexes decide.
type UniquenessGuard struct {
	store repo.IdentityStore
	call  storeCall
	now   func() time.Time
}

func NewUniquenessGuard(store repo.IdentityStore, call storeCall, now func() time.Time) *UniquenessGuard {
	return &UniquenessGuard{store: store, call: call, now: now}
}

func (g *UniquenessGuard) Create(ctx context.Context, in entity.CredentialSignup) (*entity.Identity, error) {
	candidate, err := entity.NewWithCredential(in, g.now())
	if err != nil {
		return nil, err
	}

	taken, err := read(ctx, g.call, func(ctx context.Context) (bool, error) {
		return g.store.ExistsByEmail(ctx, candidate.Email)
	})
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, &entity.DuplicateIdentityError{Field: entity.FieldEmail}
	}

	taken, err = read(ctx, g.call, func(ctx context.Context) (bool, error) {
		return g.store.ExistsByUsername(ctx, candidate.Username)
	})
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, &entity.DuplicateIdentityError{Field: entity.FieldUsername}
	}

	created, err := write(ctx, g.call, func(ctx context.Context) (*entity.Identity, error) {
		return g.store.Insert(ctx, candidate)
	})
	if err != nil {
		return nil, asDuplicate(err)
	}
	return created, nil
}
