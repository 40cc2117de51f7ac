package application

import (
	"context"
	"time"

	"github.com/oksasatya/identity-lifecycle-service/internal/domain/entity"
	repo "github.com/oksasatya/identity-lifecycle-service/internal/domain/repository"
)

// maxTransitionAttempts bounds the optimistic reload loop when the row
// changes status between read and conditional update.
const maxTransitionAttempts = 3

type StatusMachine struct {
	store repo.IdentityStore
	call  storeCall
	now   func() time.Time
}

func NewStatusMachine(store repo.IdentityStore, call storeCall, now func() time.Time) *StatusMachine {
	return &StatusMachine{store: store, call: call, now: now}
}

// Transition moves identity id to target. Only status and updated_at are
// written, and only while the row is still in the state that was validated.
func (m *StatusMachine) Transition(ctx context.Context, id string, target entity.Status) (*entity.Identity, error) {
	if _, ok := entity.ParseStatus(string(target)); !ok {
		return nil, entity.ErrInvalidInput
	}

	var current *entity.Identity
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		var err error
		current, err = m.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if !entity.CanTransition(current.Status, target) {
			return nil, &entity.IllegalTransitionError{From: current.Status, To: target}
		}

		now := m.now()
		applied, err := write(ctx, m.call, func(ctx context.Context) (bool, error) {
			return m.store.UpdateStatus(ctx, id, current.Status, target, now)
		})
		if err != nil {
			return nil, asDuplicate(err)
		}
		if applied {
			current.Status = target
			if now.After(current.CreatedAt) {
				current.UpdatedAt = now
			} else {
				current.UpdatedAt = current.CreatedAt
			}
			return current, nil
		}
	}

	latest, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &entity.IllegalTransitionError{From: latest.Status, To: target}
}

// ExpirePending moves every PENDING_VERIFICATION identity created before
// cutoff to INACTIVE with one conditional bulk update.
func (m *StatusMachine) ExpirePending(ctx context.Context, cutoff time.Time) (int64, error) {
	now := m.now()
	return write(ctx, m.call, func(ctx context.Context) (int64, error) {
		return m.store.BulkExpirePending(ctx, cutoff, now)
	})
}

func (m *StatusMachine) load(ctx context.Context, id string) (*entity.Identity, error) {
	return read(ctx, m.call, func(ctx context.Context) (*entity.Identity, error) {
		return m.store.FindByID(ctx, id)
	})
}
