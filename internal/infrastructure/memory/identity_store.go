// Package memory holds an in-process IdentityStore. Every method runs under
// one mutex, which gives it the same atomicity the Postgres store gets from
// unique indexes and ON CONFLICT.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/identity-lifecycle-service/internal/domain/entity"
	"github.com/oksasatya/identity-lifecycle-service/internal/domain/repository"
)

type IdentityStore struct {
	mu   sync.Mutex
	rows map[string]*entity.Identity
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{rows: make(map[string]*entity.Identity)}
}

func (s *IdentityStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, mapCtxErr(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emailTaken(entity.NormalizeEmail(email), ""), nil
}

func (s *IdentityStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, mapCtxErr(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usernameTaken(username, ""), nil
}

func (s *IdentityStore) FindByID(ctx context.Context, id string) (*entity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapCtxErr(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, &entity.NotFoundError{ID: id}
	}
	cp := *row
	return &cp, nil
}

func (s *IdentityStore) FindByProviderAndProviderID(ctx context.Context, provider, providerID string) (*entity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapCtxErr(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if row := s.byProvider(provider, providerID); row != nil {
		cp := *row
		return &cp, nil
	}
	return nil, &entity.NotFoundError{ID: provider + ":" + providerID}
}

func (s *IdentityStore) Insert(ctx context.Context, in entity.Identity) (*entity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapCtxErr(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(in, ""); err != nil {
		return nil, err
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	in.Email = entity.NormalizeEmail(in.Email)
	s.rows[in.ID] = &in
	cp := in
	return &cp, nil
}

func (s *IdentityStore) UpsertByProviderKey(ctx context.Context, in entity.Identity) (*entity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapCtxErr(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	in.Email = entity.NormalizeEmail(in.Email)
	if row := s.byProvider(in.Provider, in.ProviderID); row != nil {
		if in.Email != "" && row.Status != entity.StatusDeleted && s.emailTaken(in.Email, row.ID) {
			return nil, &entity.ConstraintViolationError{Field: entity.FieldEmail}
		}
		row.Email = in.Email
		row.FullName = in.FullName
		row.Headline = in.Headline
		row.ProfileLink = in.ProfileLink
		row.HeadshotURL = in.HeadshotURL
		row.UpdatedAt = notBefore(in.UpdatedAt, row.CreatedAt)
		cp := *row
		return &cp, nil
	}
	if err := s.checkUnique(in, ""); err != nil {
		return nil, err
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	s.rows[in.ID] = &in
	cp := in
	return &cp, nil
}

func (s *IdentityStore) UpdateStatus(ctx context.Context, id string, expected, next entity.Status, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, mapCtxErr(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.Status != expected {
		return false, nil
	}
	row.Status = next
	row.UpdatedAt = notBefore(now, row.CreatedAt)
	return true, nil
}

func (s *IdentityStore) UpdateProfileFields(ctx context.Context, id string, patch entity.ProfilePatch, now time.Time) (*entity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapCtxErr(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, &entity.NotFoundError{ID: id}
	}
	if patch.Email != nil {
		email := entity.NormalizeEmail(*patch.Email)
		if email != "" && row.Status != entity.StatusDeleted && s.emailTaken(email, id) {
			return nil, &entity.ConstraintViolationError{Field: entity.FieldEmail}
		}
		row.Email = email
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&row.FullName, patch.FullName)
	set(&row.Headline, patch.Headline)
	set(&row.ProfileLink, patch.ProfileLink)
	set(&row.HeadshotURL, patch.HeadshotURL)
	row.UpdatedAt = notBefore(now, row.CreatedAt)
	cp := *row
	return &cp, nil
}

func (s *IdentityStore) Search(ctx context.Context, term string, offset, limit int) ([]entity.Identity, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, mapCtxErr(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(strings.TrimSpace(term))
	matched := make([]*entity.Identity, 0, len(s.rows))
	for _, row := range s.rows {
		if needle == "" ||
			strings.Contains(strings.ToLower(row.FullName), needle) ||
			strings.Contains(strings.ToLower(row.Email), needle) ||
			strings.Contains(strings.ToLower(row.Username), needle) {
			matched = append(matched, row)
		}
	}
	sort.Slice(matched, func(a, b int) bool {
		if !matched[a].CreatedAt.Equal(matched[b].CreatedAt) {
			return matched[a].CreatedAt.After(matched[b].CreatedAt)
		}
		return matched[a].ID > matched[b].ID
	})

	total := int64(len(matched))
	items := []entity.Identity{}
	if offset < 0 || limit <= 0 || offset >= len(matched) {
		return items, total, nil
	}
	end := len(matched)
	if limit < end-offset {
		end = offset + limit
	}
	for _, row := range matched[offset:end] {
		items = append(items, *row)
	}
	return items, total, nil
}

func (s *IdentityStore) BulkExpirePending(ctx context.Context, cutoff, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, mapCtxErr(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.rows {
		if row.Status == entity.StatusPendingVerification && row.CreatedAt.Before(cutoff) {
			row.Status = entity.StatusInactive
			row.UpdatedAt = notBefore(now, row.CreatedAt)
			n++
		}
	}
	return n, nil
}

func (s *IdentityStore) CountByStatus(ctx context.Context) (map[entity.Status]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapCtxErr(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[entity.Status]int64, len(entity.AllStatuses))
	for _, st := range entity.AllStatuses {
		out[st] = 0
	}
	for _, row := range s.rows {
		out[row.Status]++
	}
	return out, nil
}

func (s *IdentityStore) checkUnique(in entity.Identity, selfID string) error {
	if in.Status == entity.StatusDeleted {
		return nil
	}
	if email := entity.NormalizeEmail(in.Email); email != "" && s.emailTaken(email, selfID) {
		return &entity.ConstraintViolationError{Field: entity.FieldEmail}
	}
	if in.Username != "" && s.usernameTaken(in.Username, selfID) {
		return &entity.ConstraintViolationError{Field: entity.FieldUsername}
	}
	if in.HasProvider() && selfID == "" && s.byProvider(in.Provider, in.ProviderID) != nil {
		return &entity.ConstraintViolationError{Field: entity.FieldProviderKey}
	}
	return nil
}

func (s *IdentityStore) emailTaken(email, exceptID string) bool {
	for id, row := range s.rows {
		if id != exceptID && row.Status != entity.StatusDeleted && row.Email == email {
			return true
		}
	}
	return false
}

func (s *IdentityStore) usernameTaken(username, exceptID string) bool {
	for id, row := range s.rows {
		if id != exceptID && row.Status != entity.StatusDeleted && row.Username == username {
			return true
		}
	}
	return false
}

func (s *IdentityStore) byProvider(provider, providerID string) *entity.Identity {
	if provider == "" || providerID == "" {
		return nil
	}
	for _, row := range s.rows {
		if row.Provider == provider && row.ProviderID == providerID {
			return row
		}
	}
	return nil
}

func notBefore(t, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}

func mapCtxErr(err error) error {
	if err == context.DeadlineExceeded {
		return entity.ErrTimeout
	}
	return err
}

var _ repository.IdentityStore = (*IdentityStore)(nil)
