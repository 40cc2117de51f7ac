package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/identity-lifecycle-service/internal/domain/entity"
	repo "github.com/oksasatya/identity-lifecycle-service/internal/domain/repository"
)

// IdentityCache is a best-effort lookup cache keyed by identity id.
type IdentityCache interface {
	Get(ctx context.Context, id string) (*entity.Identity, bool, error)
	Set(ctx context.Context, i *entity.Identity) error
	Invalidate(ctx context.Context, id string) error
	// Flush drops every cached identity.
	Flush(ctx context.Context) error
}

type Options struct {
	StoreTimeout     time.Duration
	ReadRetryBackoff time.Duration
	Now              func() time.Time
	NewID            func() string
}

// Service is the single entry point of the identity lifecycle. Logging,
// counters, cache invalidation and event publishing happen after each
// operation's outcome is known and never change that outcome.
type Service struct {
	Repo      repo.IdentityStore
	Logger    *logrus.Logger
	Publisher EventPublisher
	Cache     IdentityCache

	Guard      *UniquenessGuard
	Reconciler *SocialReconciler
	Machine    *StatusMachine
	Paginator  *SearchPaginator

	call storeCall
	now  func() time.Time
}

func NewService(store repo.IdentityStore, logger *logrus.Logger, publisher EventPublisher, cache IdentityCache, opts Options) *Service {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.ReadRetryBackoff <= 0 {
		opts.ReadRetryBackoff = 100 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	call := storeCall{timeout: opts.StoreTimeout, backoff: opts.ReadRetryBackoff}
	return &Service{
		Repo:       store,
		Logger:     logger,
		Publisher:  publisher,
		Cache:      cache,
		Guard:      NewUniquenessGuard(store, call, opts.Now),
		Reconciler: NewSocialReconciler(store, call, opts.Now, opts.NewID),
		Machine:    NewStatusMachine(store, call, opts.Now),
		Paginator:  NewSearchPaginator(store, call),
		call:       call,
		now:        opts.Now,
	}
}

// Create registers a password identity in PENDING_VERIFICATION.
func (s *Service) Create(ctx context.Context, in entity.CredentialSignup) (*entity.Identity, error) {
	created, err := s.Guard.Create(ctx, in)
	s.record(ctx, "create", err, logrus.Fields{"email": entity.NormalizeEmail(in.Email), "username": in.Username})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventIdentityCreated, created)
	return created, nil
}

// UpsertSocial creates or refreshes the identity bound to a social account.
func (s *Service) UpsertSocial(ctx context.Context, p entity.SocialProfile) (*entity.Identity, error) {
	got, err := s.Reconciler.Upsert(ctx, p)
	s.record(ctx, "upsert_social", err, logrus.Fields{"provider": p.Provider, "provider_id": p.ProviderID})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, got.ID)
	s.publish(ctx, EventIdentityUpserted, got)
	return got, nil
}

// Get returns an identity by id, through the cache when one is configured.
// The password hash is never part of the result, cached or not.
func (s *Service) Get(ctx context.Context, id string) (*entity.Identity, error) {
	if s.Cache != nil {
		if cached, ok, err := s.Cache.Get(ctx, id); err == nil && ok {
			countOp("get.cache_hit", nil)
			return cached, nil
		} else if err != nil {
			s.warn(err, "identity cache read failed", logrus.Fields{"identity_id": id})
		}
	}
	got, err := read(ctx, s.call, func(ctx context.Context) (*entity.Identity, error) {
		return s.Repo.FindByID(ctx, id)
	})
	countOp("get", err)
	if err != nil {
		return nil, err
	}
	got.PasswordHash = ""
	if s.Cache != nil {
		if cErr := s.Cache.Set(ctx, got); cErr != nil {
			s.warn(cErr, "identity cache write failed", logrus.Fields{"identity_id": id})
		}
	}
	return got, nil
}

func (s *Service) GetByProvider(ctx context.Context, provider, providerID string) (*entity.Identity, error) {
	provider, providerID = strings.TrimSpace(provider), strings.TrimSpace(providerID)
	if provider == "" || providerID == "" {
		return nil, entity.ErrInvalidInput
	}
	got, err := read(ctx, s.call, func(ctx context.Context) (*entity.Identity, error) {
		return s.Repo.FindByProviderAndProviderID(ctx, provider, providerID)
	})
	countOp("get_by_provider", err)
	return got, err
}

// UpdateProfile writes only the fields present in patch.
func (s *Service) UpdateProfile(ctx context.Context, id string, patch entity.ProfilePatch) (*entity.Identity, error) {
	if patch.Empty() {
		return s.Get(ctx, id)
	}
	patch = patch.Normalized()
	now := s.now()
	got, err := write(ctx, s.call, func(ctx context.Context) (*entity.Identity, error) {
		return s.Repo.UpdateProfileFields(ctx, id, patch, now)
	})
	err = asDuplicate(err)
	s.record(ctx, "update_profile", err, logrus.Fields{"identity_id": id})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	s.publish(ctx, EventIdentityUpdated, got)
	return got, nil
}

// Transition applies a status change through the state machine.
func (s *Service) Transition(ctx context.Context, id string, target entity.Status) (*entity.Identity, error) {
	got, err := s.Machine.Transition(ctx, id, target)
	s.record(ctx, "transition", err, logrus.Fields{"identity_id": id, "target": target})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	s.publish(ctx, EventIdentityStatusChanged, got)
	return got, nil
}

// Delete is a soft delete: a transition to DELETED.
func (s *Service) Delete(ctx context.Context, id string) error {
	_, err := s.Transition(ctx, id, entity.StatusDeleted)
	return err
}

func (s *Service) Search(ctx context.Context, term string, page, size int) (Page, error) {
	res, err := s.Paginator.Search(ctx, term, page, size)
	countOp("search", err)
	if err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("term", term).Warn("identity search failed")
	}
	return res, err
}

// Availability reports whether an email and/or username are still free.
type Availability struct {
	Email             string `json:"email,omitempty"`
	EmailAvailable    *bool  `json:"email_available,omitempty"`
	Username          string `json:"username,omitempty"`
	UsernameAvailable *bool  `json:"username_available,omitempty"`
}

func (s *Service) Availability(ctx context.Context, email, username string) (Availability, error) {
	out := Availability{Email: entity.NormalizeEmail(email), Username: strings.TrimSpace(username)}
	if out.Email == "" && out.Username == "" {
		return out, entity.ErrInvalidInput
	}
	if out.Email != "" {
		taken, err := read(ctx, s.call, func(ctx context.Context) (bool, error) {
			return s.Repo.ExistsByEmail(ctx, out.Email)
		})
		if err != nil {
			return out, err
		}
		free := !taken
		out.EmailAvailable = &free
	}
	if out.Username != "" {
		taken, err := read(ctx, s.call, func(ctx context.Context) (bool, error) {
			return s.Repo.ExistsByUsername(ctx, out.Username)
		})
		if err != nil {
			return out, err
		}
		free := !taken
		out.UsernameAvailable = &free
	}
	return out, nil
}

func (s *Service) StatusCounts(ctx context.Context) (map[entity.Status]int64, error) {
	return read(ctx, s.call, func(ctx context.Context) (map[entity.Status]int64, error) {
		return s.Repo.CountByStatus(ctx)
	})
}

// OnPendingExpired implements SweepObserver. Cached records may hold the
// old status, so the whole cache is dropped.
func (s *Service) OnPendingExpired(ctx context.Context, count int64, cutoff time.Time) {
	opCounters.Add("sweep.expired", count)
	if s.Cache != nil {
		if err := s.Cache.Flush(ctx); err != nil {
			s.warn(err, "identity cache flush failed", nil)
		}
	}
	if s.Publisher == nil {
		return
	}
	ev := IdentityEvent{Type: EventPendingExpired, OccurredAt: s.now(), Count: count, Cutoff: &cutoff}
	if err := s.Publisher.PublishJSON(ctx, ev); err != nil {
		s.warn(err, "publish identity event failed", logrus.Fields{"type": ev.Type})
	}
}

func (s *Service) record(ctx context.Context, op string, err error, fields logrus.Fields) {
	countOp(op, err)
	if s.Logger == nil {
		return
	}
	entry := s.Logger.WithContext(ctx).WithFields(fields).WithField("op", op)
	switch {
	case err == nil:
		entry.Info("identity operation succeeded")
	case isCallerError(err):
		entry.WithError(err).Info("identity operation rejected")
	default:
		entry.WithError(err).Error("identity operation failed")
	}
}

func (s *Service) publish(ctx context.Context, typ string, i *entity.Identity) {
	if s.Publisher == nil || i == nil {
		return
	}
	view := ToView(*i)
	ev := IdentityEvent{Type: typ, OccurredAt: s.now(), Identity: &view}
	if err := s.Publisher.PublishJSON(ctx, ev); err != nil {
		s.warn(err, "publish identity event failed", logrus.Fields{"type": typ, "identity_id": i.ID})
	}
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, id); err != nil {
		s.warn(err, "identity cache invalidate failed", logrus.Fields{"identity_id": id})
	}
}

func (s *Service) warn(err error, msg string, fields logrus.Fields) {
	if s.Logger == nil {
		return
	}
	s.Logger.WithError(err).WithFields(fields).Warn(msg)
}

func isCallerError(err error) bool {
	var dup *entity.DuplicateIdentityError
	var illegal *entity.IllegalTransitionError
	return errors.Is(err, entity.ErrInvalidInput) ||
		errors.Is(err, entity.ErrNotFound) ||
		errors.As(err, &dup) ||
		errors.As(err, &illegal)
}
