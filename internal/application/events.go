package application

import (
	"context"
	"time"

	"github.com/oksasatya/identity-lifecycle-service/internal/domain/entity"
)

// Event types published after a state change has been committed.
const (
	EventIdentityCreated       = "identity.created"
	EventIdentityUpserted      = "identity.upserted"
	EventIdentityUpdated       = "identity.profile_updated"
	EventIdentityStatusChanged = "identity.status_changed"
	EventPendingExpired        = "identity.pending_expired"
)

// EventPublisher is satisfied by helpers.RabbitPublisher.
type EventPublisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// IdentityView is the public projection of an identity; the password hash
// never leaves the service.
type IdentityView struct {
	ID          string    `json:"id"`
	Username    string    `json:"username,omitempty"`
	Email       string    `json:"email,omitempty"`
	FullName    string    `json:"full_name,omitempty"`
	Headline    string    `json:"headline,omitempty"`
	ProfileLink string    `json:"profile_link,omitempty"`
	HeadshotURL string    `json:"headshot_url,omitempty"`
	Status      string    `json:"status"`
	Provider    string    `json:"provider,omitempty"`
	ProviderID  string    `json:"provider_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func ToView(i entity.Identity) IdentityView {
	return IdentityView{
		ID:          i.ID,
		Username:    i.Username,
		Email:       i.Email,
		FullName:    i.FullName,
		Headline:    i.Headline,
		ProfileLink: i.ProfileLink,
		HeadshotURL: i.HeadshotURL,
		Status:      string(i.Status),
		Provider:    i.Provider,
		ProviderID:  i.ProviderID,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}

// IdentityEvent is the message body written to the identity queue.
// Identity is set for single-record events; Count and Cutoff for sweeps.
type IdentityEvent struct {
	Type       string        `json:"type"`
	OccurredAt time.Time     `json:"occurred_at"`
	Identity   *IdentityView `json:"identity,omitempty"`
	Count      int64         `json:"count,omitempty"`
	Cutoff     *time.Time    `json:"cutoff,omitempty"`
}
