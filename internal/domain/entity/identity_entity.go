package entity

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an identity.
type Status string

const (
	StatusPendingVerification Status = "PENDING_VERIFICATION"
	StatusActive              Status = "ACTIVE"
	StatusInactive            Status = "INACTIVE"
	StatusSuspended           Status = "SUSPENDED"
	StatusDeleted             Status = "DELETED"
)

// AllStatuses lists every status in declaration order.
var AllStatuses = []Status{
	StatusPendingVerification,
	StatusActive,
	StatusInactive,
	StatusSuspended,
	StatusDeleted,
}

// ParseStatus accepts a status name in any letter case.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllStatuses {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// Identity is the aggregate root of the identity domain.
//
// It has a single fixed shape regardless of how it was created; use
// NewWithCredential or NewFromSocialProfile to build one. Empty strings
// mean "absent".
type Identity struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	FullName     string
	Headline     string
	ProfileLink  string
	HeadshotURL  string
	Status       Status
	Provider     string
	ProviderID   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasProvider reports whether the identity is bound to a social provider.
func (i Identity) HasProvider() bool {
	return i.Provider != "" && i.ProviderID != ""
}

// CredentialSignup is the input of the password signup path. PasswordHash
// must already be hashed by the caller.
type CredentialSignup struct {
	Username     string
	Email        string
	PasswordHash string
	FullName     string
}

// SocialProfile is the profile delivered by a social login provider.
type SocialProfile struct {
	Provider    string
	ProviderID  string
	Email       string
	FullName    string
	Headline    string
	ProfileLink string
	HeadshotURL string
}

// ProfilePatch carries a partial profile update; nil fields are left untouched.
type ProfilePatch struct {
	Email       *string
	FullName    *string
	Headline    *string
	ProfileLink *string
	HeadshotURL *string
}

// Empty reports whether the patch touches no field.
func (p ProfilePatch) Empty() bool {
	return p.Email == nil && p.FullName == nil && p.Headline == nil && p.ProfileLink == nil && p.HeadshotURL == nil
}

// Normalized returns a copy with the email normalised.
func (p ProfilePatch) Normalized() ProfilePatch {
	if p.Email != nil {
		e := NormalizeEmail(*p.Email)
		p.Email = &e
	}
	return p
}

// NormalizeEmail is applied on every write and every lookup so that
// uniqueness checks and reads agree on case.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewWithCredential builds a fresh identity for the password signup path.
func NewWithCredential(in CredentialSignup, now time.Time) (Identity, error) {
	username := strings.TrimSpace(in.Username)
	email := NormalizeEmail(in.Email)
	if username == "" || email == "" || in.PasswordHash == "" {
		return Identity{}, ErrInvalidInput
	}
	return Identity{
		Username:     username,
		Email:        email,
		PasswordHash: in.PasswordHash,
		FullName:     strings.TrimSpace(in.FullName),
		Status:       StatusPendingVerification,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NewFromSocialProfile builds a fresh identity bound to (provider, providerID).
// The id is supplied by the caller so that the conditional upsert can insert
// it verbatim when no row matches.
func NewFromSocialProfile(id string, p SocialProfile, now time.Time) (Identity, error) {
	provider := strings.TrimSpace(p.Provider)
	providerID := strings.TrimSpace(p.ProviderID)
	if provider == "" || providerID == "" {
		return Identity{}, ErrInvalidInput
	}
	return Identity{
		ID:          id,
		Email:       NormalizeEmail(p.Email),
		FullName:    p.FullName,
		Headline:    p.Headline,
		ProfileLink: p.ProfileLink,
		HeadshotURL: p.HeadshotURL,
		Status:      StatusPendingVerification,
		Provider:    provider,
		ProviderID:  providerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
