package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/identity-lifecycle-service/internal/domain/entity"
	"github.com/oksasatya/identity-lifecycle-service/pkg/helpers"
)

const generationKey = "identity:cache:gen"

// cachedIdentity mirrors entity.Identity without the password hash.
type cachedIdentity struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name"`
	Headline    string    `json:"headline"`
	ProfileLink string    `json:"profile_link"`
	HeadshotURL string    `json:"headshot_url"`
	Status      string    `json:"status"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IdentityCache is a Redis read-through cache for identity lookups.
// Keys carry a generation number so Flush can drop every entry with a
// single INCR instead of a keyspace scan.
type IdentityCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdentityCache(rdb *redis.Client, ttl time.Duration) *IdentityCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &IdentityCache{rdb: rdb, ttl: ttl}
}

func (c *IdentityCache) key(ctx context.Context, id string) (string, error) {
	gen, err := c.rdb.Get(ctx, generationKey).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return "identity:" + strconv.FormatInt(gen, 10) + ":" + id, nil
}

func (c *IdentityCache) Get(ctx context.Context, id string) (*entity.Identity, bool, error) {
	key, err := c.key(ctx, id)
	if err != nil {
		return nil, false, err
	}
	var v cachedIdentity
	ok, err := helpers.RedisGetJSON(ctx, c.rdb, key, &v)
	if err != nil || !ok {
		return nil, false, err
	}
	return &entity.Identity{
		ID:          v.ID,
		Username:    v.Username,
		Email:       v.Email,
		FullName:    v.FullName,
		Headline:    v.Headline,
		ProfileLink: v.ProfileLink,
		HeadshotURL: v.HeadshotURL,
		Status:      entity.Status(v.Status),
		Provider:    v.Provider,
		ProviderID:  v.ProviderID,
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}, true, nil
}

func (c *IdentityCache) Set(ctx context.Context, i *entity.Identity) error {
	key, err := c.key(ctx, i.ID)
	if err != nil {
		return err
	}
	return helpers.RedisSetJSON(ctx, c.rdb, key, cachedIdentity{
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
	}, c.ttl)
}

func (c *IdentityCache) Invalidate(ctx context.Context, id string) error {
	key, err := c.key(ctx, id)
	if err != nil {
		return err
	}
	return helpers.RedisDel(ctx, c.rdb, key)
}

func (c *IdentityCache) Flush(ctx context.Context) error {
	return c.rdb.Incr(ctx, generationKey).Err()
}
