package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oksasatya/identity-lifecycle-service/internal/domain/entity"
	"github.com/oksasatya/identity-lifecycle-service/internal/domain/repository"
)

// DB is the subset of *pgxpool.Pool used by the repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"

const identityColumns = `id::text, COALESCE(username, ''), COALESCE(email, ''), COALESCE(password_hash, ''),
	COALESCE(full_name, ''), COALESCE(headline, ''), COALESCE(profile_link, ''), COALESCE(headshot_url, ''),
	status::text, COALESCE(provider, ''), COALESCE(provider_id, ''), created_at, updated_at`

type IdentityRepository struct {
	db DB
}

func NewIdentityRepository(db DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

func scanIdentity(row pgx.Row) (*entity.Identity, error) {
	var (
		i      entity.Identity
		status string
	)
	if err := row.Scan(&i.ID, &i.Username, &i.Email, &i.PasswordHash,
		&i.FullName, &i.Headline, &i.ProfileLink, &i.HeadshotURL,
		&status, &i.Provider, &i.ProviderID, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, err
	}
	i.Status = entity.Status(status)
	return &i, nil
}

func (r *IdentityRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM identities
			WHERE lower(email) = $1 AND status <> 'DELETED'
		)
	`, entity.NormalizeEmail(email)).Scan(&exists)
	return exists, mapError(err)
}

func (r *IdentityRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM identities
			WHERE username = $1 AND status <> 'DELETED'
		)
	`, username).Scan(&exists)
	return exists, mapError(err)
}

func (r *IdentityRepository) FindByID(ctx context.Context, id string) (*entity.Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, &entity.NotFoundError{ID: id}
	}
	i, err := scanIdentity(r.db.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &entity.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, mapError(err)
	}
	return i, nil
}

func (r *IdentityRepository) FindByProviderAndProviderID(ctx context.Context, provider, providerID string) (*entity.Identity, error) {
	i, err := scanIdentity(r.db.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE provider = $1 AND provider_id = $2
	`, provider, providerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &entity.NotFoundError{ID: provider + ":" + providerID}
	}
	if err != nil {
		return nil, mapError(err)
	}
	return i, nil
}

func (r *IdentityRepository) Insert(ctx context.Context, in entity.Identity) (*entity.Identity, error) {
	i, err := scanIdentity(r.db.QueryRow(ctx, `
		INSERT INTO identities (
			username, email, password_hash, full_name, headline, profile_link,
			headshot_url, status, provider, provider_id, created_at, updated_at
		)
		VALUES (
			NULLIF($1, ''), NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
			NULLIF($7, ''), $8::identity_status, NULLIF($9, ''), NULLIF($10, ''), $11, $12
		)
		RETURNING `+identityColumns,
		in.Username, in.Email, in.PasswordHash, in.FullName, in.Headline, in.ProfileLink,
		in.HeadshotURL, string(in.Status), in.Provider, in.ProviderID, in.CreatedAt, in.UpdatedAt))
	if err != nil {
		return nil, mapError(err)
	}
	return i, nil
}

// UpsertByProviderKey relies on ON CONFLICT over the partial provider index,
// so concurrent logins from the same social account converge on one row.
func (r *IdentityRepository) UpsertByProviderKey(ctx context.Context, in entity.Identity) (*entity.Identity, error) {
	i, err := scanIdentity(r.db.QueryRow(ctx, `
		INSERT INTO identities (
			id, username, email, full_name, headline, profile_link,
			headshot_url, status, provider, provider_id, created_at, updated_at
		)
		VALUES (
			$1::uuid, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
			NULLIF($7, ''), $8::identity_status, $9, $10, $11, $12
		)
		ON CONFLICT (provider, provider_id)
		WHERE provider IS NOT NULL AND provider_id IS NOT NULL
		DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			headline = EXCLUDED.headline,
			profile_link = EXCLUDED.profile_link,
			headshot_url = EXCLUDED.headshot_url,
			updated_at = GREATEST(EXCLUDED.updated_at, identities.created_at)
		RETURNING `+identityColumns,
		in.ID, in.Username, in.Email, in.FullName, in.Headline, in.ProfileLink,
		in.HeadshotURL, string(in.Status), in.Provider, in.ProviderID, in.CreatedAt, in.UpdatedAt))
	if err != nil {
		return nil, mapError(err)
	}
	return i, nil
}

func (r *IdentityRepository) UpdateStatus(ctx context.Context, id string, expected, next entity.Status, now time.Time) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	res, err := r.db.Exec(ctx, `
		UPDATE identities
		SET status = $3::identity_status, updated_at = GREATEST($4, created_at)
		WHERE id = $1 AND status = $2::identity_status
	`, id, string(expected), string(next), now)
	if err != nil {
		return false, mapError(err)
	}
	return res.RowsAffected() == 1, nil
}

func (r *IdentityRepository) UpdateProfileFields(ctx context.Context, id string, patch entity.ProfilePatch, now time.Time) (*entity.Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, &entity.NotFoundError{ID: id}
	}
	args := []any{id}
	sets := make([]string, 0, 6)
	add := func(column string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		sets = append(sets, column+" = NULLIF($"+strconv.Itoa(len(args))+", '')")
	}
	add("email", patch.Email)
	add("full_name", patch.FullName)
	add("headline", patch.Headline)
	add("profile_link", patch.ProfileLink)
	add("headshot_url", patch.HeadshotURL)
	args = append(args, now)
	sets = append(sets, "updated_at = GREATEST($"+strconv.Itoa(len(args))+", created_at)")

	i, err := scanIdentity(r.db.QueryRow(ctx, `
		UPDATE identities
		SET `+strings.Join(sets, ", ")+`
		WHERE id = $1
		RETURNING `+identityColumns, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &entity.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, mapError(err)
	}
	return i, nil
}

// Search pushes offset/limit to the database; the total comes from a
// separate count over the same predicate so out-of-range pages still report it.
func (r *IdentityRepository) Search(ctx context.Context, term string, offset, limit int) ([]entity.Identity, int64, error) {
	where := ""
	args := []any{}
	if t := strings.TrimSpace(term); t != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(t))+"%")
		where = `WHERE lower(full_name) LIKE $1 ESCAPE '\'
			OR lower(email) LIKE $1 ESCAPE '\'
			OR lower(username) LIKE $1 ESCAPE '\'`
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM identities `+where, args...).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}
	if total == 0 || offset < 0 || limit <= 0 || int64(offset) >= total {
		return []entity.Identity{}, total, nil
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.db.Query(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		`+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	items := make([]entity.Identity, 0, limit)
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, 0, mapError(err)
		}
		items = append(items, *i)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError(err)
	}
	return items, total, nil
}

// BulkExpirePending is a single conditional update; overlapping sweeps
// simply find no matching rows.
func (r *IdentityRepository) BulkExpirePending(ctx context.Context, cutoff, now time.Time) (int64, error) {
	res, err := r.db.Exec(ctx, `
		UPDATE identities
		SET status = 'INACTIVE', updated_at = GREATEST($2, created_at)
		WHERE status = 'PENDING_VERIFICATION' AND created_at < $1
	`, cutoff, now)
	if err != nil {
		return 0, mapError(err)
	}
	return res.RowsAffected(), nil
}

func (r *IdentityRepository) CountByStatus(ctx context.Context) (map[entity.Status]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status::text, count(*) FROM identities GROUP BY status`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make(map[entity.Status]int64, len(entity.AllStatuses))
	for _, s := range entity.AllStatuses {
		out[s] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, mapError(err)
		}
		out[entity.Status(status)] = n
	}
	return out, mapError(rows.Err())
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// mapError translates driver errors into the domain taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &entity.ConstraintViolationError{Field: constraintField(pgErr.ConstraintName), Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", entity.ErrTimeout, err)
	}
	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", entity.ErrStoreUnavailable, err)
	}
	return err
}

func constraintField(name string) string {
	switch {
	case strings.Contains(name, "email"):
		return entity.FieldEmail
	case strings.Contains(name, "username"):
		return entity.FieldUsername
	case strings.Contains(name, "provider"):
		return entity.FieldProviderKey
	}
	return name
}

var _ repository.IdentityStore = (*IdentityRepository)(nil)
