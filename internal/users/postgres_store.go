package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultQueryTimeout = 5 * time.Second

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	username        TEXT NOT NULL UNIQUE,
	email           TEXT NOT NULL UNIQUE,
	full_name       TEXT NOT NULL,
	avatar_url      TEXT NOT NULL,
	cover_image_url TEXT NOT NULL DEFAULT '',
	password_hash   TEXT NOT NULL,
	refresh_token   TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS subscriptions (
	subscriber_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	channel_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (subscriber_id, channel_id)
);

CREATE INDEX IF NOT EXISTS subscriptions_channel_idx ON subscriptions (channel_id);

CREATE TABLE IF NOT EXISTS videos (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	owner_id     UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	video_file   TEXT NOT NULL,
	thumbnail    TEXT NOT NULL,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	duration     DOUBLE PRECISION NOT NULL DEFAULT 0,
	views        BIGINT NOT NULL DEFAULT 0,
	is_published BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS watch_history (
	user_id  UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	video_id UUID NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	position BIGSERIAL,
	PRIMARY KEY (user_id, position)
);`

const userColumns = `id, username, email, full_name, avatar_url, cover_image_url, password_hash, refresh_token, created_at, updated_at`

// PostgresStore persists users in PostgreSQL through pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*defaultQueryTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Create(ctx context.Context, user User) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
INSERT INTO users (username, email, full_name, avatar_url, cover_image_url, password_hash)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + userColumns + `;`

	created, err := scanUser(s.pool.QueryRow(ctx, query,
		user.Username, user.Email, user.FullName, user.AvatarURL, user.CoverImageURL, user.PasswordHash,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateUser
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	created.WatchHistory = []string{}
	return created, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1;`, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}

	history, err := s.historyIDs(ctx, uid)
	if err != nil {
		return User{}, err
	}
	user.WatchHistory = history
	return user, nil
}

func (s *PostgresStore) FindByUsernameOrEmail(ctx context.Context, username, email string) (User, error) {
	if username == "" && email == "" {
		return User{}, ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
SELECT ` + userColumns + `
FROM users
WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
LIMIT 1;`

	user, err := scanUser(s.pool.QueryRow(ctx, query, username, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}

	history, err := s.historyIDs(ctx, uuid.MustParse(user.ID))
	if err != nil {
		return User{}, err
	}
	user.WatchHistory = history
	return user, nil
}

func (s *PostgresStore) SetRefreshToken(ctx context.Context, id, token string) error {
	return s.exec(ctx, id, `UPDATE users SET refresh_token = $2, updated_at = NOW() WHERE id = $1;`, token)
}

func (s *PostgresStore) ClearRefreshToken(ctx context.Context, id string) error {
	return s.exec(ctx, id, `UPDATE users SET refresh_token = '', updated_at = NOW() WHERE id = $1;`)
}

func (s *PostgresStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	return s.exec(ctx, id, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1;`, hash)
}

func (s *PostgresStore) UpdateAccount(ctx context.Context, id, fullName, email string) (User, error) {
	return s.updateReturning(ctx, id, `
UPDATE users SET full_name = $2, email = $3, updated_at = NOW()
WHERE id = $1
RETURNING `+userColumns+`;`, fullName, email)
}

func (s *PostgresStore) SetAvatar(ctx context.Context, id, url string) (User, error) {
	return s.updateReturning(ctx, id, `
UPDATE users SET avatar_url = $2, updated_at = NOW()
WHERE id = $1
RETURNING `+userColumns+`;`, url)
}

func (s *PostgresStore) SetCoverImage(ctx context.Context, id, url string) (User, error) {
	return s.updateReturning(ctx, id, `
UPDATE users SET cover_image_url = $2, updated_at = NOW()
WHERE id = $1
RETURNING `+userColumns+`;`, url)
}

func (s *PostgresStore) ChannelProfile(ctx context.Context, username, viewerID string) (ChannelProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	var viewer *uuid.UUID
	if parsed, err := uuid.Parse(viewerID); err == nil {
		viewer = &parsed
	}

	query := `
SELECT u.id, u.username, u.full_name, u.email, u.avatar_url, u.cover_image_url,
	(SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id),
	(SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id),
	EXISTS (SELECT 1 FROM subscriptions s WHERE s.channel_id = u.id AND s.subscriber_id = $2)
FROM users u
WHERE u.username = $1;`

	var (
		profile ChannelProfile
		id      uuid.UUID
	)
	err := s.pool.QueryRow(ctx, query, username, viewer).Scan(
		&id,
		&profile.Username,
		&profile.FullName,
		&profile.Email,
		&profile.Avatar,
		&profile.CoverImage,
		&profile.SubscribersCount,
		&profile.SubscribedToCount,
		&profile.IsSubscribed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ChannelProfile{}, ErrUserNotFound
		}
		return ChannelProfile{}, fmt.Errorf("channel profile: %w", err)
	}
	profile.ID = id.String()
	return profile, nil
}

func (s *PostgresStore) WatchHistory(ctx context.Context, id string) ([]WatchedVideo, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1);`, uid).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	query := `
SELECT v.id, v.video_file, v.thumbnail, v.title, v.description, v.duration, v.views, v.is_published, v.created_at,
	o.id, o.username, o.full_name, o.avatar_url
FROM watch_history w
JOIN videos v ON v.id = w.video_id
JOIN users o ON o.id = v.owner_id
WHERE w.user_id = $1
ORDER BY w.position;`

	rows, err := s.pool.Query(ctx, query, uid)
	if err != nil {
		return nil, fmt.Errorf("query watch history: %w", err)
	}
	defer rows.Close()

	history := []WatchedVideo{}
	for rows.Next() {
		var (
			entry            WatchedVideo
			videoID, ownerID uuid.UUID
		)
		if err := rows.Scan(
			&videoID, &entry.VideoFile, &entry.Thumbnail, &entry.Title, &entry.Description,
			&entry.Duration, &entry.Views, &entry.IsPublished, &entry.CreatedAt,
			&ownerID, &entry.Owner.Username, &entry.Owner.FullName, &entry.Owner.Avatar,
		); err != nil {
			return nil, fmt.Errorf("scan watch history: %w", err)
		}
		entry.ID = videoID.String()
		entry.Owner.ID = ownerID.String()
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watch history: %w", err)
	}
	return history, nil
}

func (s *PostgresStore) historyIDs(ctx context.Context, uid uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT video_id FROM watch_history WHERE user_id = $1 ORDER BY position;`, uid)
	if err != nil {
		return nil, fmt.Errorf("query history ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan history id: %w", err)
		}
		ids = append(ids, id.String())
	}
	return ids, rows.Err()
}

func (s *PostgresStore) exec(ctx context.Context, id, query string, args ...any) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, query, append([]any{uid}, args...)...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) updateReturning(ctx context.Context, id, query string, args ...any) (User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	user, err := scanUser(s.pool.QueryRow(ctx, query, append([]any{uid}, args...)...))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return User{}, ErrUserNotFound
		case isUniqueViolation(err):
			return User{}, ErrDuplicateUser
		}
		return User{}, fmt.Errorf("update user: %w", err)
	}

	history, err := s.historyIDs(ctx, uid)
	if err != nil {
		return User{}, err
	}
	user.WatchHistory = history
	return user, nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		user User
		id   uuid.UUID
	)
	err := row.Scan(
		&id,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.AvatarURL,
		&user.CoverImageURL,
		&user.PasswordHash,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	user.ID = id.String()
	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
