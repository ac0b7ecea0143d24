package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/auth-core/internal/core/domain"
	"github.com/arklim/auth-core/internal/core/port"
	"github.com/arklim/auth-core/internal/repository"
)

// IdentityRepository implements port.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewIdentityRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewIdentityRepository(exec pgExecutor) *IdentityRepository {
	repo := &IdentityRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance that executes statements within the
// supplied transaction.
func (r *IdentityRepository) WithTx(tx pgx.Tx) *IdentityRepository {
	if tx == nil {
		return r
	}
	return &IdentityRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new identity row.
func (r *IdentityRepository) Create(ctx context.Context, identity domain.Identity) error {
	query := r.builder.Insert("auth.identities").
		Columns(
			"id",
			"email",
			"password_hash",
			"roles",
			"permissions",
			"failed_attempts",
			"locked_at",
			"last_login",
			"email_verified",
			"created_at",
		).
		Values(
			identity.ID,
			identity.Email,
			identity.PasswordHash,
			identity.Roles,
			identity.Permissions,
			identity.FailedAttempts,
			identity.LockedAt,
			identity.LastLogin,
			identity.EmailVerified,
			identity.CreatedAt,
		)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert identity sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}

	return nil
}

// GetByID retrieves an identity by identifier.
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves an identity by normalized email.
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.getOne(ctx, squirrel.Eq{"email": domain.NormalizeEmail(email)})
}

func (r *IdentityRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.Identity, error) {
	stmt, args, err := r.builder.
		Select(
			"id",
			"email",
			"password_hash",
			"roles",
			"permissions",
			"failed_attempts",
			"locked_at",
			"last_login",
			"email_verified",
			"created_at",
		).
		From("auth.identities").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select identity sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var identity domain.Identity
	if err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.Roles,
		&identity.Permissions,
		&identity.FailedAttempts,
		&identity.LockedAt,
		&identity.LastLogin,
		&identity.EmailVerified,
		&identity.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}

	return &identity, nil
}

// AtomicIncrementFailedAttempts bumps the counter server-side and returns the
// new value. The increment happens in a single UPDATE so concurrent failures
// across nodes never lose an update.
func (r *IdentityRepository) AtomicIncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	const stmt = `UPDATE auth.identities
		SET failed_attempts = failed_attempts + 1
		WHERE id = $1
		RETURNING failed_attempts`

	var attempts int
	if err := r.exec.QueryRow(ctx, stmt, id).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("increment failed attempts: %w", err)
	}

	return attempts, nil
}

// ResetFailedAttempts zeroes the counter after a successful authentication.
func (r *IdentityRepository) ResetFailedAttempts(ctx context.Context, id string) error {
	return r.updateIdentity(ctx, id, squirrel.Eq{"failed_attempts": 0})
}

// SetLock stamps the lockout start time.
func (r *IdentityRepository) SetLock(ctx context.Context, id string, at time.Time) error {
	return r.updateIdentity(ctx, id, squirrel.Eq{"locked_at": at})
}

// ClearLock removes an expired lockout and zeroes the counter so the next
// failure starts a fresh run.
func (r *IdentityRepository) ClearLock(ctx context.Context, id string) error {
	return r.updateIdentity(ctx, id, squirrel.Eq{"locked_at": nil, "failed_attempts": 0})
}

// UpdateLastLogin records the successful authentication timestamp.
func (r *IdentityRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.updateIdentity(ctx, id, squirrel.Eq{"last_login": at})
}

func (r *IdentityRepository) updateIdentity(ctx context.Context, id string, values squirrel.Eq) error {
	query := r.builder.Update("auth.identities").Where(squirrel.Eq{"id": id})
	for column, value := range values {
		query = query.Set(column, value)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build update identity sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RecordLoginAttempt appends an audit row for an authentication outcome.
func (r *IdentityRepository) RecordLoginAttempt(ctx context.Context, attempt domain.LoginAttempt) error {
	query := r.builder.Insert("auth.login_attempts").
		Columns("id", "identity_id", "email", "succeeded", "kind", "ip", "user_agent", "created_at").
		Values(
			attempt.ID,
			attempt.IdentityID,
			attempt.Email,
			attempt.Succeeded,
			attempt.Kind,
			attempt.IP,
			attempt.UserAgent,
			attempt.CreatedAt,
		)

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert login attempt sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert login attempt: %w", err)
	}

	return nil
}

var _ port.IdentityRepository = (*IdentityRepository)(nil)
