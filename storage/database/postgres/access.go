package postgresdb

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/firststep/core/access"
)

type accessRepository struct {
	db *sqlx.DB
}

var _ access.Repository = (*accessRepository)(nil)

func NewAccessRepository(db *sqlx.DB) access.Repository {
	return &accessRepository{db: db}
}

func (repo *accessRepository) QueryAccesses(ctx context.Context) ([]access.Access, error) {
	accesses := make([]access.Access, 0)
	err := repo.db.SelectContext(ctx, &accesses, "SELECT * FROM accesses ORDER BY created_at DESC, id DESC")
	return accesses, errors.Wrap(err, "selecting accesses")
}

func (repo *accessRepository) GetAccess(ctx context.Context, id int) (access.Access, error) {
	var a access.Access
	if err := repo.db.GetContext(ctx, &a, "SELECT * FROM accesses WHERE id = $1", id); err != nil {
		return access.Access{}, notFound(err, access.ErrNotFound)
	}
	return a, nil
}

func (repo *accessRepository) CreateAccess(ctx context.Context, a access.Access) (access.Access, error) {
	q := "INSERT INTO accesses (name, description, logo, created_at) VALUES ($1, $2, $3, $4) RETURNING id"
	if err := repo.db.GetContext(ctx, &a.ID, q, a.Name, a.Description, a.Logo, a.CreatedAt); err != nil {
		return access.Access{}, errors.Wrap(err, "inserting access")
	}
	return a, nil
}

func (repo *accessRepository) UpdateAccess(ctx context.Context, a access.Access) (access.Access, error) {
	res, err := repo.db.NamedExecContext(ctx,
		"UPDATE accesses SET name = :name, description = :description, logo = :logo WHERE id = :id", a)
	if err != nil {
		return access.Access{}, errors.Wrap(err, "updating access")
	}
	if err = checkAffected(res, access.ErrNotFound); err != nil {
		return access.Access{}, err
	}
	return a, nil
}

// DeleteAccess relies on ON DELETE CASCADE for the permissions.
func (repo *accessRepository) DeleteAccess(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM accesses WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting access")
	}
	return checkAffected(res, access.ErrNotFound)
}

func (repo *accessRepository) CountAccesses(ctx context.Context) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM accesses")
	return n, errors.Wrap(err, "counting accesses")
}

func (repo *accessRepository) QueryPermissions(ctx context.Context, userID string) ([]access.Permission, error) {
	q := `SELECT p.id, p.user_id, p.access_id, a.name AS access_name, a.logo AS access_logo, p.status,
			p.created_at, p.updated_at
		FROM access_permissions p
		JOIN accesses a ON a.id = p.access_id
		WHERE p.user_id = $1
		ORDER BY lower(a.name), a.id`
	perms := make([]access.Permission, 0)
	err := repo.db.SelectContext(ctx, &perms, q, userID)
	return perms, errors.Wrap(err, "selecting permissions")
}

func (repo *accessRepository) UpsertPermissions(ctx context.Context, userID string, accessIDs []int, status string) error {
	ids := make(pq.Int64Array, 0, len(accessIDs))
	for _, id := range accessIDs {
		ids = append(ids, int64(id))
	}
	q := `INSERT INTO access_permissions (user_id, access_id, status, created_at, updated_at)
		SELECT $1, a.id, $2, NOW(), NOW() FROM accesses a WHERE a.id = ANY($3)
		ON CONFLICT (user_id, access_id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`

	res, err := repo.db.ExecContext(ctx, q, userID, status, ids)
	if err != nil {
		return errors.Wrap(err, "upserting permissions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) < len(accessIDs) {
		return access.ErrNotFound
	}
	return nil
}
