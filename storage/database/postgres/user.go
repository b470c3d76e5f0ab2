package postgresdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/firststep/core"
	"github.com/trezcool/firststep/core/user"
)

const userColumns = `id, name, username, email, phone, avatar, department, is_active, roles, password_hash,
	buddy_id, start_date, deadline, created_at, updated_at, last_login`

var userOrderingFields = []string{
	"name", "username", "email", "created_at", "updated_at", "last_login", "start_date", "deadline",
}

type (
	userRepository struct {
		db *sqlx.DB
	}

	userRow struct {
		ID           string         `db:"id"`
		Name         string         `db:"name"`
		Username     null.String    `db:"username"`
		Email        null.String    `db:"email"`
		Phone        string         `db:"phone"`
		Avatar       string         `db:"avatar"`
		Department   string         `db:"department"`
		IsActive     bool           `db:"is_active"`
		Roles        pq.StringArray `db:"roles"`
		PasswordHash []byte         `db:"password_hash"`
		BuddyID      null.String    `db:"buddy_id"`
		StartDate    null.Time      `db:"start_date"`
		Deadline     null.Time      `db:"deadline"`
		CreatedAt    null.Time      `db:"created_at"`
		UpdatedAt    null.Time      `db:"updated_at"`
		LastLogin    null.Time      `db:"last_login"`
	}
)

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func toRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		Phone:        usr.Phone,
		Avatar:       usr.Avatar,
		Department:   usr.Department,
		IsActive:     usr.Active(),
		Roles:        roles,
		PasswordHash: usr.PasswordHash,
		BuddyID:      usr.BuddyID,
		StartDate:    usr.StartDate,
		Deadline:     usr.Deadline,
		CreatedAt:    null.TimeFrom(usr.CreatedAt.UTC()),
		UpdatedAt:    null.TimeFrom(usr.UpdatedAt.UTC()),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (row userRow) toUser() user.User {
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		Phone:        row.Phone,
		Avatar:       row.Avatar,
		Department:   row.Department,
		Roles:        []string(row.Roles),
		PasswordHash: row.PasswordHash,
		BuddyID:      row.BuddyID,
		StartDate:    row.StartDate,
		Deadline:     row.Deadline,
		CreatedAt:    row.CreatedAt.Time.UTC(),
		UpdatedAt:    row.UpdatedAt.Time.UTC(),
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	usr.SetActive(row.IsActive)
	return usr
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error {
	check := func(column, value string, errExists error) error {
		if value == "" {
			return nil
		}
		q := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM users WHERE %s = $1 AND NOT (id::text = ANY($2)))", column)
		var exists bool
		if err := repo.db.GetContext(ctx, &exists, q, value, pq.StringArray(excludedIDs)); err != nil {
			return errors.Wrapf(err, "checking %s uniqueness", column)
		}
		if exists {
			return errExists
		}
		return nil
	}

	if err := check("username", username, user.ErrUsernameExists); err != nil {
		return err
	}
	return check("email", email, user.ErrEmailExists)
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	q := `INSERT INTO users (id, name, username, email, phone, avatar, department, is_active, roles, password_hash,
			buddy_id, start_date, deadline, created_at, updated_at, last_login)
		VALUES (:id, :name, :username, :email, :phone, :avatar, :department, :is_active, :roles,
			:password_hash, :buddy_id, :start_date, :deadline, :created_at, :updated_at, :last_login)`

	if _, err := repo.db.NamedExecContext(ctx, q, toRow(usr)); err != nil {
		return user.User{}, uniquenessErr(err)
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	if usr.IsActive == nil {
		usr.SetActive(true)
	}
	return usr, nil
}

func uniquenessErr(err error) error {
	switch {
	case isUniqueViolation(err, "users_username_key"):
		return user.ErrUsernameExists
	case isUniqueViolation(err, "users_email_key"):
		return user.ErrEmailExists
	}
	return err
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.Search != "" {
			p := arg("%" + filter.Search + "%")
			where = append(where, fmt.Sprintf("(name ILIKE %[1]s OR username ILIKE %[1]s OR email ILIKE %[1]s)", p))
		}
		if len(filter.Roles) > 0 {
			patterns := make([]string, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				patterns = append(patterns, strings.ToLower(role)+"%")
			}
			where = append(where, fmt.Sprintf(
				"EXISTS (SELECT 1 FROM unnest(roles) AS r WHERE lower(r) LIKE ANY(%s))", arg(pq.StringArray(patterns))))
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = "+arg(*filter.IsActive))
		}
		if filter.BuddyID != "" {
			where = append(where, "buddy_id::text = "+arg(filter.BuddyID))
		}
		if !filter.CreatedFrom.IsZero() {
			where = append(where, "created_at >= "+arg(filter.CreatedFrom.UTC()))
		}
		if !filter.CreatedTo.IsZero() {
			where = append(where, "created_at <= "+arg(filter.CreatedTo.UTC()))
		}
	}

	q := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + core.OrderByClause(ordering, userOrderingFields, "created_at DESC") + ", id"

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	q := "SELECT " + userColumns + " FROM users WHERE "
	var args []interface{}
	switch {
	case filter.ID != "":
		q += "id::text = $1"
		args = append(args, filter.ID)
	case filter.Username != "":
		q += "username = $1"
		args = append(args, filter.Username)
	case filter.Email != "":
		q += "email = $1"
		args = append(args, filter.Email)
	case filter.UsernameOrEmail != "":
		q += "(username = $1 OR email = $1)"
		args = append(args, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.db.GetContext(ctx, &row, q+" LIMIT 1", args...); err != nil {
		return user.User{}, notFound(err, user.ErrNotFound)
	}
	return row.toUser(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE users SET name = :name, username = :username, email = :email, phone = :phone, avatar = :avatar,
			department = :department, is_active = :is_active, roles = :roles, password_hash = :password_hash,
			buddy_id = :buddy_id, start_date = :start_date, deadline = :deadline, updated_at = :updated_at,
			last_login = :last_login
		WHERE id = :id`

	res, err := repo.db.NamedExecContext(ctx, q, toRow(usr))
	if err != nil {
		return user.User{}, uniquenessErr(err)
	}
	if err = checkAffected(res, user.ErrNotFound); err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string) (int, error) {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM users WHERE id::text = ANY($1)", pq.StringArray(ids))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (repo *userRepository) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM users")
	return n, errors.Wrap(err, "counting users")
}
