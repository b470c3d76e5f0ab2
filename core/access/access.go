// Package access manages the systems onboardees need access to and the permission granted on each.
package access

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/firststep/core"
)

// Permission statuses
const (
	StatusGranted = "granted"
	StatusPending = "pending"
)

var (
	// errors
	ErrNotFound           = errors.New("access not found")
	ErrPermissionNotFound = errors.New("permission not found")
)

type (
	Access struct {
		ID          int       `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
		Logo        string    `json:"logo"`
		CreatedAt   time.Time `json:"created_at" db:"created_at"`
	}

	// Permission is the status of one user's access to one system.
	Permission struct {
		ID         int64     `json:"id"`
		UserID     string    `json:"user_id" db:"user_id"`
		AccessID   int       `json:"access_id" db:"access_id"`
		AccessName string    `json:"access_name" db:"access_name"`
		AccessLogo string    `json:"access_logo" db:"access_logo"`
		Status     string    `json:"status"`
		CreatedAt  time.Time `json:"created_at" db:"created_at"`
		UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
	}

	NewAccess struct {
		Name        string `json:"name" validate:"required,max=255"`
		Description string `json:"description"`
		Logo        string `json:"logo" validate:"omitempty,url"`
	}

	UpdateAccess struct {
		Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
		Description *string `json:"description"`
		Logo        *string `json:"logo" validate:"omitempty,url"`
	}

	SetPermission struct {
		Granted bool `json:"granted"`
	}

	BulkSetPermissions struct {
		UserID string `json:"user_id" validate:"required,uuid"`
		Status string `json:"status" validate:"required,oneof=granted pending"`
	}

	Repository interface {
		// QueryAccesses lists every access, newest first.
		QueryAccesses(ctx context.Context) ([]Access, error)
		GetAccess(ctx context.Context, id int) (Access, error)
		CreateAccess(ctx context.Context, a Access) (Access, error)
		UpdateAccess(ctx context.Context, a Access) (Access, error)
		// DeleteAccess removes the access along with its permissions.
		DeleteAccess(ctx context.Context, id int) error
		CountAccesses(ctx context.Context) (int, error)

		// QueryPermissions lists the user's permissions joined with their access, by access name.
		QueryPermissions(ctx context.Context, userID string) ([]Permission, error)
		// UpsertPermissions sets status on the user's permission for each of accessIDs.
		UpsertPermissions(ctx context.Context, userID string, accessIDs []int, status string) error
	}

	Service struct {
		repo   Repository
		feed   core.ChangeFeed
		logger core.Logger
	}
)

func (na *NewAccess) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	na.Description = core.CleanString(na.Description)
	na.Logo = core.CleanString(na.Logo)
	return validate.Struct(na)
}

func (ua *UpdateAccess) Validate(validate *validator.Validate) error {
	if ua.Name != nil {
		name := core.CleanString(*ua.Name)
		ua.Name = &name
	}
	if ua.Logo != nil {
		logo := core.CleanString(*ua.Logo)
		ua.Logo = &logo
	}
	return validate.Struct(ua)
}

func (bp *BulkSetPermissions) Validate(validate *validator.Validate) error {
	bp.UserID = core.CleanString(bp.UserID)
	bp.Status = core.CleanString(bp.Status, true /* lower */)
	return validate.Struct(bp)
}

func StatusOf(granted bool) string {
	if granted {
		return StatusGranted
	}
	return StatusPending
}

func NewService(repo Repository, feed core.ChangeFeed, logger core.Logger) *Service {
	return &Service{repo: repo, feed: feed, logger: logger}
}

func (svc *Service) changed(ctx context.Context, tables ...string) {
	for _, table := range tables {
		if err := svc.feed.Publish(ctx, table); err != nil {
			svc.logger.Warn("publishing "+table+" change", err)
		}
	}
}

func (svc *Service) Query(ctx context.Context) ([]Access, error) {
	accesses, err := svc.repo.QueryAccesses(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying accesses")
	}
	return accesses, nil
}

func (svc *Service) Get(ctx context.Context, id int) (Access, error) {
	return svc.repo.GetAccess(ctx, id)
}

func (svc *Service) Create(ctx context.Context, na NewAccess) (Access, error) {
	a, err := svc.repo.CreateAccess(ctx, Access{
		Name:        na.Name,
		Description: na.Description,
		Logo:        na.Logo,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return Access{}, errors.Wrap(err, "creating access")
	}
	svc.changed(ctx, core.TableAccesses)
	return a, nil
}

func (svc *Service) Update(ctx context.Context, id int, ua UpdateAccess) (Access, error) {
	a, err := svc.repo.GetAccess(ctx, id)
	if err != nil {
		return Access{}, err
	}
	if ua.Name != nil {
		a.Name = *ua.Name
	}
	if ua.Description != nil {
		a.Description = core.CleanString(*ua.Description)
	}
	if ua.Logo != nil {
		a.Logo = *ua.Logo
	}

	if a, err = svc.repo.UpdateAccess(ctx, a); err != nil {
		return Access{}, errors.Wrap(err, "updating access")
	}
	svc.changed(ctx, core.TableAccesses)
	return a, nil
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	if err := svc.repo.DeleteAccess(ctx, id); err != nil {
		return errors.Wrap(err, "deleting access")
	}
	svc.changed(ctx, core.TableAccesses, core.TablePerms)
	return nil
}

func (svc *Service) Count(ctx context.Context) (int, error) {
	return svc.repo.CountAccesses(ctx)
}

// Permissions lists the user's permission on every access that has one.
func (svc *Service) Permissions(ctx context.Context, userID string) ([]Permission, error) {
	perms, err := svc.repo.QueryPermissions(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying permissions")
	}
	return perms, nil
}

// SetPermission grants, or puts back to pending, the user's access to one system.
func (svc *Service) SetPermission(ctx context.Context, userID string, accessID int, granted bool) (Permission, error) {
	if _, err := svc.repo.GetAccess(ctx, accessID); err != nil {
		return Permission{}, err
	}
	if err := svc.repo.UpsertPermissions(ctx, userID, []int{accessID}, StatusOf(granted)); err != nil {
		return Permission{}, errors.Wrap(err, "saving permission")
	}
	svc.changed(ctx, core.TablePerms)

	perms, err := svc.Permissions(ctx, userID)
	if err != nil {
		return Permission{}, err
	}
	for _, p := range perms {
		if p.AccessID == accessID {
			return p, nil
		}
	}
	return Permission{}, ErrPermissionNotFound
}

// BulkSetPermissions gives the user one permission with the given status on every access.
func (svc *Service) BulkSetPermissions(ctx context.Context, userID, status string) ([]Permission, error) {
	accesses, err := svc.Query(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(accesses))
	for _, a := range accesses {
		ids = append(ids, a.ID)
	}
	if len(ids) > 0 {
		if err = svc.repo.UpsertPermissions(ctx, userID, ids, status); err != nil {
			return nil, errors.Wrap(err, "saving permissions")
		}
		svc.changed(ctx, core.TablePerms)
	}
	return svc.Permissions(ctx, userID)
}
