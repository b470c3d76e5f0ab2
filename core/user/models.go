package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/firststep/core"
)

// Roles
const (
	// HR
	RoleRH      = "rh:"
	RoleRHAdmin = "rh:admin"

	// Buddy
	RoleBuddy = "buddy:"

	// Onboardee
	RoleOnboardee = "onboardee:"
)

var (
	RHRoles        = []string{RoleRH, RoleRHAdmin}
	BuddyRoles     = []string{RoleBuddy}
	OnboardeeRoles = []string{RoleOnboardee}
	AllRoles       = getAllRoles()

	rolePriorities = map[string]int{
		// HR: 30 - 21
		RoleRHAdmin: 30,
		RoleRH:      21,

		// Buddies: 20 - 11
		RoleBuddy: 11,

		// Onboardees: 10 - 1
		RoleOnboardee: 1,
	}

	Roles = []Role{
		{Name: "Onboardee", Value: RoleOnboardee},
		{Name: "Buddy", Value: RoleBuddy},
		{Name: "HR", Value: RoleRH},
		{Name: "HR Admin", Value: RoleRHAdmin},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 4)
	all = append(all, RHRoles...)
	all = append(all, BuddyRoles...)
	all = append(all, OnboardeeRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type (
	Role struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}

	User struct {
		ID           string      `json:"id"`
		Name         string      `json:"name"`
		Username     string      `json:"username"`
		Email        string      `json:"email"`
		Phone        string      `json:"phone"`
		Avatar       string      `json:"avatar"`
		Department   string      `json:"department"`
		IsActive     *bool       `json:"is_active"`
		Roles        []string    `json:"roles"`
		PasswordHash []byte      `json:"-"`
		BuddyID      null.String `json:"buddy_id"`
		StartDate    null.Time   `json:"start_date"`
		Deadline     null.Time   `json:"deadline"`
		CreatedAt    time.Time   `json:"created_at"` // UTC
		UpdatedAt    time.Time   `json:"updated_at"` // UTC
		LastLogin    time.Time   `json:"last_login"` // UTC
	}
)

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) {
	u.IsActive = &active
}

func (u User) Active() bool {
	return u.IsActive == nil || *u.IsActive
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsRH() bool {
	return u.RoleStartsWith(RoleRH)
}

func (u *User) IsBuddy() bool {
	return u.RoleStartsWith(RoleBuddy)
}

func (u *User) IsOnboardee() bool {
	return u.RoleStartsWith(RoleOnboardee)
}

// Login is the identifier the user signs in with.
func (u User) Login() string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

type (
	// NewUser contains information needed to create a new User.
	NewUser struct {
		Name            string     `json:"name" validate:"required"`
		Username        string     `json:"username" validate:"omitempty,min=4,alphanum_"`
		Email           string     `json:"email" validate:"omitempty,email"`
		Phone           string     `json:"phone" validate:"omitempty,max=32"`
		Department      string     `json:"department"`
		Password        string     `json:"password" validate:"required"`
		PasswordConfirm string     `json:"password_confirm" validate:"required,eqfield=Password"`
		Roles           []string   `json:"roles" validate:"omitempty,allroles"`
		StartDate       *time.Time `json:"start_date"`
		Deadline        *time.Time `json:"deadline"`
	}

	// UpdateUser defines what information may be provided to modify an existing User.
	UpdateUser struct {
		Name            string     `json:"name"`
		Username        string     `json:"username" validate:"omitempty,min=4,alphanum_"`
		Email           string     `json:"email" validate:"omitempty,email"`
		Phone           *string    `json:"phone" validate:"omitempty,max=32"`
		Avatar          *string    `json:"avatar" validate:"omitempty,url"`
		Department      *string    `json:"department"`
		IsActive        *bool      `json:"is_active"`
		Roles           []string   `json:"roles" validate:"omitempty,allroles"`
		StartDate       *time.Time `json:"start_date"`
		Deadline        *time.Time `json:"deadline"`
		Password        string     `json:"password" validate:"omitempty"`
		PasswordConfirm string     `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
	}

	ResetUserPassword struct {
		Token           string `json:"token,omitempty" validate:"required"`
		UID             string `json:"uid,omitempty" validate:"required"`
		Password        string `json:"password,omitempty" validate:"required"`
		PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
	}

	QueryFilter struct {
		Search      string    `query:"search"`
		Roles       []string  `query:"role"`
		IsActive    *bool     `query:"is_active"`
		BuddyID     string    `query:"buddy_id"`
		CreatedFrom time.Time `query:"created_from"`
		CreatedTo   time.Time `query:"created_to"`
	}

	// GetFilter selects a single User by the first non-empty field.
	GetFilter struct {
		ID              string
		Username        string
		Email           string
		UsernameOrEmail string
	}
)

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc ServiceInterface) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Phone = core.CleanString(nu.Phone)
	nu.Department = core.CleanString(nu.Department)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc ServiceInterface) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	uname := core.CleanString(uu.Username, true /* lower */)
	if uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr.ID)
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	rp.UID = core.CleanString(rp.UID)
	rp.Token = core.CleanString(rp.Token)
	return validate.Struct(rp)
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.BuddyID == "" &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.BuddyID = core.CleanString(qf.BuddyID)
}
