package echoapi

import (
	"context"
	"net/http"
	"net/mail"
	"net/url"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/firststep/core/user"
	"github.com/trezcool/firststep/services/email"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)

	app.createUser(t, "Jane Doe", "jane", []string{user.RoleOnboardee}, true)
	app.createUser(t, "N Dog", "ndog", []string{user.RoleOnboardee}, false)

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, LoginRequest{Username: reqMsg, Password: reqMsg}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, LoginRequest{Username: "nobody", Password: testPwd}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, LoginRequest{Username: "jane", Password: "lol"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", wantCode: http.StatusForbidden,
			body:     marchallObj(t, LoginRequest{Username: "ndog", Password: testPwd}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "by username", wantCode: http.StatusOK, body: marchallObj(t, LoginRequest{Username: " JANE ", Password: testPwd})},
		{name: "by email", wantCode: http.StatusOK, body: marchallObj(t, LoginRequest{Username: "jane@test.cd", Password: testPwd})},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/login"

		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt)

			// cannot guess the token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				var respData LoginResponse
				unmarshal(t, rec, &respData)
				assert.NotEmpty(t, respData.Token)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	usr, err := app.deps.UserSvc.GetByUsernameOrEmail(context.Background(), "jane")
	require.NoError(t, err)
	assert.False(t, usr.LastLogin.IsZero())
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)

	path := func(search, ordering string, isActive string, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != "" {
			v.Add("is_active", isActive)
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}

	now := time.Now()
	rh := app.createUser(t, "Rita HR", "rita", []string{user.RoleRH}, true, now.Add(1*time.Hour))
	buddy := app.createUser(t, "Bob Buddy", "bob", []string{user.RoleBuddy}, true, now.Add(2*time.Hour))
	jane := app.createUser(t, "Jane Doe", "jane", []string{user.RoleOnboardee}, true, now.Add(3*time.Hour))
	naughty := app.createUser(t, "N Dog", "ndog", []string{user.RoleOnboardee}, false, now.Add(4*time.Hour))

	rhToken := app.getToken(t, rh)
	empty := marchallList(t)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "HR required", path: "/v1/users", token: app.getToken(t, jane), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Get all", path: "/v1/users", token: rhToken, wantData: marchallList(t, naughty, jane, buddy, rh)},
		// filtering
		{name: "search (unknown)", path: path("lol", "", ""), token: rhToken, wantData: empty},
		{name: "search=DO", path: path("DO", "", ""), token: rhToken, wantData: marchallList(t, naughty, jane)},
		{name: "role (unknown)", path: path("", "", "", "lol"), token: rhToken, wantData: empty},
		{name: "role=buddy:", path: path("", "", "", user.RoleBuddy), token: rhToken, wantData: marchallList(t, buddy)},
		{
			name: "role=rh:,buddy:", path: path("", "", "", user.RoleRH, user.RoleBuddy), token: rhToken,
			wantData: marchallList(t, buddy, rh),
		},
		{name: "is_active=false", path: path("", "", "false"), token: rhToken, wantData: marchallList(t, naughty)},
		// ordering
		{name: "order by created_at", path: path("", "created_at", ""), token: rhToken, wantData: marchallList(t, rh, buddy, jane, naughty)},
		{name: "order by name", path: path("", "name", ""), token: rhToken, wantData: marchallList(t, buddy, jane, naughty, rh)},
		// filtering & ordering
		{
			name: "filtering & ordering", path: path("", "-name", "", user.RoleOnboardee), token: rhToken,
			wantData: marchallList(t, naughty, jane),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(tt))
		})
	}
}

func Test_userApi_refreshToken(t *testing.T) {
	app := setup(t)

	naughty := app.createUser(t, "N Dog", "ndog", []string{user.RoleOnboardee}, false)
	jane := app.createUser(t, "Jane Doe", "jane", []string{user.RoleOnboardee}, true)

	now := time.Now()
	conf := app.deps.Conf.Server
	unrefreshableClaims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    app.deps.Conf.AppName,
			Subject:   jane.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * conf.JWTRefreshExpirationDelta).Unix(), // older than threshold
		IsOnboardee:  true,
		Roles:        jane.Roles,
	}
	unrefreshableToken, err := app.srv.auth.generateToken(unrefreshableClaims)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Invalid token", token: "lol", wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "Inactive user not allowed", token: app.getToken(t, naughty), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
		{name: "Token refreshed", token: app.getToken(t, jane), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt)

			if tt.wantCode == http.StatusOK {
				require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				var respData LoginResponse
				unmarshal(t, rec, &respData)
				assert.NotEmpty(t, respData.Token)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_resetPassword(t *testing.T) {
	app := setup(t)

	jane := app.createUser(t, "Jane Doe", "jane", []string{user.RoleOnboardee}, true)
	successData := marchallObj(t, SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	type extraTest struct {
		emailSent bool
		to        mail.Address
	}
	tests := []httpTest{
		{name: "required fields", wantCode: http.StatusBadRequest, wantData: marchallObj(t, PasswordResetRequest{Email: "this field is required"})},
		{
			name: "invalid email", wantCode: http.StatusBadRequest, body: marchallObj(t, PasswordResetRequest{Email: "lol"}),
			wantData: marchallObj(t, PasswordResetRequest{Email: "email must be a valid email address"}),
		},
		{
			name: "unknown email", wantCode: http.StatusOK, body: marchallObj(t, PasswordResetRequest{Email: "lol@test.com"}),
			wantData: successData, extra: extraTest{emailSent: false},
		},
		{
			name: "known email", wantCode: http.StatusOK, body: marchallObj(t, PasswordResetRequest{Email: jane.Email}),
			wantData: successData, extra: extraTest{emailSent: true, to: mail.Address{Name: jane.Name, Address: jane.Email}},
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset"

		t.Run(tt.name, func(t *testing.T) {
			emailsvc.ClearSentMessages()

			checkCodeAndData(t, tt, app.do(tt))

			if extra, ok := tt.extra.(extraTest); ok {
				sent := emailsvc.SentMessages()
				if !extra.emailSent {
					assert.Empty(t, sent)
					return
				}
				require.Len(t, sent, 1)
				assert.Equal(t, extra.to, sent[0].To[0])
				assert.Equal(t, "password_reset", sent[0].TemplateName)
			}
		})
	}
}

func Test_userApi_confirmPasswordReset(t *testing.T) {
	app := setup(t)

	jane := app.createUser(t, "Jane Doe", "jane", []string{user.RoleOnboardee}, true)

	req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", marchallObj(t, PasswordResetRequest{Email: jane.Email}))
	app.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	sent := emailsvc.SentMessages()
	require.Len(t, sent, 1)
	data, ok := sent[0].TemplateData.(map[string]interface{})
	require.True(t, ok)
	uid, _ := data["UID"].(string)
	token, _ := data["Token"].(string)

	newPwd := "N3w-Journey#2020"
	tests := []httpTest{
		{
			name: "invalid token", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: uid, Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "invalid uid", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: token, UID: "lol", Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "password reset", wantCode: http.StatusOK,
			body:     marchallObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marchallObj(t, SuccessResponse{Success: "Password has been reset with the new password."}),
		},
		{
			name: "token already used", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset-confirm"

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(tt))
		})
	}

	usr, err := app.deps.UserSvc.GetByID(context.Background(), jane.ID)
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword(newPwd))
}

func Test_userApi_update(t *testing.T) {
	app := setup(t)

	rh := app.createUser(t, "Rita HR", "rita", []string{user.RoleRH}, true)
	jane := app.createUser(t, "Jane Doe", "jane", []string{user.RoleOnboardee}, true)
	john := app.createUser(t, "John Doe", "john", []string{user.RoleOnboardee}, true)

	deadline := time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []httpTest{
		{
			name: "self: name", path: "/v1/users/" + jane.ID, token: app.getToken(t, jane), wantCode: http.StatusOK,
			body: []byte(`{"name": " Jane D. ", "department": "Sales"}`),
		},
		{
			name: "self: roles", path: "/v1/users/" + jane.ID, token: app.getToken(t, jane), wantCode: http.StatusForbidden,
			body: []byte(`{"roles": ["rh:"]}`), wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "self: deadline", path: "/v1/users/" + jane.ID, token: app.getToken(t, jane), wantCode: http.StatusForbidden,
			body: []byte(`{"deadline": "2030-03-01T00:00:00Z"}`), wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "someone else", path: "/v1/users/" + john.ID, token: app.getToken(t, jane), wantCode: http.StatusNotFound,
			body: []byte(`{"name": "Johnny"}`), wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "unknown user", path: "/v1/users/lol", token: app.getToken(t, rh), wantCode: http.StatusNotFound,
			body: []byte(`{"name": "Johnny"}`), wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "HR: deadline", path: "/v1/users/" + john.ID, token: app.getToken(t, rh), wantCode: http.StatusOK,
			body: []byte(`{"deadline": "2030-03-01T00:00:00Z"}`),
		},
		{
			name: "HR: invalid role", path: "/v1/users/" + john.ID, token: app.getToken(t, rh), wantCode: http.StatusBadRequest,
			body: []byte(`{"roles": ["lol"]}`), wantData: marchallObj(t, map[string]string{"roles": "invalid roles"}),
		},
		{
			name: "HR: role above their own", path: "/v1/users/" + john.ID, token: app.getToken(t, rh), wantCode: http.StatusBadRequest,
			body: []byte(`{"roles": ["rh:admin"]}`), wantData: marchallObj(t, map[string]string{"roles": errNoPermsToSetRoles}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(tt))
		})
	}

	usr, err := app.deps.UserSvc.GetByID(context.Background(), jane.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane D.", usr.Name)
	assert.Equal(t, "Sales", usr.Department)
	assert.Equal(t, []string{user.RoleOnboardee}, usr.Roles)

	usr, err = app.deps.UserSvc.GetByID(context.Background(), john.ID)
	require.NoError(t, err)
	require.True(t, usr.Deadline.Valid)
	assert.True(t, deadline.Equal(usr.Deadline.Time))
}

func Test_userApi_assignBuddy(t *testing.T) {
	app := setup(t)

	rh := app.createUser(t, "Rita HR", "rita", []string{user.RoleRH}, true)
	buddy := app.createUser(t, "Bob Buddy", "bob", []string{user.RoleBuddy}, true)
	jane := app.createUser(t, "Jane Doe", "jane", []string{user.RoleOnboardee}, true)
	rhToken := app.getToken(t, rh)

	tests := []httpTest{
		{
			name: "HR required", token: app.getToken(t, jane), wantCode: http.StatusForbidden,
			body: marchallObj(t, AssignBuddyRequest{BuddyID: buddy.ID}), wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "not a buddy", token: rhToken, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, AssignBuddyRequest{BuddyID: rh.ID}),
			wantData: marchallObj(t, map[string]string{"buddy_id": user.ErrNotABuddy.Error()}),
		},
		{
			name: "self", token: rhToken, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, AssignBuddyRequest{BuddyID: jane.ID}),
			wantData: marchallObj(t, map[string]string{"buddy_id": user.ErrSelfBuddy.Error()}),
		},
		{name: "assigned", token: rhToken, wantCode: http.StatusOK, body: marchallObj(t, AssignBuddyRequest{BuddyID: buddy.ID})},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut
		tt.path = "/v1/users/" + jane.ID + "/buddy"

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(tt))
		})
	}

	tt := httpTest{method: http.MethodGet, path: "/v1/users/buddies", token: rhToken, wantCode: http.StatusOK}
	rec := app.do(tt)
	var buddies []user.User
	unmarshal(t, rec, &buddies)
	require.Len(t, buddies, 1)
	assert.Equal(t, buddy.ID, buddies[0].ID)

	usr, err := app.deps.UserSvc.GetByID(context.Background(), jane.ID)
	require.NoError(t, err)
	assert.Equal(t, buddy.ID, usr.BuddyID.String)
}

func Test_userApi_create(t *testing.T) {
	app := setup(t)

	rh := app.createUser(t, "Rita HR", "rita", []string{user.RoleRH}, true)
	rhToken := app.getToken(t, rh)

	tests := []httpTest{
		{
			name: "username or email", token: rhToken, wantCode: http.StatusBadRequest,
			body: []byte(`{"name": "Jane", "password": "Onb0ard!ng-2020", "password_confirm": "Onb0ard!ng-2020"}`),
			wantData: marchallObj(t, map[string]string{
				"username": "one of username or email is required",
				"email":    "one of username or email is required",
			}),
		},
		{
			name: "role above their own", token: rhToken, wantCode: http.StatusBadRequest,
			body: []byte(`{"name": "Jane", "email": "jane@test.cd", "password": "Onb0ard!ng-2020",
				"password_confirm": "Onb0ard!ng-2020", "roles": ["rh:admin"]}`),
			wantData: marchallObj(t, map[string]string{"roles": errNoPermsToSetRoles}),
		},
		{
			name: "created", token: rhToken, wantCode: http.StatusCreated,
			body: []byte(`{"name": "Jane", "email": "Jane@Test.cd", "password": "Onb0ard!ng-2020",
				"password_confirm": "Onb0ard!ng-2020", "roles": ["onboardee:"]}`),
		},
		{
			name: "email taken", token: rhToken, wantCode: http.StatusBadRequest,
			body: []byte(`{"name": "Jane", "email": "jane@test.cd", "password": "Onb0ard!ng-2020",
				"password_confirm": "Onb0ard!ng-2020"}`),
			wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/register"

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(tt))
		})
	}

	usr, err := app.deps.UserSvc.GetByEmail(context.Background(), "jane@test.cd")
	require.NoError(t, err)
	assert.True(t, usr.IsOnboardee())
}

func Test_userApi_destroy(t *testing.T) {
	app := setup(t)

	admin := app.createUser(t, "Ada Admin", "ada", []string{user.RoleRHAdmin}, true)
	rh := app.createUser(t, "Rita HR", "rita", []string{user.RoleRH}, true)
	jane := app.createUser(t, "Jane Doe", "jane", []string{user.RoleOnboardee}, true)
	rhToken := app.getToken(t, rh)

	tests := []httpTest{
		{
			name: "HR required", path: "/v1/users/" + jane.ID, token: app.getToken(t, jane),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "self", path: "/v1/users/" + rh.ID, token: rhToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "higher role", path: "/v1/users/" + admin.ID, token: rhToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "deleted", path: "/v1/users/" + jane.ID, token: rhToken, wantCode: http.StatusNoContent},
		{
			name: "already deleted", path: "/v1/users/" + jane.ID, token: rhToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "multiple: self", path: "/v1/users?id=" + admin.ID + "&id=" + rh.ID, token: rhToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodDelete

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(tt))
		})
	}

	n, err := app.deps.UserSvc.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
