package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/firststep/core"
	"github.com/trezcool/firststep/core/journey"
	"github.com/trezcool/firststep/core/user"
	"github.com/trezcool/firststep/services/changefeed"
	inmemdb "github.com/trezcool/firststep/storage/database/inmem"
	"github.com/trezcool/firststep/testutil"
)

var usrRepo user.Repository

func setup(t *testing.T) *commandLine {
	t.Helper()
	db := inmemdb.NewDB()
	usrRepo = inmemdb.NewUserRepository(db)
	validate, _ := testutil.NewValidator()

	return &commandLine{
		conf:       core.NewTestConfig(),
		db:         &sql.DB{},
		usrRepo:    usrRepo,
		journeySvc: journey.NewService(inmemdb.NewJourneyRepository(db), changefeed.NewMemoryFeed(), testutil.NewLogger()),
		validate:   validate,
		out:        new(bytes.Buffer),
	}
}

func mockPassword(t *testing.T, pwd string) {
	t.Helper()
	orig := readPasswordFunc
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	pwd        string
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"seed", "-lol"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
	assert.Contains(t, cli.out.(*bytes.Buffer).String(), "Usage:")
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var gotCommand string
	var gotArgs []string
	origMigrate := migrateFunc
	t.Cleanup(func() { migrateFunc = origMigrate })
	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		gotCommand, gotArgs = command, args
		switch command {
		case "up", "up-by-one", "down", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	require.NoError(t, cli.run([]string{"admin", "migrate", "up-to", "3"}))
	assert.Equal(t, "up-to", gotCommand)
	assert.Equal(t, []string{"3"}, gotArgs)

	cli.db = nil
	assert.EqualError(t, cli.run([]string{"admin", "migrate", "up"}), "migrations require the postgres engine")
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	awe := testutil.CreateUser(t, usrRepo, "Awe", "awe", "awe@test.cd", "mdr", []string{user.RoleOnboardee}, false)
	testutil.CreateUser(t, usrRepo, "Bob", "bob", "bob@test.cd", "mdr", nil, true)

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no email", args: []string{"adduser", "-username", "rita"}, pwd: "lol", wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "rita", "-email", "rita@test.cd"}, wantErr: errHelp},
		{
			name: "email used by someone else", args: []string{"adduser", "-username", "awe", "-email", "bob@test.cd"},
			pwd: "lol", wantErr: user.ErrEmailExists,
		},
		{name: "create", args: []string{"adduser", "-username", "Rita", "-email", "RITA@test.cd", "-name", "Rita HR", "-rh"}, pwd: "secret"},
		{name: "update by email", args: []string{"adduser", "-username", "awe2", "-email", "awe@test.cd"}, pwd: "lmao"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	rita, err := usrRepo.GetUser(ctx, user.GetFilter{Username: "rita"})
	require.NoError(t, err)
	assert.Equal(t, "Rita HR", rita.Name)
	assert.Equal(t, "rita@test.cd", rita.Email)
	assert.Equal(t, []string{user.RoleRHAdmin}, rita.Roles)
	assert.True(t, rita.Active())
	assert.NoError(t, rita.CheckPassword("secret"))

	updated, err := usrRepo.GetUser(ctx, user.GetFilter{ID: awe.ID})
	require.NoError(t, err)
	assert.Equal(t, "awe2", updated.Username)
	assert.Equal(t, []string{user.RoleOnboardee}, updated.Roles)
	assert.True(t, updated.Active())
	assert.NoError(t, updated.CheckPassword("lmao"))

	n, err := usrRepo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, pwd: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "-username", "AWE@test.cd"}, pwd: "lmao"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			err := cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err)

			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				require.NoError(t, err)
				assert.NoError(t, refreshedUsr.CheckPassword(tt.pwd))
			}
		})
	}
}

const catalogYAML = `
stages:
  - title: Welcome
    period: Day 1
    order: 1
    tasks:
      - title: Sign the contract
        type: admin
      - title: Get a badge
    courses:
      - title: Company history
        duration_minutes: 20
      - title: Security basics
        video_url: https://videos.test.cd/security
  - title: Meet the team
    order: 2
`

func Test_commandLine_seed(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

	tests := []cliTest{
		{name: "no args", args: []string{"seed"}, wantErr: errHelp},
		{name: "missing file", args: []string{"seed", "-file", filepath.Join(t.TempDir(), "lol.yaml")}, wantErr: os.ErrNotExist},
		{name: "seed", args: []string{"seed", "-file", path}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(append([]string{"admin"}, tt.args...))
			if tt.wantErr == os.ErrNotExist {
				assert.ErrorIs(t, err, os.ErrNotExist)
				return
			}
			tt.check(t, err)
		})
	}
	assert.Contains(t, cli.out.(*bytes.Buffer).String(), "created: 2 stage(s), 2 task(s), 2 course(s)")

	cat, err := cli.journeySvc.Catalog(ctx)
	require.NoError(t, err)
	require.Len(t, cat.Stages, 2)
	assert.Equal(t, "Day 1", cat.Stages[0].Period)
	require.Len(t, cat.Courses, 2)
	assert.Equal(t, "Company history", cat.Courses[0].Title)
	assert.Equal(t, "Security basics", cat.Courses[1].Title)
	assert.Less(t, cat.Courses[0].OrderKey, cat.Courses[1].OrderKey)

	// seeding again updates in place
	updated := strings.Replace(catalogYAML, "title: Meet the team", "title: Meet your team", 1)
	updated = strings.Replace(updated, "duration_minutes: 20", "duration_minutes: 25", 1)
	cli.out = new(bytes.Buffer)
	require.NoError(t, cli.seed(strings.NewReader(updated)))
	assert.Contains(t, cli.out.(*bytes.Buffer).String(), "created: 0 stage(s), 0 task(s), 0 course(s)")
	assert.Contains(t, cli.out.(*bytes.Buffer).String(), "updated: 2 stage(s), 2 task(s), 2 course(s)")

	cat, err = cli.journeySvc.Catalog(ctx)
	require.NoError(t, err)
	require.Len(t, cat.Stages, 2)
	assert.Equal(t, "Meet your team", cat.Stages[1].Title)
	assert.Len(t, cat.Tasks, 2)
	require.Len(t, cat.Courses, 2)
	assert.Equal(t, 25, cat.Courses[0].DurationMinutes)
}

func Test_commandLine_seed_invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown field", yaml: "stages:\n  - title: Welcome\n    lol: true\n"},
		{name: "stage without title", yaml: "stages:\n  - order: 1\n"},
		{name: "invalid video url", yaml: "stages:\n  - title: Welcome\n    courses:\n      - title: History\n        video_url: history\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli := setup(t)
			assert.Error(t, cli.seed(strings.NewReader(tt.yaml)))
		})
	}
}

func Test_commandLine_rebalance(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	st, err := cli.journeySvc.CreateStage(ctx, journey.NewStage{Title: "Welcome", Order: 1})
	require.NoError(t, err)
	for _, pos := range []*int{nil, nil, intPtr(1)} {
		_, err = cli.journeySvc.CreateCourse(ctx, journey.NewCourse{Title: "Course", StageID: st.ID, Position: pos})
		require.NoError(t, err)
	}

	tests := []cliTest{
		{name: "invalid gap", args: []string{"rebalance", "-min-gap", "0"}, wantErr: errHelp},
		{name: "rebalance", args: []string{"rebalance", "-min-gap", "600"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
	assert.Contains(t, cli.out.(*bytes.Buffer).String(), "renumbered the courses of 1 stage(s)")

	courses, err := cli.journeySvc.QueryCourses(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, courses, 3)
	assert.False(t, journey.NeedsRebalance(courses, 600))

	cli.out = new(bytes.Buffer)
	require.NoError(t, cli.rebalance(600))
	assert.Contains(t, cli.out.(*bytes.Buffer).String(), "renumbered the courses of 0 stage(s)")
}

func intPtr(i int) *int {
	return &i
}
