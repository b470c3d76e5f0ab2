package postgresdb_test

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/firststep/core/journey"
	"github.com/trezcool/firststep/core/user"
	"github.com/trezcool/firststep/storage/database"
	postgresdb "github.com/trezcool/firststep/storage/database/postgres"
	"github.com/trezcool/firststep/testutil"
)

// prepareDB connects to TEST_DATABASE_URL and recreates the schema. The test is skipped without it.
func prepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db.DB, "reset"))
	require.NoError(t, database.Migrate(db.DB, "up"))
	return db
}

func TestUserRepository(t *testing.T) {
	db := prepareDB(t)
	repo := postgresdb.NewUserRepository(db)
	ctx := context.Background()

	jane := testutil.CreateUser(t, repo, "Jane Doe", "jane", "jane@test.cd", "secret", []string{user.RoleOnboardee}, true)
	bob := testutil.CreateUser(t, repo, "Bob Buddy", "bob", "bob@test.cd", "", []string{user.RoleBuddy}, true)

	_, err := repo.CreateUser(ctx, user.User{Username: "jane", Email: "other@test.cd"})
	assert.Equal(t, user.ErrUsernameExists, err)
	assert.Equal(t, user.ErrEmailExists, repo.CheckUniqueness(ctx, "", "bob@test.cd"))
	assert.NoError(t, repo.CheckUniqueness(ctx, "bob", "bob@test.cd", bob.ID))

	got, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "jane@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, jane.ID, got.ID)
	assert.Equal(t, []string{user.RoleOnboardee}, got.Roles)
	assert.NoError(t, got.CheckPassword("secret"))

	got.BuddyID.SetValid(bob.ID)
	_, err = repo.UpdateUser(ctx, got)
	require.NoError(t, err)

	onboardees, err := repo.QueryUsers(ctx, &user.QueryFilter{BuddyID: bob.ID}, nil)
	require.NoError(t, err)
	require.Len(t, onboardees, 1)
	assert.Equal(t, jane.ID, onboardees[0].ID)

	buddies, err := repo.QueryUsers(ctx, &user.QueryFilter{Roles: []string{"buddy"}}, nil)
	require.NoError(t, err)
	require.Len(t, buddies, 1)
	assert.Equal(t, bob.ID, buddies[0].ID)

	n, err := repo.DeleteUsersByID(ctx, []string{bob.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = repo.GetUser(ctx, user.GetFilter{ID: jane.ID})
	require.NoError(t, err)
	assert.False(t, got.BuddyID.Valid)

	_, err = repo.GetUser(ctx, user.GetFilter{ID: bob.ID})
	assert.Equal(t, user.ErrNotFound, err)
}

func TestJourneyRepository(t *testing.T) {
	db := prepareDB(t)
	usrRepo := postgresdb.NewUserRepository(db)
	repo := postgresdb.NewJourneyRepository(db)
	ctx := context.Background()

	jane := testutil.CreateUser(t, usrRepo, "Jane Doe", "jane", "jane@test.cd", "", nil, true)

	welcome, err := repo.CreateStage(ctx, journey.Stage{Title: "Welcome", Order: 1})
	require.NoError(t, err)
	_, err = repo.CreateStage(ctx, journey.Stage{Title: "Also first", Order: 1})
	assert.Equal(t, journey.ErrStageOrderExists, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = repo.CreateStage(cancelled, journey.Stage{Title: "Later", Order: 9})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "inserting stage")

	task, err := repo.CreateTask(ctx, journey.Task{Title: "Sign the contract", StageID: welcome.ID})
	require.NoError(t, err)
	c1, err := repo.CreateCourse(ctx, journey.Course{Title: "History", StageID: welcome.ID, OrderKey: 1000})
	require.NoError(t, err)
	c2, err := repo.CreateCourse(ctx, journey.Course{Title: "Security", StageID: welcome.ID, OrderKey: 500})
	require.NoError(t, err)

	courses, err := repo.QueryCourses(ctx, welcome.ID)
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, c2.ID, courses[0].ID)

	require.NoError(t, repo.SetCourseOrderKeys(ctx, map[int]float64{c1.ID: 1000, c2.ID: 2000}))
	courses, err = repo.QueryCourses(ctx, welcome.ID)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, courses[0].ID)
	assert.Equal(t, journey.ErrCourseNotFound, repo.SetCourseOrderKeys(ctx, map[int]float64{99: 1}))

	// progress records are idempotent
	ref := journey.ItemRef{Kind: journey.KindTask, ID: task.ID}
	inserted, err := repo.InsertProgress(ctx, jane.ID, ref)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = repo.InsertProgress(ctx, jane.ID, ref)
	require.NoError(t, err)
	assert.False(t, inserted)
	_, err = repo.InsertProgress(ctx, jane.ID, journey.ItemRef{Kind: journey.KindCourse, ID: c1.ID})
	require.NoError(t, err)

	records, err := repo.QueryProgress(ctx, jane.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	deleted, err := repo.DeleteProgress(ctx, jane.ID, journey.ItemRef{Kind: journey.KindCourse, ID: c1.ID})
	require.NoError(t, err)
	assert.True(t, deleted)

	// deleting a task drops its progress records
	require.NoError(t, repo.DeleteTask(ctx, task.ID))
	records, err = repo.QueryProgress(ctx, jane.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, journey.ErrTaskNotFound, repo.DeleteTask(ctx, task.ID))

	// a malformed record naming both a task and a course never stands for either of them
	task2, err := repo.CreateTask(ctx, journey.Task{Title: "Set up the laptop", StageID: welcome.ID})
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO progress_records (user_id, task_id, course_id) VALUES ($1, $2, $3)",
		jane.ID, task2.ID, c2.ID)
	require.NoError(t, err)

	ref2 := journey.ItemRef{Kind: journey.KindTask, ID: task2.ID}
	inserted, err = repo.InsertProgress(ctx, jane.ID, ref2)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = repo.InsertProgress(ctx, jane.ID, journey.ItemRef{Kind: journey.KindCourse, ID: c2.ID})
	require.NoError(t, err)
	assert.True(t, inserted)
	records, err = repo.QueryProgress(ctx, jane.ID)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	deleted, err = repo.DeleteProgress(ctx, jane.ID, ref2)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repo.DeleteProgress(ctx, jane.ID, ref2)
	require.NoError(t, err)
	assert.False(t, deleted)
	records, err = repo.QueryProgress(ctx, jane.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	_, ok := records[0].Ref()
	assert.False(t, ok, "the malformed record is kept as is")

	require.NoError(t, repo.SaveSignOff(ctx, journey.SignOff{UserID: jane.ID, StageID: welcome.ID}))
	signOffs, err := repo.QuerySignOffs(ctx, jane.ID)
	require.NoError(t, err)
	require.Len(t, signOffs, 1)
	assert.False(t, signOffs[0].SignedOffBy.Valid)
}
