package access_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/firststep/core/access"
	"github.com/trezcool/firststep/services/changefeed"
	inmemdb "github.com/trezcool/firststep/storage/database/inmem"
	"github.com/trezcool/firststep/testutil"
)

const userID = "a4a1f7f2-5d2f-4a8e-8a5d-1f9e4c3b2a10"

func TestService_Permissions(t *testing.T) {
	ctx := context.Background()
	svc := access.NewService(inmemdb.NewAccessRepository(inmemdb.NewDB()), changefeed.NewMemoryFeed(), testutil.NewLogger())

	slack, err := svc.Create(ctx, access.NewAccess{Name: "Slack"})
	require.NoError(t, err)
	github, err := svc.Create(ctx, access.NewAccess{Name: "GitHub"})
	require.NoError(t, err)

	perms, err := svc.Permissions(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, perms)

	perm, err := svc.SetPermission(ctx, userID, slack.ID, true)
	require.NoError(t, err)
	assert.Equal(t, access.StatusGranted, perm.Status)
	assert.Equal(t, "Slack", perm.AccessName)

	_, err = svc.SetPermission(ctx, userID, 999, true)
	assert.Equal(t, access.ErrNotFound, errors.Cause(err))

	perms, err = svc.BulkSetPermissions(ctx, userID, access.StatusPending)
	require.NoError(t, err)
	require.Len(t, perms, 2)
	assert.Equal(t, "GitHub", perms[0].AccessName)
	assert.Equal(t, "Slack", perms[1].AccessName)
	for _, p := range perms {
		assert.Equal(t, access.StatusPending, p.Status)
	}
	// upserting keeps the permission identity
	assert.Equal(t, perm.ID, perms[1].ID)

	require.NoError(t, svc.Delete(ctx, github.ID))
	perms, err = svc.Permissions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, slack.ID, perms[0].AccessID)
}

func TestBulkSetPermissions_Validate(t *testing.T) {
	validate, _ := testutil.NewValidator()

	ok := access.BulkSetPermissions{UserID: userID, Status: " Granted "}
	require.NoError(t, ok.Validate(validate))
	assert.Equal(t, access.StatusGranted, ok.Status)

	bad := access.BulkSetPermissions{UserID: "42", Status: "revoked"}
	assert.Error(t, bad.Validate(validate))
}
