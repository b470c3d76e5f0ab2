package document_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/firststep/core"
	"github.com/trezcool/firststep/core/document"
	"github.com/trezcool/firststep/services/changefeed"
	inmemdb "github.com/trezcool/firststep/storage/database/inmem"
	"github.com/trezcool/firststep/testutil"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	feed := changefeed.NewMemoryFeed()
	svc := document.NewService(inmemdb.NewDocumentRepository(inmemdb.NewDB()), feed, testutil.NewLogger())
	validate, _ := testutil.NewValidator()

	var published int
	_, err := feed.Subscribe(ctx, core.TableDocuments, func() { published++ })
	require.NoError(t, err)

	bad := document.NewDocument{Name: "Handbook", FileURL: "not a url"}
	assert.Error(t, bad.Validate(validate))

	nd := document.NewDocument{Name: " Handbook ", FileURL: "https://docs.test/handbook.pdf", IsMandatory: true}
	require.NoError(t, nd.Validate(validate))
	handbook, err := svc.Create(ctx, nd)
	require.NoError(t, err)
	assert.Equal(t, "Handbook", handbook.Name)

	charter, err := svc.Create(ctx, document.NewDocument{Name: "IT charter", FileURL: "https://docs.test/it.pdf"})
	require.NoError(t, err)

	docs, err := svc.Query(ctx, document.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, charter.ID, docs[0].ID)

	mandatory := true
	docs, err = svc.Query(ctx, document.QueryFilter{Mandatory: &mandatory})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, handbook.ID, docs[0].ID)

	docs, err = svc.Query(ctx, document.QueryFilter{Search: "charter"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, charter.ID, docs[0].ID)

	name := "Employee handbook"
	updated, err := svc.Update(ctx, handbook.ID, document.UpdateDocument{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.True(t, updated.IsMandatory)

	require.NoError(t, svc.Delete(ctx, charter.ID))
	assert.Equal(t, document.ErrNotFound, errors.Cause(svc.Delete(ctx, charter.ID)))
	_, err = svc.Get(ctx, charter.ID)
	assert.Equal(t, document.ErrNotFound, errors.Cause(err))

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 4, published)
}
