//go:build integration

package catalogstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlearchive/science-journal-ios/catalog"
	"github.com/googlearchive/science-journal-ios/catalogstore"
	"github.com/googlearchive/science-journal-ios/natsclient"
)

func TestIntegration_PublishCheck(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithIntegrationDefaults())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := catalogstore.Open(ctx, tc.Client, "SJ_CATALOG_IT")
	require.NoError(t, err)

	_, err = store.CheckCompatibility(ctx, catalog.NewManifest(catalog.Default(), catalog.DefaultPackage))
	assert.True(t, catalogstore.IsNotPublished(err))

	_, err = store.Publish(ctx, catalog.NewManifest(catalog.Without(catalog.Trial), catalog.DefaultPackage))
	require.NoError(t, err)

	diff, err := store.CheckCompatibility(ctx, catalog.NewManifest(catalog.Default(), catalog.DefaultPackage))
	require.NoError(t, err)
	assert.False(t, diff.Compatible())
	assert.Equal(t, []catalog.Name{catalog.Trial}, diff.Removed)

	majors, err := store.Majors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, majors)
}
