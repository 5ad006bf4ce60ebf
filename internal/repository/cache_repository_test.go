package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var out map[string]string
	err := repo.Get(ctx, "receipt:abc", &out)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "receipt:abc", map[string]string{"amount": "50.00"}, time.Minute))

	removed, err := repo.DeleteByPattern(ctx, "receipt:*")
	require.NoError(t, err)
	assert.Zero(t, removed)
}
