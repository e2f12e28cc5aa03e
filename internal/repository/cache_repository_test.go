package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/room-scheduler-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var dest map[string]string

	assert.ErrorIs(t, repo.Get(context.Background(), "k", &dest), appErrors.ErrCacheMiss)
	require.NoError(t, repo.Set(context.Background(), "k", map[string]string{"a": "b"}, time.Minute))
	require.NoError(t, repo.DeleteByPattern(context.Background(), "room:*"))
	require.NoError(t, repo.Ping(context.Background()))
	require.NoError(t, repo.Close())
}
