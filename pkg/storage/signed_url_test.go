package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("export-1", "rooms/r1/schedule.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	ownerID, path, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "export-1", ownerID)
	require.Equal(t, "rooms/r1/schedule.csv", path)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("export-1", "schedule.csv")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, _, _, err = signer.Parse(token, false)
	require.ErrorIs(t, err, ErrTokenExpired)

	ownerID, path, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "export-1", ownerID)
	require.Equal(t, "schedule.csv", path)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("export-1", "schedule.csv")
	require.NoError(t, err)

	other := NewSignedURLSigner("other-secret", time.Hour)
	_, _, _, err = other.Parse(token, false)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, _, _, err = signer.Parse("export-2"+token[len("export-1"):], false)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, _, _, err = signer.Parse("garbage", false)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestLocalStorageRoundTripAndTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	rel, err := store.Save("rooms/r1/a.csv", []byte("x,y\n"))
	require.NoError(t, err)

	f, err := store.Open(rel)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = store.Save("../escape.csv", []byte("nope"))
	require.Error(t, err)

	require.NoError(t, store.Delete(rel))
	require.NoError(t, store.Delete(rel))

	_, err = store.Save("old.csv", []byte("old"))
	require.NoError(t, err)
	deleted, err := store.CleanupOlderThan(-time.Second)
	require.NoError(t, err)
	require.Equal(t, []string{"old.csv"}, deleted)
}
