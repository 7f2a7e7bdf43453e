package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("outbox-1", "rosters/course-1/Cloud_Students_2026-10-19.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ref, path, parsedExpiry, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "outbox-1", ref)
	assert.Equal(t, "rosters/course-1/Cloud_Students_2026-10-19.csv", path)
	assert.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerRejectsTamperingAndExpiry(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("outbox-1", "a.csv")
	require.NoError(t, err)

	_, _, _, err = NewSignedURLSigner("other", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, _, _, err = signer.Parse("garbage")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, _, _, err = signer.Parse(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}
