package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	tk, err := IssueToken("secret", "alice", time.Hour)
	require.NoError(t, err)

	user, err := VerifyToken("secret", tk)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
}

func TestTokenExpired(t *testing.T) {
	tk, err := IssueToken("secret", "alice", -time.Minute)
	require.NoError(t, err)

	_, err = VerifyToken("secret", tk)
	assert.Error(t, err)
}

func TestTokenWrongSecret(t *testing.T) {
	tk, err := IssueToken("secret", "alice", time.Hour)
	require.NoError(t, err)

	_, err = VerifyToken("other", tk)
	assert.Error(t, err)
}

func TestTokenGarbage(t *testing.T) {
	_, err := VerifyToken("secret", "not-a-token")
	assert.Error(t, err)
	_, err = VerifyToken("secret", "")
	assert.Error(t, err)
}

func TestRequestSigning(t *testing.T) {
	body := `{"userId":"bob"}`
	ts := "1700000000"
	sign := SignMD5("secret", body, ts)
	assert.True(t, CheckSignMD5("secret", body, ts, sign))
	assert.False(t, CheckSignMD5("secret", body, "1700000001", sign))
	assert.False(t, CheckSignMD5("other", body, ts, sign))
	assert.False(t, CheckSignMD5("secret", body+" ", ts, sign))
}
