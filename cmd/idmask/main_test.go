package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestKeygenThenPubkey(t *testing.T) {
	out, err := run(t, "keygen")
	require.NoError(t, err)

	var pair keyPair
	require.NoError(t, json.Unmarshal([]byte(out), &pair))
	require.NotEmpty(t, pair.PrivateKey)
	require.NotEmpty(t, pair.PublicKey)

	out, err = run(t, "pubkey", pair.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, pair.PublicKey, strings.TrimSpace(out))
}

func TestPubkeyRequiresKey(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "")
	_, err := run(t, "pubkey")
	assert.ErrorContains(t, err, "PRIVATE_KEY is unset")
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "")
	_, err := run(t, "serve", "--env-file", "")
	assert.ErrorContains(t, err, "PRIVATE_KEY is required")
}
