package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/cds-engine/internal/middleware"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestTokenCmd_IssuesVerifiableToken(t *testing.T) {
	path := writeConfig(t, "jwt:\n  secret: cli-secret\n")

	var out bytes.Buffer
	cmd := tokenCmd(&path)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--subject", "dr-house", "--ttl", "1h"})
	require.NoError(t, cmd.Execute())

	claims, err := middleware.NewAuthMiddleware("cli-secret").ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "dr-house", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestTokenCmd_RequiresSecret(t *testing.T) {
	path := writeConfig(t, "storage:\n  backend: memory\n")

	cmd := tokenCmd(&path)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--subject", "dr-house"})
	assert.ErrorContains(t, cmd.Execute(), "jwt.secret")
}
