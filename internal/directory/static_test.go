package directory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goToken "github.com/MrEthical07/goToken"
)

const sample = `
users:
  - id: 42
    subject: alice@example.com
    roles: [USER]
  - id: 7
    subject: bob@example.com
    roles: [USER, ADMIN]
    permissions: [tokens.revoke]
    status: locked
`

func TestParse(t *testing.T) {
	users, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, "alice@example.com", users[42].Subject)
	assert.Equal(t, goToken.AccountActive, users[42].Status)
	assert.Equal(t, goToken.AccountLocked, users[7].Status)
	assert.Equal(t, []string{"tokens.revoke"}, users[7].Permissions)
}

func TestParseRejectsBadUsers(t *testing.T) {
	cases := map[string]string{
		"missing subject": "users:\n  - id: 1\n",
		"duplicate id":    "users:\n  - {id: 1, subject: a}\n  - {id: 1, subject: b}\n",
		"unknown status":  "users:\n  - {id: 1, subject: a, status: frozen}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			assert.ErrorIs(t, err, ErrInvalidFile)
		})
	}

	_, err := Parse(strings.NewReader("users:\n  - {id: 1, subject: a, colour: red}\n"))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestParseEmptyDocument(t *testing.T) {
	users, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestLoadAndFindUser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	dir, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, dir.Len())

	u, err := dir.FindUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, []string{"USER"}, u.Roles)

	_, err = dir.FindUser(context.Background(), 99)
	assert.ErrorIs(t, err, goToken.ErrUserNotFound)
}

func TestReloadKeepsUsersOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	dir, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("users: [{id: 0}]"), 0o600))
	assert.Error(t, dir.Reload(path))
	assert.Equal(t, 2, dir.Len())
}

func TestStaticAsEngineDirectory(t *testing.T) {
	dir := New(goToken.UserRecord{UserID: 42, Subject: "alice@example.com", Roles: []string{"USER"}})
	cfg := goToken.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("directory-test-secret-directory-test")

	engine, err := goToken.New().WithConfig(cfg).WithDirectory(dir).Build()
	require.NoError(t, err)
	defer engine.Close()

	ctx := context.Background()
	pair, err := engine.Issue(ctx, goToken.Identity{UserID: 42, Subject: "alice@example.com"})
	require.NoError(t, err)

	dir.Put(goToken.UserRecord{UserID: 42, Subject: "alice@example.com", Status: goToken.AccountDisabled})
	_, err = engine.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, goToken.ErrAccountNotUsable)
}
