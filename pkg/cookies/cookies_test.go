package cookies

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	got := Parse("sessionKey=sk-ant-123; lastActiveOrg=org-42;  ; broken; =novalue; cf_clearance=a=b")

	require.Len(t, got, 3)
	assert.Equal(t, Cookie{Name: "sessionKey", Value: "sk-ant-123", Domain: "claude.ai", Path: "/"}, got[0])
	assert.Equal(t, "org-42", got[1].Value)
	assert.Equal(t, "cf_clearance", got[2].Name)
	assert.Equal(t, "a=b", got[2].Value)
}

func TestParse_Empty(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("no-equals-sign"))
}

func TestOrgID(t *testing.T) {
	assert.Equal(t, "org-42", OrgID(Parse("a=1; lastActiveOrg=org-42")))
	assert.Equal(t, "", OrgID(Parse("a=1")))
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing", func(t *testing.T) {
		_, err := ReadFile(filepath.Join(dir, "missing.txt"))
		assert.ErrorIs(t, err, ErrNoCredentials)
	})

	t.Run("empty", func(t *testing.T) {
		path := filepath.Join(dir, "empty.txt")
		require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))
		_, err := ReadFile(path)
		assert.ErrorIs(t, err, ErrNoCredentials)
	})

	t.Run("only malformed segments", func(t *testing.T) {
		path := filepath.Join(dir, "junk.txt")
		require.NoError(t, os.WriteFile(path, []byte("junk; more junk"), 0o600))
		_, err := ReadFile(path)
		assert.ErrorIs(t, err, ErrNoCredentials)
	})

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(dir, "cookies.txt")
		require.NoError(t, os.WriteFile(path, []byte("sessionKey=abc; lastActiveOrg=org-1\n"), 0o600))
		got, err := ReadFile(path)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestWriteFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cookies.txt")
	in := []Cookie{{Name: "sessionKey", Value: "abc"}, {Name: "lastActiveOrg", Value: "org-1"}}

	require.NoError(t, WriteFile(path, in))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sessionKey=abc; lastActiveOrg=org-1", Format(got))
	assert.True(t, Exists(path))
}

func TestWriteFile_NoCookies(t *testing.T) {
	assert.Error(t, WriteFile(filepath.Join(t.TempDir(), "c.txt"), nil))
}
