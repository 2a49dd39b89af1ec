package oauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileName_ValidConvention(t *testing.T) {
	provider, seq, alias, ok := ParseFileName("anthropic-oauth-1-work.json")
	require.True(t, ok)
	assert.Equal(t, "anthropic", provider)
	assert.Equal(t, 1, seq)
	assert.Equal(t, "work", alias)
}

func TestParseFileName_RejectsUnrelatedFile(t *testing.T) {
	_, _, _, ok := ParseFileName("config.json")
	assert.False(t, ok)
}

func TestTokenRecord_Expired(t *testing.T) {
	expired := TokenRecord{ExpiresAt: time.Now().Add(-time.Minute)}
	assert.True(t, expired.Expired())

	fresh := TokenRecord{ExpiresAt: time.Now().Add(time.Hour)}
	assert.False(t, fresh.Expired())
}

func TestTokenStore_SaveThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	store := NewTokenStore(dir)

	rec := &TokenRecord{Provider: "anthropic", Alias: "work", AccessToken: "tok123", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Save("anthropic-oauth-1-work.json", rec))

	loaded, err := store.Load("anthropic-oauth-1-work.json")
	require.NoError(t, err)
	assert.Equal(t, "tok123", loaded.AccessToken)
}

func TestTokenStore_Discover_FindsConventionallyNamedFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewTokenStore(dir)
	require.NoError(t, store.Save("anthropic-oauth-1-work.json", &TokenRecord{AccessToken: "a"}))
	require.NoError(t, store.Save("not-a-token.json", &TokenRecord{AccessToken: "b"}))

	names, err := store.Discover()
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic-oauth-1-work.json"}, names)
}
