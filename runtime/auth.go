package runtime

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/routecodex/routecodex/runtime/oauth"
)

// Authenticator applies one runtime's credential to an outgoing request.
type Authenticator interface {
	Apply(ctx context.Context, req *http.Request) error
}

// APIKeyAuth sets a static bearer (or provider-custom) header, resolving
// the key from an env var indirection when configured (spec §6: API
// keys may be given literally or as "${ENV_VAR}").
type APIKeyAuth struct {
	Key        string
	HeaderName string // defaults to Authorization
	Prefix     string // defaults to "Bearer "
}

// Apply sets the auth header, following the teacher's default-header
// convention in openaicompat.Provider.buildHeaders.
func (a APIKeyAuth) Apply(ctx context.Context, req *http.Request) error {
	key := resolveEnvIndirection(a.Key)
	header := a.HeaderName
	if header == "" {
		header = "Authorization"
	}
	prefix := a.Prefix
	if prefix == "" && header == "Authorization" {
		prefix = "Bearer "
	}
	req.Header.Set(header, prefix+key)
	return nil
}

// resolveEnvIndirection resolves a "${VAR_NAME}" value to the named
// environment variable's content, or returns the value unchanged.
func resolveEnvIndirection(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		name := strings.TrimSuffix(strings.TrimPrefix(v, "${"), "}")
		return os.Getenv(name)
	}
	return v
}

// KeyRotator cycles through multiple API keys (spec §6: a provider may
// configure a pool of keys for one runtime), round-robin, under lock.
type KeyRotator struct {
	mu   sync.Mutex
	keys []string
	next int
}

// NewKeyRotator creates a rotator over a fixed key list.
func NewKeyRotator(keys []string) *KeyRotator {
	return &KeyRotator{keys: keys}
}

// Next returns the next key in rotation.
func (r *KeyRotator) Next() string {
	if len(r.keys) == 0 {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.keys[r.next%len(r.keys)]
	r.next++
	return k
}

// OAuthAuth authenticates using a token persisted on disk by the runtime
// OAuth subsystem, re-reading the file before every use and triggering a
// refresh when the token has expired (spec §4.4 auth subsystem).
type OAuthAuth struct {
	Store    *oauth.TokenStore
	FileName string
	Refresh  func(ctx context.Context, expired *oauth.TokenRecord) (*oauth.TokenRecord, error)
	NoRefresh bool
}

// Apply loads the current token, refreshing it first if it has expired
// and refresh is permitted, then sets the bearer header.
func (a OAuthAuth) Apply(ctx context.Context, req *http.Request) error {
	rec, err := a.Store.Load(a.FileName)
	if err != nil {
		return fmt.Errorf("runtime: load oauth token %s: %w", a.FileName, err)
	}

	if rec.Expired() && !a.NoRefresh && a.Refresh != nil {
		refreshed, err := a.Refresh(ctx, rec)
		if err != nil {
			return fmt.Errorf("runtime: refresh oauth token %s: %w", a.FileName, err)
		}
		if err := a.Store.Save(a.FileName, refreshed); err != nil {
			return fmt.Errorf("runtime: persist refreshed oauth token %s: %w", a.FileName, err)
		}
		rec = refreshed
	}

	req.Header.Set("Authorization", "Bearer "+rec.AccessToken)
	return nil
}
