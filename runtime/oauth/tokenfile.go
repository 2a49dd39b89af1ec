// Package oauth manages OAuth token files for provider runtimes that
// authenticate via a refreshable bearer token instead of a static API
// key. Token files are discovered by naming convention
// "<provider>-oauth-<seq>-<alias>.json" and are re-read from disk before
// every use, since an out-of-band refresh (another process, or the
// gateway's own background refresher) may have rewritten them.
package oauth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenRecord is the persisted shape of one OAuth token file.
type TokenRecord struct {
	Provider     string    `json:"provider"`
	Alias        string    `json:"alias"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the token has passed its expiry, with a small
// safety margin so a request doesn't race a boundary expiry.
func (r TokenRecord) Expired() bool {
	return time.Now().Add(30 * time.Second).After(r.ExpiresAt)
}

// fileNamePattern matches the "<provider>-oauth-<seq>-<alias>.json"
// discovery convention.
var fileNamePattern = regexp.MustCompile(`^([a-zA-Z0-9_]+)-oauth-(\d+)-([a-zA-Z0-9_.\-]+)\.json$`)

// ParseFileName extracts the provider, sequence, and alias encoded in an
// OAuth token file's name.
func ParseFileName(name string) (provider string, seq int, alias string, ok bool) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", 0, "", false
	}
	var n int
	fmt.Sscanf(m[2], "%d", &n)
	return m[1], n, m[3], true
}

// TokenStore loads and persists token files under one directory,
// collapsing concurrent loads of the same file via singleflight so a
// burst of requests reads the file once. Only loads are collapsed: a
// token refresh is neither collapsed nor held under a per-file lock, so
// concurrent callers holding an expired token each refresh it.
type TokenStore struct {
	dir   string
	group singleflight.Group
	mu    sync.Mutex
}

// NewTokenStore creates a store rooted at dir (typically
// ~/.routecodex/oauth/).
func NewTokenStore(dir string) *TokenStore {
	return &TokenStore{dir: dir}
}

// Load reads a token file, collapsing concurrent reads of the same name.
func (s *TokenStore) Load(fileName string) (*TokenRecord, error) {
	v, err, _ := s.group.Do(fileName, func() (interface{}, error) {
		path := filepath.Join(s.dir, fileName)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var rec TokenRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("oauth: parse %s: %w", fileName, err)
		}
		return &rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TokenRecord), nil
}

// Save writes a token record atomically: write to a temp file in the
// same directory, then rename over the target, so a concurrent Load
// never observes a partially-written file.
func (s *TokenStore) Save(fileName string, rec *TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, fileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Discover lists every OAuth token file under the store's directory,
// parsing the naming convention for each.
func (s *TokenStore) Discover() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if _, _, _, ok := ParseFileName(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
