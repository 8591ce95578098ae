package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"

	witerrors "thoreinstein.com/wit/pkg/errors"
)

const (
	// KeyringService is the keychain service name for wit.
	KeyringService = "wit-azure-devops"

	// TokenCacheDir is the directory for the token cache file.
	TokenCacheDir = ".config/wit" //nolint:gosec // Not a credential, just a directory name
	// TokenCacheFile holds cached tokens keyed by organization and resource.
	TokenCacheFile = "ado-tokens.json" //nolint:gosec // Not a credential, just a filename
)

// TokenStore persists bearer tokens between processes.
type TokenStore interface {
	Get() (*oauth2.Token, error)
	Set(token *oauth2.Token) error
	Clear() error
}

// StoreKey names the slot a token is persisted under. A token for one
// organization or resource id is never read back for another.
func StoreKey(organization, resource string) string {
	org := strings.ToLower(strings.TrimSpace(organization))
	return org + "@" + strings.TrimSpace(resource)
}

type storedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Expiry      time.Time `json:"expiry,omitempty"`
}

func (s *storedToken) toOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: s.AccessToken,
		TokenType:   s.TokenType,
		Expiry:      s.Expiry,
	}
}

func fromOAuth2Token(t *oauth2.Token) storedToken {
	return storedToken{
		AccessToken: t.AccessToken,
		TokenType:   t.TokenType,
		Expiry:      t.Expiry,
	}
}

// NewTokenStore returns a store for the organization and resource pair,
// backed by the OS keychain when it is usable and by a 0600 file under
// ~/.config/wit otherwise.
func NewTokenStore(organization, resource string) TokenStore {
	key := StoreKey(organization, resource)

	testService := KeyringService + "-test"
	if err := keyring.Set(testService, "test", "test"); err == nil {
		_ = keyring.Delete(testService, "test")
		return &KeychainStore{service: KeyringService, account: key}
	}

	return NewFileStore(tokenCachePath(), key)
}

// KeychainStore keeps one token per account in the OS credential store.
type KeychainStore struct {
	service string
	account string
}

// Get retrieves the stored token from keychain.
func (k *KeychainStore) Get() (*oauth2.Token, error) {
	data, err := keyring.Get(k.service, k.account)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, nil
		}
		return nil, witerrors.NewAuthErrorWithCause("keychain", "failed to read from keychain", err)
	}

	var stored storedToken
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, witerrors.NewAuthErrorWithCause("keychain", "failed to parse stored token", err)
	}

	return stored.toOAuth2Token(), nil
}

// Set stores the token in keychain.
func (k *KeychainStore) Set(token *oauth2.Token) error {
	data, err := json.Marshal(fromOAuth2Token(token))
	if err != nil {
		return witerrors.NewAuthErrorWithCause("keychain", "failed to serialize token", err)
	}

	if err := keyring.Set(k.service, k.account, string(data)); err != nil {
		return witerrors.NewAuthErrorWithCause("keychain", "failed to save to keychain", err)
	}
	return nil
}

// Clear removes the token from keychain.
func (k *KeychainStore) Clear() error {
	err := keyring.Delete(k.service, k.account)
	if err != nil && err != keyring.ErrNotFound {
		return witerrors.NewAuthErrorWithCause("keychain", "failed to clear keychain", err)
	}
	return nil
}

// FileStore keeps tokens for several organizations in one file, each under
// its StoreKey. It is the fallback for headless systems.
type FileStore struct {
	path string
	key  string
}

// NewFileStore returns a FileStore reading and writing the slot key of the
// file at path.
func NewFileStore(path, key string) *FileStore {
	return &FileStore{path: path, key: key}
}

func (f *FileStore) load() (map[string]storedToken, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]storedToken{}, nil
		}
		return nil, witerrors.NewAuthErrorWithCause("file", "failed to read token file", err)
	}

	tokens := map[string]storedToken{}
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, witerrors.NewAuthErrorWithCause("file", "failed to parse stored tokens", err)
	}
	return tokens, nil
}

func (f *FileStore) save(tokens map[string]storedToken) error {
	if len(tokens) == 0 {
		err := os.Remove(f.path)
		if err != nil && !os.IsNotExist(err) {
			return witerrors.NewAuthErrorWithCause("file", "failed to remove token file", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return witerrors.NewAuthErrorWithCause("file", "failed to create config directory", err)
	}
	data, err := json.Marshal(tokens)
	if err != nil {
		return witerrors.NewAuthErrorWithCause("file", "failed to serialize tokens", err)
	}
	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return witerrors.NewAuthErrorWithCause("file", "failed to write token file", err)
	}
	return nil
}

// Get retrieves this store's token, or nil when none is saved.
func (f *FileStore) Get() (*oauth2.Token, error) {
	tokens, err := f.load()
	if err != nil {
		return nil, err
	}
	stored, ok := tokens[f.key]
	if !ok {
		return nil, nil
	}
	return stored.toOAuth2Token(), nil
}

// Set saves the token, leaving other slots in the file untouched.
func (f *FileStore) Set(token *oauth2.Token) error {
	tokens, err := f.load()
	if err != nil {
		return err
	}
	tokens[f.key] = fromOAuth2Token(token)
	return f.save(tokens)
}

// Clear removes this store's token. The file is deleted once empty.
func (f *FileStore) Clear() error {
	tokens, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := tokens[f.key]; !ok {
		return nil
	}
	delete(tokens, f.key)
	return f.save(tokens)
}

func tokenCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, TokenCacheDir, TokenCacheFile)
}
