package internal

// AccessTokenKey is the storage key of the bearer token
const AccessTokenKey = "access_token"

// TokenStore holds the bearer access token. It does not parse or validate it.
type TokenStore struct {
	store KVStore
}

// NewTokenStore creates a TokenStore over store
func NewTokenStore(store KVStore) *TokenStore {
	return &TokenStore{store: store}
}

// Get returns the stored token, or "" when absent or unreadable
func (t *TokenStore) Get() string {
	v, ok, err := t.store.Get(AccessTokenKey)
	if err != nil {
		LogDebug("Failed to read access token: %v", err)
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

// Set stores token
func (t *TokenStore) Set(token string) error {
	return t.store.Set(AccessTokenKey, token)
}

// Clear removes the token
func (t *TokenStore) Clear() error {
	return t.store.Delete(AccessTokenKey)
}
