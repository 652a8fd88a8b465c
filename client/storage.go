package client

import "sync"

// TokenState is the persisted view of a session: the current pair plus its
// access-token expiry as a Unix timestamp.
type TokenState struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// Storage persists token state across process restarts. Implementations
// back it with whatever the host platform offers (keychain, file, browser
// storage); Save and Clear must be safe to call concurrently with Load.
type Storage interface {
	Save(state TokenState) error
	Load() (TokenState, bool, error)
	Clear() error
}

// MemoryStorage is a process-local Storage, mainly for tests and tools
// that do not survive restarts.
type MemoryStorage struct {
	mu    sync.Mutex
	state TokenState
	set   bool
}

func (m *MemoryStorage) Save(state TokenState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.set = true
	return nil
}

func (m *MemoryStorage) Load() (TokenState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.set, nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = TokenState{}
	m.set = false
	return nil
}
