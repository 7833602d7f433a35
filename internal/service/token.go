package service

import "sync"

// TokenProvider exposes the authenticated session token, if any. Absence of
// a token means no transport session may be opened.
type TokenProvider interface {
	Token() (string, bool)
}

// TokenStore is an in-memory TokenProvider the app layer updates on login
// and logout.
type TokenStore struct {
	mu    sync.RWMutex
	token string
}

func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

func (s *TokenStore) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *TokenStore) Clear() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

func (s *TokenStore) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}
