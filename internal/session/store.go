// Package session keeps per-user bearer tokens in memory.
package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Record is the authentication state of one Telegram user.
type Record struct {
	TelegramID  int64
	Token       string
	ExpiresAt   time.Time
	ResidentID  string
	Permissions []string
}

// Allows reports whether the record grants the named action. An empty
// permission list leaves enforcement to the backend.
func (r Record) Allows(action string) bool {
	if len(r.Permissions) == 0 {
		return true
	}
	for _, p := range r.Permissions {
		if p == action || p == "*" || p == "admin" {
			return true
		}
	}
	return false
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	records map[int64]Record
	ttl     time.Duration
	now     func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		records: make(map[int64]Record),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores a token for the user. The expiry is taken from the JWT exp
// claim when present, otherwise from the store TTL.
func (s *Store) Put(telegramID int64, token, residentID string, permissions []string) Record {
	now := s.now()
	rec := Record{
		TelegramID:  telegramID,
		Token:       token,
		ExpiresAt:   ExpiryFromToken(token, now, s.ttl),
		ResidentID:  residentID,
		Permissions: append([]string(nil), permissions...),
	}

	s.mu.Lock()
	s.records[telegramID] = rec
	s.mu.Unlock()
	return rec
}

// Get returns a live record. Expired records are removed and reported missing.
func (s *Store) Get(telegramID int64) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[telegramID]
	if !ok {
		return Record{}, false
	}
	if !rec.ExpiresAt.After(s.now()) {
		delete(s.records, telegramID)
		return Record{}, false
	}
	return rec, true
}

func (s *Store) Delete(telegramID int64) {
	s.mu.Lock()
	delete(s.records, telegramID)
	s.mu.Unlock()
}

// PurgeExpired drops every expired record and returns how many were removed.
func (s *Store) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, rec := range s.records {
		if !rec.ExpiresAt.After(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// ExpiryFromToken reads the exp claim without verifying the signature; the
// backend verifies the token on every call. Tokens that are not JWTs or carry
// no exp get now+fallback.
func ExpiryFromToken(token string, now time.Time, fallback time.Duration) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return now.Add(fallback)
}
