package verification

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/anonto42/reviewinn/backend/internal/domain"
)

type storeKey struct {
	email    string
	codeType CodeType
}

type record struct {
	code      string
	createdAt time.Time
	expiresAt time.Time
	attempts  int
}

// CodeStore holds issued codes in memory keyed by (email, code type).
type CodeStore struct {
	mu    sync.Mutex
	codes map[storeKey]*record
}

func NewCodeStore() *CodeStore {
	return &CodeStore{codes: make(map[storeKey]*record)}
}

// Issue replaces any code for (email, ct).
func (s *CodeStore) Issue(email string, ct CodeType, code string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[storeKey{email, ct}] = &record{code: code, createdAt: now, expiresAt: now.Add(CodeTTL)}
}

// Peek returns a copy of the live record for (email, ct).
func (s *CodeStore) Peek(email string, ct CodeType) (record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.codes[storeKey{email, ct}]
	if !ok {
		return record{}, false
	}
	return *rec, true
}

// Check consumes one attempt against the stored code. Terminal outcomes
// (success, expiry, exhaustion) delete the record.
func (s *CodeStore) Check(email string, ct CodeType, code string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey{email, ct}
	rec, ok := s.codes[key]
	if !ok {
		return &domain.CodeError{Reason: domain.CodeMissing}
	}
	if !now.Before(rec.expiresAt) {
		delete(s.codes, key)
		return &domain.CodeError{Reason: domain.CodeExpired}
	}
	if rec.attempts >= MaxAttempts {
		delete(s.codes, key)
		return &domain.CodeError{Reason: domain.CodeExhausted}
	}

	rec.attempts++
	if subtle.ConstantTimeCompare([]byte(rec.code), []byte(code)) != 1 {
		return &domain.CodeError{Reason: domain.CodeInvalid, AttemptsRemaining: MaxAttempts - rec.attempts}
	}
	delete(s.codes, key)
	return nil
}

// Sweep deletes expired records and returns how many were removed.
func (s *CodeStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, rec := range s.codes {
		if !now.Before(rec.expiresAt) {
			delete(s.codes, key)
			n++
		}
	}
	return n
}

func (s *CodeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}
