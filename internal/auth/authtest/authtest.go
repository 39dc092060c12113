// Package authtest provides in-memory doubles for the auth package.
package authtest

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"storeadmin/internal/auth"
)

// MemoryStore is an AccountStore backed by a map keyed on email. It enforces
// the same verified-account precondition as the real stores.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*auth.Account
	nextID   int
	Now      func() time.Time

	// Err, when set, is returned by every method.
	Err error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*auth.Account), Now: time.Now}
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	a, ok := s.accounts[email]
	if !ok {
		return nil, nil
	}
	return clone(a), nil
}

func (s *MemoryStore) CreateOrReplacePending(_ context.Context, p auth.PendingAccount) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	now := s.Now()
	a, ok := s.accounts[p.Email]
	if ok && a.IsVerified {
		return nil, auth.ErrAlreadyVerified
	}
	if !ok {
		s.nextID++
		a = &auth.Account{ID: strconv.Itoa(s.nextID), Email: p.Email, CreatedAt: now}
		s.accounts[p.Email] = a
	}

	digest := p.OTPDigest
	expiry := p.OTPExpiry
	a.Name = p.Name
	a.PasswordHash = p.PasswordHash
	a.IsVerified = false
	a.OTP = &digest
	a.OTPExpiry = &expiry
	a.UpdatedAt = now
	return clone(a), nil
}

func (s *MemoryStore) Save(_ context.Context, a *auth.Account, expectedOTP string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for email, stored := range s.accounts {
		if stored.ID == a.ID {
			if stored.OTP == nil || *stored.OTP != expectedOTP {
				return auth.ErrStaleAccount
			}
			updated := clone(a)
			updated.UpdatedAt = s.Now()
			delete(s.accounts, email)
			s.accounts[a.Email] = updated
			return nil
		}
	}
	return auth.ErrStaleAccount
}

func (s *MemoryStore) ListVerified(context.Context) ([]auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []auth.Account{}
	for _, a := range s.accounts {
		if a.IsVerified {
			out = append(out, *clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Put stores a directly, bypassing the pending precondition.
func (s *MemoryStore) Put(a auth.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		s.nextID++
		a.ID = strconv.Itoa(s.nextID)
	}
	s.accounts[a.Email] = clone(&a)
}

// Get returns a copy of the stored account, or nil.
func (s *MemoryStore) Get(email string) *auth.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[email]; ok {
		return clone(a)
	}
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

func clone(a *auth.Account) *auth.Account {
	c := *a
	if a.OTP != nil {
		otp := *a.OTP
		c.OTP = &otp
	}
	if a.OTPExpiry != nil {
		exp := *a.OTPExpiry
		c.OTPExpiry = &exp
	}
	return &c
}

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// RecordingMailer captures sent messages. When Err is set, Send fails with it
// and records nothing.
type RecordingMailer struct {
	mu       sync.Mutex
	Messages []Message
	Err      error
}

func (m *RecordingMailer) Send(_ context.Context, to, subject, text, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, Message{To: to, Subject: subject, Text: text, HTML: html})
	return nil
}

func (m *RecordingMailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages)
}

// LastCode returns the verification code in the most recent message to
// email, or "".
func (m *RecordingMailer) LastCode(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Messages) - 1; i >= 0; i-- {
		if m.Messages[i].To == email {
			return codePattern.FindString(m.Messages[i].Text)
		}
	}
	return ""
}

type RecordingAuditor struct {
	mu     sync.Mutex
	Events []auth.AuditEvent
	Err    error
}

func (a *RecordingAuditor) Log(_ context.Context, e auth.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Events = append(a.Events, e)
	return a.Err
}

// Outcomes lists "eventType:outcome" for every recorded event, in order.
func (a *RecordingAuditor) Outcomes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.Events))
	for _, e := range a.Events {
		out = append(out, e.EventType+":"+e.Outcome)
	}
	return out
}
