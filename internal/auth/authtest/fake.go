// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

// Package authtest provides in-memory fakes for session-layer tests.
//
// The fakes mirror the store semantics (hash-keyed session lookup with
// revocation and expiry, TTL-scoped codes and reset tokens) closely enough
// that service tests exercise the same control flow as production.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/procuramarket/procura/internal/auth"
	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/notify"
)

// # Session Repository

// FakeSessionRepository is a map-backed auth.SessionRepository.
type FakeSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*auth.Session
}

// NewFakeSessionRepository creates an empty fake repository.
func NewFakeSessionRepository() *FakeSessionRepository {
	return &FakeSessionRepository{sessions: make(map[string]*auth.Session)}
}

func (f *FakeSessionRepository) Create(_ context.Context, session *auth.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	clone := *session
	f.sessions[session.ID] = &clone
	return nil
}

func (f *FakeSessionRepository) FindByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, session := range f.sessions {
		if session.TokenHash == tokenHash && !session.IsRevoked && time.Now().Before(session.ExpiresAt) {
			clone := *session
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("Session not found or expired")
}

func (f *FakeSessionRepository) Revoke(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session, ok := f.sessions[sessionID]; ok {
		session.IsRevoked = true
	}
	return nil
}

func (f *FakeSessionRepository) RevokeAll(_ context.Context, identityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, session := range f.sessions {
		if session.IdentityID == identityID {
			session.IsRevoked = true
		}
	}
	return nil
}

func (f *FakeSessionRepository) DeleteExpired(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, session := range f.sessions {
		if !time.Now().Before(session.ExpiresAt) {
			delete(f.sessions, id)
		}
	}
	return nil
}

// ActiveCount reports how many unrevoked sessions an identity holds.
func (f *FakeSessionRepository) ActiveCount(identityID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, session := range f.sessions {
		if session.IdentityID == identityID && !session.IsRevoked {
			count++
		}
	}
	return count
}

// # OTP Store

type otpEntry struct {
	code      string
	expiresAt time.Time
}

// FakeOTPStore is a map-backed auth.OTPStore with TTL semantics.
type FakeOTPStore struct {
	mu    sync.Mutex
	codes map[string]otpEntry
}

// NewFakeOTPStore creates an empty fake store.
func NewFakeOTPStore() *FakeOTPStore {
	return &FakeOTPStore{codes: make(map[string]otpEntry)}
}

func (f *FakeOTPStore) Set(_ context.Context, identityID string, code string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[identityID] = otpEntry{code: code, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (f *FakeOTPStore) Get(_ context.Context, identityID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.codes[identityID]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", apperr.NotFound("One-time code is invalid or expired")
	}
	return entry.code, nil
}

func (f *FakeOTPStore) Delete(_ context.Context, identityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.codes, identityID)
	return nil
}

// # Reset Token Repository

type resetEntry struct {
	identityID string
	expiresAt  time.Time
}

// FakeResetTokenRepository is a map-backed auth.ResetTokenRepository.
type FakeResetTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]resetEntry
}

// NewFakeResetTokenRepository creates an empty fake repository.
func NewFakeResetTokenRepository() *FakeResetTokenRepository {
	return &FakeResetTokenRepository{tokens: make(map[string]resetEntry)}
}

func (f *FakeResetTokenRepository) Set(_ context.Context, tokenHash string, identityID string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[tokenHash] = resetEntry{identityID: identityID, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (f *FakeResetTokenRepository) Get(_ context.Context, tokenHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.tokens[tokenHash]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", apperr.NotFound("Reset token is invalid or expired")
	}
	return entry.identityID, nil
}

func (f *FakeResetTokenRepository) Delete(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, tokenHash)
	return nil
}

func (f *FakeResetTokenRepository) DeleteAllFor(_ context.Context, identityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, entry := range f.tokens {
		if entry.identityID == identityID {
			delete(f.tokens, hash)
		}
	}
	return nil
}

// Count reports how many tokens are outstanding.
func (f *FakeResetTokenRepository) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

// # Notification Recorder

// SentMessage captures one dispatched notification.
type SentMessage struct {
	Template  string
	Recipient string
	Data      map[string]string
}

// RecordingNotifier is a notify.Notifier that captures every send, so tests
// can pull issued codes and tokens out of the notification path.
type RecordingNotifier struct {
	mu       sync.Mutex
	messages []SentMessage

	// FailTemplates lists templates whose delivery should fail.
	FailTemplates map[string]bool
}

var _ notify.Notifier = (*RecordingNotifier)(nil)

// NewRecordingNotifier creates an empty recorder.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{FailTemplates: make(map[string]bool)}
}

func (r *RecordingNotifier) Send(_ context.Context, template, recipient string, data map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailTemplates[template] {
		return apperr.ServiceUnavailable("delivery provider unreachable")
	}
	r.messages = append(r.messages, SentMessage{Template: template, Recipient: recipient, Data: data})
	return nil
}

// Last returns the most recent message with the given template, or nil.
func (r *RecordingNotifier) Last(template string) *SentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].Template == template {
			message := r.messages[i]
			return &message
		}
	}
	return nil
}

// CountOf returns how many messages used the given template.
func (r *RecordingNotifier) CountOf(template string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, message := range r.messages {
		if message.Template == template {
			count++
		}
	}
	return count
}
