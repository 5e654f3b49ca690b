// Package session holds the active signing identity of the portal.
package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/ledger"
)

// Listener is called after the active identity changes. identity is nil
// after a disconnect.
type Listener func(identity ledger.Signer)

// Session tracks the connected identity.
type Session struct {
	mu        sync.RWMutex
	identity  ledger.Signer
	listeners []Listener
	logger    *zap.Logger
}

// New creates an empty session.
func New(logger *zap.Logger) *Session {
	return &Session{logger: logger}
}

// Connect makes identity the active signer. Reconnecting the same address
// does not notify listeners.
func (s *Session) Connect(identity ledger.Signer) {
	s.mu.Lock()
	same := s.identity != nil && identity != nil && s.identity.Address() == identity.Address()
	s.identity = identity
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if same {
		return
	}
	if identity != nil {
		s.logger.Info("Identity connected", zap.String("address", identity.Address()))
	}
	for _, fn := range listeners {
		fn(identity)
	}
}

// Disconnect clears the active identity.
func (s *Session) Disconnect() {
	s.mu.Lock()
	had := s.identity != nil
	s.identity = nil
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if !had {
		return
	}
	s.logger.Info("Identity disconnected")
	for _, fn := range listeners {
		fn(nil)
	}
}

// Current returns the active signer.
func (s *Session) Current() (ledger.Signer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.identity != nil
}

// Address returns the active address or "".
func (s *Session) Address() string {
	if id, ok := s.Current(); ok {
		return id.Address()
	}
	return ""
}

// OnChange registers fn to run after every identity change.
func (s *Session) OnChange(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
