package service

import (
	"errors"
	"sync"
	"time"

	"memchat/internal/models"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session is already processing a message")
)

// Session is one conversation and its transcript.
type Session struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`

	busy     sync.Mutex
	mu       sync.RWMutex
	messages []models.DisplayMessage
}

func NewSession(model string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Model:     model,
		CreatedAt: time.Now().UTC(),
	}
}

// Transcript returns a copy of the permanent messages so far.
func (s *Session) Transcript() []models.DisplayMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.DisplayMessage(nil), s.messages...)
}

func (s *Session) appendMessage(msg models.DisplayMessage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return len(s.messages) - 1
}

func (s *Session) updateContent(index int, content string) models.DisplayMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[index].Content = content
	return s.messages[index]
}

func (s *Session) message(index int) models.DisplayMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages[index]
}

// SessionManager keeps sessions in memory and makes sure each one handles a
// single message at a time.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

func (m *SessionManager) Create(model string) *Session {
	session := NewSession(model)
	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()
	return session
}

func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (m *SessionManager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Acquire marks the session busy. The returned release func must be called
// once the message is fully processed.
func (m *SessionManager) Acquire(id string) (*Session, func(), error) {
	session, err := m.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if !session.busy.TryLock() {
		return nil, nil, ErrSessionBusy
	}
	return session, session.busy.Unlock, nil
}
