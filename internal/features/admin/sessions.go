// Package admin - sessions.go хранит сессии подтверждения.
// Реестр ограничен по времени: истёкшая сессия не подтверждается, а фоновая
// горутина периодически выкидывает её из памяти.
package admin

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"serotonyl.ru/discord-autorole/internal/common"
)

// Sessions - реестр сессий подтверждения (code → *Session).
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSessions создаёт реестр и запускает фоновую очистку.
func NewSessions(ttl time.Duration) *Sessions {
	s := &Sessions{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go s.cleanup()
	return s
}

// Close останавливает фоновую очистку. Вызывать на shutdown.
func (s *Sessions) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Open открывает сессию. Прежняя сессия того же пользователя на то же
// действие с тем же правилом заменяется.
func (s *Sessions) Open(action Action, guildID, ruleName, userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	for code, old := range s.sessions {
		if old.Action == action && old.GuildID == guildID && old.RuleName == ruleName && old.RequestedBy == userID {
			delete(s.sessions, code)
		}
	}

	code := s.newCode()
	sess := &Session{
		Code:        code,
		Action:      action,
		GuildID:     guildID,
		RuleName:    ruleName,
		RequestedBy: userID,
		ExpiresAt:   s.now().Add(s.ttl),
	}
	s.sessions[code] = sess
	return sess
}

// Take забирает сессию по коду. Сессия одноразовая: после Take её нет.
// Истёкшая, чужая или из другой гильдии - common.ErrConfirmationNotFound.
func (s *Sessions) Take(code, guildID, userID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code = strings.ToLower(strings.TrimSpace(code))
	sess, ok := s.sessions[code]
	if !ok {
		return nil, common.ErrConfirmationNotFound
	}
	if !s.now().Before(sess.ExpiresAt) {
		delete(s.sessions, code)
		return nil, common.ErrConfirmationNotFound
	}
	if sess.GuildID != guildID || sess.RequestedBy != userID {
		return nil, common.ErrConfirmationNotFound
	}
	delete(s.sessions, code)
	return sess, nil
}

// Len возвращает число сессий в памяти (включая ещё не вычищенные истёкшие).
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// sweep удаляет истёкшие сессии.
func (s *Sessions) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for code, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, code)
			removed++
		}
	}
	return removed
}

func (s *Sessions) cleanup() {
	interval := s.ttl
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// newCode генерирует короткий код подтверждения. Вызывать под s.mu.
func (s *Sessions) newCode() string {
	for {
		b := make([]byte, 3)
		if _, err := rand.Read(b); err != nil {
			return fmt.Sprintf("%06x", s.now().UnixNano()&0xffffff)
		}
		code := hex.EncodeToString(b)
		if _, taken := s.sessions[code]; !taken {
			return code
		}
	}
}
