// Package reputation - service.go содержит бизнес-логику репутации.
package reputation

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/discord-autorole/internal/common"
)

// Store - хранилище репутации (Repository в проде).
type Store interface {
	Increment(ctx context.Context, guildID, userID string) (int, error)
	Get(ctx context.Context, guildID, userID string) (int, error)
	LogGive(ctx context.Context, guildID, fromUserID, toUserID string, points int) error
	CountGivenSince(ctx context.Context, guildID, fromUserID string, since time.Time) (int, error)
	GaveSince(ctx context.Context, guildID, fromUserID, toUserID string, since time.Time) (bool, error)
}

// ScoreListener получает каждое изменение счёта. Через него движок
// автоматических ролей пересчитывает правила REPUTATION_THRESHOLD.
type ScoreListener interface {
	OnScoreChanged(ctx context.Context, guildID, userID string, prev, score int)
}

// Service управляет репутацией.
type Service struct {
	store      Store
	dailyLimit int
	listener   ScoreListener
	now        func() time.Time
}

// NewService создаёт сервис репутации.
func NewService(store Store, dailyLimit int) *Service {
	return &Service{store: store, dailyLimit: dailyLimit, now: time.Now}
}

// SetListener подписывает слушателя изменений счёта.
func (s *Service) SetListener(l ScoreListener) {
	s.listener = l
}

// Give даёт +1 репутацию. Проверяет лимиты и ограничения.
// Возвращает новый счёт получателя.
func (s *Service) Give(ctx context.Context, guildID, fromUserID, toUserID string) (int, error) {
	if fromUserID == toUserID {
		return 0, common.ErrReputationSelfGive
	}

	since := common.StartOfDay(s.now())

	count, err := s.store.CountGivenSince(ctx, guildID, fromUserID, since)
	if err != nil {
		return 0, err
	}
	if count >= s.dailyLimit {
		return 0, common.ErrReputationDailyLimit
	}

	gave, err := s.store.GaveSince(ctx, guildID, fromUserID, toUserID, since)
	if err != nil {
		return 0, err
	}
	if gave {
		return 0, common.ErrReputationAlreadyGave
	}

	score, err := s.store.Increment(ctx, guildID, toUserID)
	if err != nil {
		return 0, err
	}

	if err := s.store.LogGive(ctx, guildID, fromUserID, toUserID, 1); err != nil {
		log.WithError(err).Error("Ошибка записи лога репутации")
	}

	log.WithFields(log.Fields{
		"guild_id": guildID,
		"from":     fromUserID,
		"to":       toUserID,
		"score":    score,
	}).Info("Репутация выдана")

	if s.listener != nil {
		s.listener.OnScoreChanged(ctx, guildID, toUserID, score-1, score)
	}
	return score, nil
}

// GetScore возвращает репутацию пользователя.
func (s *Service) GetScore(ctx context.Context, guildID, userID string) (int, error) {
	return s.store.Get(ctx, guildID, userID)
}
