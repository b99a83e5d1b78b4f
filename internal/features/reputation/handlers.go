// Package reputation - handlers.go обрабатывает «спасибо» и команду !репутация.
package reputation

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/discord-autorole/internal/common"
)

// Sender отправляет ответ в канал.
type Sender interface {
	SendMessage(channelID, text string) error
}

// Handler обрабатывает события репутации.
type Handler struct {
	service *Service
	sender  Sender
}

// NewHandler создаёт обработчик репутации.
func NewHandler(service *Service, sender Sender) *Handler {
	return &Handler{service: service, sender: sender}
}

// HandleScore - команда !репутация. Показывает ТОЛЬКО свою репутацию.
func (h *Handler) HandleScore(ctx context.Context, guildID, channelID, userID string) {
	score, err := h.service.GetScore(ctx, guildID, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения репутации")
		h.sendMessage(channelID, "❌ Ошибка получения репутации")
		return
	}
	h.sendMessage(channelID, fmt.Sprintf("⭐ <@%s>, твоя репутация: %d", userID, score))
}

// HandleThankYou обрабатывает «спасибо» в ответе на сообщение.
// Отказ по лимиту показываем, остальные отказы только логируем.
func (h *Handler) HandleThankYou(ctx context.Context, guildID, channelID, fromUserID, toUserID string) {
	score, err := h.service.Give(ctx, guildID, fromUserID, toUserID)
	switch {
	case err == nil:
		h.sendMessage(channelID, fmt.Sprintf("⭐ +1 к репутации <@%s> (теперь %d)", toUserID, score))
	case errors.Is(err, common.ErrReputationDailyLimit):
		h.sendMessage(channelID, "⏳ "+err.Error())
	case errors.Is(err, common.ErrReputationSelfGive), errors.Is(err, common.ErrReputationAlreadyGave):
		log.WithError(err).WithField("user_id", fromUserID).Debug("Репутация не дана")
	default:
		log.WithError(err).WithField("user_id", fromUserID).Error("Ошибка выдачи репутации")
	}
}

func (h *Handler) sendMessage(channelID, text string) {
	if err := h.sender.SendMessage(channelID, text); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
