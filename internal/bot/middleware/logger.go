// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники и rate-limiting.
package middleware

import (
	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// LogMessage логирует входящее сообщение.
// Записывает: guild_id, channel_id, user_id, username, текст (первые 50 символов).
func LogMessage(m *discordgo.Message) {
	if m == nil || m.Author == nil {
		return
	}

	text := []rune(m.Content)
	if len(text) > 50 {
		text = append(text[:50], []rune("...")...)
	}

	log.WithFields(log.Fields{
		"guild_id":   m.GuildID,
		"channel_id": m.ChannelID,
		"user_id":    m.Author.ID,
		"username":   m.Author.Username,
		"text":       string(text),
	}).Debug("Входящее сообщение")
}

// LogReaction логирует событие реакции.
func LogReaction(event string, r *discordgo.MessageReaction) {
	if r == nil {
		return
	}
	log.WithFields(log.Fields{
		"event":      event,
		"guild_id":   r.GuildID,
		"message_id": r.MessageID,
		"user_id":    r.UserID,
		"emoji":      r.Emoji.APIName(),
	}).Debug("Реакция")
}
