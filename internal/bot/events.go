// Package bot - events.go переводит события шлюза Discord в события движка.
package bot

import (
	"github.com/bwmarrin/discordgo"

	"serotonyl.ru/discord-autorole/internal/features/autorole"
)

// emojiKey - ключ эмодзи в том виде, в каком он хранится в правилах:
// unicode как есть, кастомный - name:id.
func emojiKey(e discordgo.Emoji) string {
	return e.APIName()
}

func reactionAdded(ev *discordgo.MessageReactionAdd, isBot bool) autorole.ReactionAdded {
	return autorole.ReactionAdded{
		GuildID:   ev.GuildID,
		ChannelID: ev.ChannelID,
		MessageID: ev.MessageID,
		UserID:    ev.UserID,
		EmojiKey:  emojiKey(ev.Emoji),
		IsBot:     isBot,
	}
}

// memberIsBot - бот ли автор реакции по данным самого события.
// ok == false, если событие участника не несёт.
func memberIsBot(m *discordgo.Member) (isBot, ok bool) {
	if m == nil || m.User == nil {
		return false, false
	}
	return m.User.Bot, true
}

func reactionRemoved(ev *discordgo.MessageReactionRemove, isBot bool) autorole.ReactionRemoved {
	return autorole.ReactionRemoved{
		GuildID:   ev.GuildID,
		ChannelID: ev.ChannelID,
		MessageID: ev.MessageID,
		UserID:    ev.UserID,
		EmojiKey:  emojiKey(ev.Emoji),
		IsBot:     isBot,
	}
}

func reactionsCleared(ev *discordgo.MessageReactionRemoveAll) autorole.ReactionsCleared {
	return autorole.ReactionsCleared{GuildID: ev.GuildID, MessageID: ev.MessageID}
}

func messageDeleted(ev *discordgo.MessageDelete) autorole.MessageDeleted {
	return autorole.MessageDeleted{GuildID: ev.GuildID, MessageID: ev.ID}
}

func messagesBulkDeleted(ev *discordgo.MessageDeleteBulk) autorole.MessagesBulkDeleted {
	return autorole.MessagesBulkDeleted{GuildID: ev.GuildID, MessageIDs: ev.Messages}
}

func roleDeleted(ev *discordgo.GuildRoleDelete) autorole.RoleDeleted {
	return autorole.RoleDeleted{GuildID: ev.GuildID, RoleID: ev.RoleID}
}

// readyGuildIDs - гильдии из события Ready.
func readyGuildIDs(r *discordgo.Ready) []string {
	ids := make([]string, 0, len(r.Guilds))
	for _, g := range r.Guilds {
		if g != nil {
			ids = append(ids, g.ID)
		}
	}
	return ids
}

// thanksTarget - кому адресовано «спасибо»: автор сообщения, на которое ответили.
// Ответ боту или самому себе не считается.
func thanksTarget(m *discordgo.Message) (string, bool) {
	ref := m.ReferencedMessage
	if ref == nil || ref.Author == nil || ref.Author.Bot || m.Author == nil {
		return "", false
	}
	if ref.Author.ID == m.Author.ID {
		return "", false
	}
	return ref.Author.ID, true
}
