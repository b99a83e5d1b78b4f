// Package bot - platform.go реализует операции над Discord, которые нужны
// фичам: выдача и снятие ролей, автор сообщения, участники гильдии,
// ответы в канал и проверка прав администратора.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/discord-autorole/internal/common"
	"serotonyl.ru/discord-autorole/internal/features/members"
)

// adminPermissions - права, дающие доступ к !autorole.
const adminPermissions = discordgo.PermissionAdministrator | discordgo.PermissionManageRoles

// Platform - адаптер REST API Discord.
type Platform struct {
	session *discordgo.Session
	bots    *botFlags
}

// NewPlatform создаёт адаптер поверх сессии.
func NewPlatform(session *discordgo.Session) *Platform {
	return &Platform{session: session, bots: &botFlags{}}
}

// IssueRole выдаёт роль участнику.
func (p *Platform) IssueRole(ctx context.Context, guildID, userID, roleID string) error {
	err := p.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
	return mapRESTError(err)
}

// RevokeRole снимает роль с участника.
func (p *Platform) RevokeRole(ctx context.Context, guildID, userID, roleID string) error {
	err := p.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
	return mapRESTError(err)
}

// ResolveMessageAuthor находит автора сообщения: сначала в кэше состояния,
// потом через REST. Удалённое сообщение - "" без ошибки.
func (p *Platform) ResolveMessageAuthor(ctx context.Context, guildID, channelID, messageID string) (string, error) {
	if m, err := p.session.State.Message(channelID, messageID); err == nil && m.Author != nil {
		return m.Author.ID, nil
	}

	m, err := p.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		err = mapRESTError(err)
		if errors.Is(err, common.ErrMessageGone) {
			return "", nil
		}
		return "", fmt.Errorf("ошибка получения сообщения %s: %w", messageID, err)
	}
	if m.Author == nil {
		return "", nil
	}
	return m.Author.ID, nil
}

// ListMembers отдаёт страницу участников гильдии.
func (p *Platform) ListMembers(ctx context.Context, guildID, after string, limit int) ([]*members.Member, error) {
	list, err := p.session.GuildMembers(guildID, after, limit, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapRESTError(err)
	}
	return convertMembers(guildID, list), nil
}

// SendMessage отправляет текст в канал. Упоминания не пингуют.
func (p *Platform) SendMessage(channelID, text string) error {
	_, err := p.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         text,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	})
	return mapRESTError(err)
}

// IsAdmin проверяет, может ли пользователь управлять правилами в канале.
func (p *Platform) IsAdmin(userID, channelID string) (bool, error) {
	perms, err := p.session.UserChannelPermissions(userID, channelID)
	if err != nil {
		return false, mapRESTError(err)
	}
	return hasAdminPermissions(perms), nil
}

// rememberUser запоминает, бот ли пользователь (флаг у аккаунта не меняется).
func (p *Platform) rememberUser(u *discordgo.User) {
	if u != nil {
		p.bots.remember(u.ID, u.Bot)
	}
}

// isBotUser определяет, бот ли пользователь: запомненный флаг, кэш состояния,
// затем REST. Если Discord не ответил, пользователь считается не ботом.
func (p *Platform) isBotUser(ctx context.Context, guildID, userID string) bool {
	isBot, err := p.bots.resolve(userID,
		func() (*discordgo.User, bool) {
			m, err := p.session.State.Member(guildID, userID)
			if err != nil || m.User == nil {
				return nil, false
			}
			return m.User, true
		},
		func() (*discordgo.User, error) {
			return p.session.User(userID, discordgo.WithContext(ctx))
		},
	)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось узнать, бот ли пользователь")
		return false
	}
	return isBot
}

// botFlags - флаг Bot по userID, уже известный боту.
type botFlags struct {
	known sync.Map // userID → bool
}

func (f *botFlags) remember(userID string, isBot bool) {
	f.known.Store(userID, isBot)
}

func (f *botFlags) resolve(userID string, cached func() (*discordgo.User, bool), fetch func() (*discordgo.User, error)) (bool, error) {
	if v, ok := f.known.Load(userID); ok {
		return v.(bool), nil
	}
	if u, ok := cached(); ok {
		f.remember(userID, u.Bot)
		return u.Bot, nil
	}
	u, err := fetch()
	if err != nil {
		return false, mapRESTError(err)
	}
	f.remember(userID, u.Bot)
	return u.Bot, nil
}

func hasAdminPermissions(perms int64) bool {
	return perms&adminPermissions != 0
}

func convertMembers(guildID string, list []*discordgo.Member) []*members.Member {
	out := make([]*members.Member, 0, len(list))
	for _, m := range list {
		if m == nil || m.User == nil {
			continue
		}
		out = append(out, &members.Member{
			GuildID:  guildID,
			UserID:   m.User.ID,
			JoinedAt: m.JoinedAt,
			IsBot:    m.User.Bot,
		})
	}
	return out
}

// mapRESTError переводит коды ошибок Discord в ошибки платформы из common.
func mapRESTError(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return err
	}
	switch restErr.Message.Code {
	case discordgo.ErrCodeMissingPermissions:
		return fmt.Errorf("%w: %v", common.ErrMissingPermission, err)
	case discordgo.ErrCodeUnknownRole:
		return fmt.Errorf("%w: %v", common.ErrRoleGone, err)
	case discordgo.ErrCodeUnknownMember:
		return fmt.Errorf("%w: %v", common.ErrMemberGone, err)
	case discordgo.ErrCodeUnknownMessage:
		return fmt.Errorf("%w: %v", common.ErrMessageGone, err)
	default:
		return err
	}
}
