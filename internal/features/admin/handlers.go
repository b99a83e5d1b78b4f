// Package admin - handlers.go обрабатывает команду !autorole.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/discord-autorole/internal/common"
	"serotonyl.ru/discord-autorole/internal/features/rules"
)

// Sender отправляет ответ в канал.
type Sender interface {
	SendMessage(channelID, text string) error
}

// Handler обрабатывает команды администратора.
type Handler struct {
	service *Service
	sender  Sender
}

// NewHandler создаёт обработчик админ-команд.
func NewHandler(service *Service, sender Sender) *Handler {
	return &Handler{service: service, sender: sender}
}

const usage = "Команды:\n" +
	"`!autorole create <имя> <@роль> <триггер> [аргументы] [длительность]`\n" +
	"  триггеры: `any`, `specific <id сообщения> <эмодзи>`, `threshold <эмодзи> <кол-во>`, " +
	"`reputation <мин>`, `antiquity <стаж>`\n" +
	"`!autorole list`\n" +
	"`!autorole disable|enable <имя>`\n" +
	"`!autorole delete|purge <имя>` → `!autorole confirm <код>`"

// Handle выполняет одну команду.
func (h *Handler) Handle(ctx context.Context, cmd Command) {
	if !cmd.IsAdmin {
		h.reply(cmd, "❌ "+common.ErrNotAdmin.Error())
		return
	}
	if len(cmd.Args) == 0 {
		h.reply(cmd, usage)
		return
	}

	sub := strings.ToLower(cmd.Args[0])
	args := cmd.Args[1:]

	switch sub {
	case "create":
		h.handleCreate(ctx, cmd, args)
	case "list":
		h.handleList(ctx, cmd)
	case "disable", "enable":
		h.handleToggle(ctx, cmd, sub, args)
	case "delete", "purge":
		h.handleRequest(ctx, cmd, sub, args)
	case "confirm":
		h.handleConfirm(ctx, cmd, args)
	default:
		h.reply(cmd, usage)
	}
}

func (h *Handler) handleCreate(ctx context.Context, cmd Command, args []string) {
	rule, err := h.service.Create(ctx, cmd.GuildID, cmd.UserID, args)
	if err != nil {
		h.replyError(cmd, "create", err)
		return
	}
	kind := "постоянная"
	if d, ok := rule.Duration(); ok {
		kind = "live, " + common.FormatDuration(d)
	}
	h.reply(cmd, fmt.Sprintf("✅ Правило `%s` создано: %s → <@&%s> (%s)",
		rule.Name, rules.Describe(rule.Trigger), rule.RoleID, kind))
}

func (h *Handler) handleList(ctx context.Context, cmd Command) {
	list, err := h.service.List(ctx, cmd.GuildID)
	if err != nil {
		h.replyError(cmd, "list", err)
		return
	}
	if len(list) == 0 {
		h.reply(cmd, "📭 Правил пока нет")
		return
	}

	var sb strings.Builder
	sb.WriteString("📋 Правила:\n")
	for _, v := range list {
		status := "🟢"
		if !v.Rule.Enabled {
			status = "⚪"
		}
		grants := "?"
		if v.Grants >= 0 {
			grants = fmt.Sprintf("%d", v.Grants)
		}
		duration := "навсегда"
		if d, ok := v.Rule.Duration(); ok {
			duration = common.FormatDuration(d)
		}
		fmt.Fprintf(&sb, "%s `%s` → <@&%s>: %s, %s, выдано: %s\n",
			status, v.Rule.Name, v.Rule.RoleID, rules.Describe(v.Rule.Trigger), duration, grants)
	}
	h.reply(cmd, sb.String())
}

func (h *Handler) handleToggle(ctx context.Context, cmd Command, sub string, args []string) {
	if len(args) != 1 {
		h.reply(cmd, fmt.Sprintf("Использование: `!autorole %s <имя>`", sub))
		return
	}
	var err error
	if sub == "disable" {
		err = h.service.Disable(ctx, cmd.GuildID, args[0])
	} else {
		err = h.service.Enable(ctx, cmd.GuildID, args[0])
	}
	if err != nil {
		h.replyError(cmd, sub, err)
		return
	}
	if sub == "disable" {
		h.reply(cmd, fmt.Sprintf("⏸ Правило `%s` выключено. Выданные роли остаются.", args[0]))
	} else {
		h.reply(cmd, fmt.Sprintf("▶️ Правило `%s` включено.", args[0]))
	}
}

func (h *Handler) handleRequest(ctx context.Context, cmd Command, sub string, args []string) {
	if len(args) != 1 {
		h.reply(cmd, fmt.Sprintf("Использование: `!autorole %s <имя>`", sub))
		return
	}
	var (
		sess *Session
		err  error
		what string
	)
	if sub == "delete" {
		sess, err = h.service.RequestDelete(ctx, cmd.GuildID, cmd.UserID, args[0])
		what = "удалить правило"
	} else {
		sess, err = h.service.RequestPurge(ctx, cmd.GuildID, cmd.UserID, args[0])
		what = "снять ВСЕ роли, выданные правилом"
	}
	if err != nil {
		h.replyError(cmd, sub, err)
		return
	}
	h.reply(cmd, fmt.Sprintf("⚠️ Точно %s `%s`? Подтвердите: `!autorole confirm %s` (до %s)",
		what, sess.RuleName, sess.Code, common.FormatDateTime(sess.ExpiresAt)))
}

func (h *Handler) handleConfirm(ctx context.Context, cmd Command, args []string) {
	if len(args) != 1 {
		h.reply(cmd, "Использование: `!autorole confirm <код>`")
		return
	}
	out, err := h.service.Confirm(ctx, cmd.GuildID, cmd.UserID, args[0])
	if err != nil {
		h.replyError(cmd, "confirm", err)
		return
	}
	switch out.Session.Action {
	case ActionDelete:
		h.reply(cmd, fmt.Sprintf("🗑 Правило `%s` удалено. Выданные роли остались, снять их можно через purge.", out.Session.RuleName))
	case ActionPurge:
		h.reply(cmd, fmt.Sprintf("🧹 Правило `%s`: удалено записей %d, снято ролей %d.",
			out.Session.RuleName, out.Purge.RemovedGrants, out.Purge.RoleRevocations))
	}
}

// replyError показывает администратору ошибки валидации и «не найдено»,
// остальное логирует и отвечает общей фразой.
func (h *Handler) replyError(cmd Command, op string, err error) {
	switch {
	case errors.Is(err, common.ErrInvalidRuleName),
		errors.Is(err, common.ErrInvalidTrigger),
		errors.Is(err, common.ErrInvalidEmoji),
		errors.Is(err, common.ErrInvalidDuration),
		errors.Is(err, common.ErrInvalidSnowflake),
		errors.Is(err, common.ErrRuleExists),
		errors.Is(err, common.ErrRuleNotFound),
		errors.Is(err, common.ErrConfirmationNotFound):
		h.reply(cmd, "❌ "+err.Error())
	default:
		log.WithError(err).WithFields(log.Fields{
			"guild_id": cmd.GuildID,
			"user_id":  cmd.UserID,
			"op":       op,
		}).Error("Ошибка админ-команды")
		h.reply(cmd, "❌ Внутренняя ошибка, попробуйте позже")
	}
}

func (h *Handler) reply(cmd Command, text string) {
	if err := h.sender.SendMessage(cmd.ChannelID, text); err != nil {
		log.WithError(err).WithField("channel_id", cmd.ChannelID).Error("Ошибка отправки сообщения")
	}
}
