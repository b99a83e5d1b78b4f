// Package bot содержит главный модуль бота - инициализацию, запуск и остановку.
// bot.go подключает обработчики событий шлюза Discord к фичам.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/discord-autorole/internal/bot/middleware"
	"serotonyl.ru/discord-autorole/internal/config"
	"serotonyl.ru/discord-autorole/internal/features/admin"
	"serotonyl.ru/discord-autorole/internal/features/autorole"
	"serotonyl.ru/discord-autorole/internal/features/reputation"
)

// Интенты: гильдии и роли, сообщения (удаление, ответы «спасибо», команды),
// реакции, участники (стаж) и текст сообщений.
const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsMessageContent

// stateMessageLimit - сколько последних сообщений на канал держит кэш состояния.
// Из него берётся автор сообщения без запроса к API.
const stateMessageLimit = 200

// Bot - главная структура бота, объединяющая все компоненты.
type Bot struct {
	session  *discordgo.Session
	platform *Platform
	cfg      *config.Config

	rateLimiter *middleware.RateLimiter

	engine            *autorole.Engine
	cleanup           *autorole.Cleanup
	adminHandler      *admin.Handler
	reputationHandler *reputation.Handler

	parser *CommandParser

	// ограничитель параллелизма обработки событий
	inflight chan struct{}

	readyOnce sync.Once
	ready     chan struct{}
}

// NewSession создаёт сессию Discord с нужными интентами.
func NewSession(cfg *config.Config) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания сессии Discord: %w", err)
	}
	s.Identify.Intents = intents
	s.State.MaxMessageCount = stateMessageLimit
	return s, nil
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	session *discordgo.Session,
	platform *Platform,
	cfg *config.Config,
	engine *autorole.Engine,
	cleanup *autorole.Cleanup,
	adminHandler *admin.Handler,
	reputationHandler *reputation.Handler,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		session:           session,
		platform:          platform,
		cfg:               cfg,
		rateLimiter:       middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		engine:            engine,
		cleanup:           cleanup,
		adminHandler:      adminHandler,
		reputationHandler: reputationHandler,
		parser:            NewCommandParser(cfg.BotCommandPrefix),
		inflight:          make(chan struct{}, maxInFlight),
		ready:             make(chan struct{}),
	}
}

// Ready закрывается, когда правила всех гильдий из первого Ready загружены.
func (b *Bot) Ready() <-chan struct{} {
	return b.ready
}

// Start подключается к шлюзу и работает до отмены ctx.
func (b *Bot) Start(ctx context.Context) error {
	b.registerHandlers(ctx)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("ошибка подключения к шлюзу Discord: %w", err)
	}

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"prefix":       b.cfg.BotCommandPrefix,
	}).Info("Бот подключён к Discord и ожидает события...")

	<-ctx.Done()
	log.Info("Бот останавливается (ctx done)...")
	b.rateLimiter.Close()
	return b.session.Close()
}

func (b *Bot) registerHandlers(ctx context.Context) {
	b.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.Ready) {
		b.dispatch(ctx, "READY", func(ctx context.Context) { b.handleReady(ctx, ev) })
	})
	b.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.GuildCreate) {
		b.dispatch(ctx, "GUILD_CREATE", func(ctx context.Context) { b.engine.HandleGuildAvailable(ctx, ev.ID) })
	})
	b.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.GuildDelete) {
		// Unavailable - это сбой Discord, а не удаление бота из гильдии
		if ev.Unavailable {
			return
		}
		b.dispatch(ctx, "GUILD_DELETE", func(context.Context) { b.engine.HandleGuildRemoved(ev.ID) })
	})
	b.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.MessageReactionAdd) {
		b.dispatch(ctx, "MESSAGE_REACTION_ADD", func(ctx context.Context) { b.handleReactionAdd(ctx, ev) })
	})
	b.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.MessageReactionRemove) {
		b.dispatch(ctx, "MESSAGE_REACTION_REMOVE", func(ctx context.Context) { b.handleReactionRemove(ctx, ev) })
	})
	b.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.MessageReactionRemoveAll) {
		b.dispatch(ctx, "MESSAGE_REACTION_REMOVE_ALL", func(ctx context.Context) {
			b.cleanup.HandleReactionsCleared(ctx, reactionsCleared(ev))
		})
	})
	b.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.MessageDelete) {
		b.dispatch(ctx, "MESSAGE_DELETE", func(ctx context.Context) {
			b.cleanup.HandleMessageDeleted(ctx, messageDeleted(ev))
		})
	})
	b.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.MessageDeleteBulk) {
		b.dispatch(ctx, "MESSAGE_DELETE_BULK", func(ctx context.Context) {
			b.cleanup.HandleMessagesBulkDeleted(ctx, messagesBulkDeleted(ev))
		})
	})
	b.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.GuildRoleDelete) {
		b.dispatch(ctx, "GUILD_ROLE_DELETE", func(ctx context.Context) {
			b.cleanup.HandleRoleDeleted(ctx, roleDeleted(ev))
		})
	})
	b.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.MessageCreate) {
		b.dispatch(ctx, "MESSAGE_CREATE", func(ctx context.Context) { b.handleMessage(ctx, ev.Message) })
	})
}

// dispatch выполняет обработчик с лимитом параллелизма и защитой от паники.
func (b *Bot) dispatch(ctx context.Context, event string, fn func(context.Context)) {
	select {
	case b.inflight <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-b.inflight }()
	defer middleware.RecoverFromPanic(event)

	fn(ctx)
}

func (b *Bot) handleReady(ctx context.Context, ev *discordgo.Ready) {
	ids := readyGuildIDs(ev)
	log.WithFields(log.Fields{
		"user":   ev.User.Username,
		"guilds": len(ids),
	}).Info("Авторизован в Discord")

	b.engine.HandleReady(ctx, ids)
	b.readyOnce.Do(func() { close(b.ready) })
}

func (b *Bot) handleReactionAdd(ctx context.Context, ev *discordgo.MessageReactionAdd) {
	if ev.GuildID == "" {
		return
	}
	middleware.LogReaction("add", ev.MessageReaction)

	isBot, ok := memberIsBot(ev.Member)
	if ok {
		b.platform.rememberUser(ev.Member.User)
	} else {
		isBot = b.platform.isBotUser(ctx, ev.GuildID, ev.UserID)
	}
	b.engine.HandleReactionAdded(ctx, reactionAdded(ev, isBot))
}

func (b *Bot) handleReactionRemove(ctx context.Context, ev *discordgo.MessageReactionRemove) {
	if ev.GuildID == "" {
		return
	}
	middleware.LogReaction("remove", ev.MessageReaction)
	b.engine.HandleReactionRemoved(ctx, reactionRemoved(ev, b.platform.isBotUser(ctx, ev.GuildID, ev.UserID)))
}

// handleMessage обрабатывает сообщение гильдии: команды и «спасибо».
func (b *Bot) handleMessage(ctx context.Context, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot || m.GuildID == "" || m.Content == "" {
		return
	}

	middleware.LogMessage(m)

	cmd, args, isCommand := b.parser.ParseCommand(m.Content)
	if isCommand {
		if !b.rateLimiter.Allow(m.GuildID + ":" + m.Author.ID) {
			log.WithField("user_id", m.Author.ID).Debug("rate limited")
			return
		}
		b.routeCommand(ctx, m, cmd, args)
		return
	}

	// Проверяем «спасибо» для репутации
	if !b.cfg.FeatureReputationEnabled || !reputation.IsThankYou(m.Content) {
		return
	}
	to, ok := thanksTarget(m)
	if !ok {
		return
	}
	if !b.rateLimiter.Allow(m.GuildID + ":" + m.Author.ID) {
		return
	}
	b.reputationHandler.HandleThankYou(ctx, m.GuildID, m.ChannelID, m.Author.ID, to)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, m *discordgo.Message, cmd string, args []string) {
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("routing command")

	switch cmd {
	case "autorole":
		isAdmin, err := b.platform.IsAdmin(m.Author.ID, m.ChannelID)
		if err != nil {
			log.WithError(err).WithField("user_id", m.Author.ID).Warn("Не удалось проверить права")
		}
		b.adminHandler.Handle(ctx, admin.Command{
			GuildID:   m.GuildID,
			ChannelID: m.ChannelID,
			UserID:    m.Author.ID,
			IsAdmin:   isAdmin,
			Args:      args,
		})

	case "репутация", "rep":
		if b.cfg.FeatureReputationEnabled {
			b.reputationHandler.HandleScore(ctx, m.GuildID, m.ChannelID, m.Author.ID)
		}
	}
}

// CommandParser парсит команды с префиксом из конфига.
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser(prefixes ...string) *CommandParser {
	return &CommandParser{validPrefixes: prefixes}
}

// ParseCommand разбирает текст на команду и аргументы.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if prefix != "" && strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return command, args, true
}
