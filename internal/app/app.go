// Package app инициализирует все компоненты приложения.
// app.go - точка сборки: создаёт БД-пул, репозитории, сервисы, обработчики,
// фильтры и собирает всё в один объект Bot.
package app

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/discord-autorole/internal/bot"
	"serotonyl.ru/discord-autorole/internal/bot/filters"
	"serotonyl.ru/discord-autorole/internal/config"
	"serotonyl.ru/discord-autorole/internal/db/postgres"
	"serotonyl.ru/discord-autorole/internal/features/admin"
	"serotonyl.ru/discord-autorole/internal/features/autorole"
	"serotonyl.ru/discord-autorole/internal/features/grants"
	"serotonyl.ru/discord-autorole/internal/features/members"
	"serotonyl.ru/discord-autorole/internal/features/reputation"
	"serotonyl.ru/discord-autorole/internal/features/rules"
	"serotonyl.ru/discord-autorole/internal/features/tally"
	"serotonyl.ru/discord-autorole/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	Sessions  *admin.Sessions
	DB        *pgxpool.Pool
	Session   *discordgo.Session
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен - компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := postgres.Migrate(ctx, pool, migrations); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Discord ===
	session, err := bot.NewSession(cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	platform := bot.NewPlatform(session)

	// === 3. Репозитории ===
	ruleRepo := rules.NewRepository(pool)
	grantRepo := grants.NewRepository(pool)
	tallyRepo := tally.NewRepository(pool)
	reputationRepo := reputation.NewRepository(pool)

	// === 4. Сервисы ===
	ruleCache := rules.NewCache(ruleRepo)
	ruleService := rules.NewService(ruleRepo, ruleCache)
	grantManager := grants.NewManager(grantRepo, platform)
	tracker := tally.NewTracker(tallyRepo)
	memberService := members.NewService(platform)
	reputationService := reputation.NewService(reputationRepo, cfg.ReputationDailyLimit)
	sessions := admin.NewSessions(cfg.AdminConfirmTTL)
	adminService := admin.NewService(ruleService, grantManager, grantRepo, sessions)

	// === 5. Фильтры ===
	gate := filters.NewFeatureGate(cfg.FeatureAutoroleEnabled, cfg.AutoroleGuildIDs)

	// === 6. Движок авторолей ===
	engine := autorole.NewEngine(ruleCache, grantManager, tracker, platform, gate)
	cleanup := autorole.NewCleanup(ruleCache, ruleService, grantManager, tracker)
	antiquity := autorole.NewAntiquitySweeper(ruleService, memberService, grantManager, gate)
	reputationService.SetListener(engine)

	// === 7. Обработчики ===
	adminHandler := admin.NewHandler(adminService, platform)
	reputationHandler := reputation.NewHandler(reputationService, platform)

	// === 8. Собираем бота ===
	b := bot.New(session, platform, cfg, engine, cleanup, adminHandler, reputationHandler)

	// === 9. Планировщик задач ===
	scheduler := jobs.NewScheduler(grantManager, antiquity, cfg)

	return &App{
		Bot:       b,
		Scheduler: scheduler,
		Sessions:  sessions,
		DB:        pool,
		Session:   session,
	}, nil
}

// Close освобождает ресурсы, которые не закрываются вместе с ботом.
func (a *App) Close() {
	a.Sessions.Close()
	a.DB.Close()
}
