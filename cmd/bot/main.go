// Package main - точка входа бота.
// Загружает конфигурацию, инициализирует приложение и запускает.
// Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/discord-autorole/internal/app"
	"serotonyl.ru/discord-autorole/internal/config"
)

func main() {
	// Настраиваем логирование
	setupLogging()

	log.Info("=== Бот запускается ===")

	// Загружаем конфигурацию из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	// Устанавливаем уровень логирования из конфига
	level, err := log.ParseLevel(cfg.AppLogLevel)
	if err == nil {
		log.SetLevel(level)
	}

	// Контекст отменяется по Ctrl+C / docker stop
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализируем приложение (БД, Discord, сервисы, обработчики)
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}
	defer application.Close()

	// Запускаем бота в отдельной горутине
	done := make(chan error, 1)
	go func() { done <- application.Bot.Start(ctx) }()

	// Планировщик стартует после загрузки правил всех гильдий
	select {
	case <-application.Bot.Ready():
		if err := application.Scheduler.Start(ctx); err != nil {
			log.WithError(err).Fatal("Не удалось запустить планировщик")
		}
		defer application.Scheduler.Stop()
		log.Info("=== Бот готов к работе ===")
	case err := <-done:
		if err != nil {
			log.WithError(err).Fatal("Бот остановился до готовности")
		}
		log.Info("=== Бот остановлен ===")
		return
	case <-ctx.Done():
	}

	// Ждём сигнала остановки
	<-ctx.Done()
	log.Info("Получен сигнал остановки, останавливаемся...")

	if err := <-done; err != nil {
		log.WithError(err).Warn("Ошибка закрытия сессии Discord")
	}

	log.Info("=== Бот остановлен ===")
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
