// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: проверка истёкших live-грантов
// и периодический пересчёт правил стажа.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/discord-autorole/internal/common"
	"serotonyl.ru/discord-autorole/internal/config"
	"serotonyl.ru/discord-autorole/internal/features/autorole"
	"serotonyl.ru/discord-autorole/internal/features/grants"
)

// ExpirySweeper снимает истёкшие live-гранты (*grants.Manager в проде).
type ExpirySweeper interface {
	SweepExpired(ctx context.Context, limit int) (grants.SweepResult, error)
}

// AntiquitySweeper пересчитывает правила стажа (*autorole.AntiquitySweeper в проде).
type AntiquitySweeper interface {
	Sweep(ctx context.Context) (autorole.AntiquityResult, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron      *cron.Cron
	expiry    ExpirySweeper
	antiquity AntiquitySweeper

	expiryInterval    time.Duration
	antiquityInterval time.Duration
	timeout           time.Duration
	batchSize         int
}

// NewScheduler создаёт планировщик задач с московским часовым поясом.
// Задачи не накладываются: если прошлый проход ещё идёт, следующий пропускается.
func NewScheduler(expiry ExpirySweeper, antiquity AntiquitySweeper, cfg *config.Config) *Scheduler {
	logger := cron.PrintfLogger(log.StandardLogger())
	c := cron.New(
		cron.WithLocation(common.MoscowLocation()),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	return &Scheduler{
		cron:              c,
		expiry:            expiry,
		antiquity:         antiquity,
		expiryInterval:    cfg.ExpirySweepInterval,
		antiquityInterval: cfg.AntiquitySweepInterval,
		timeout:           cfg.SweepTimeout,
		batchSize:         cfg.ExpiryBatchSize,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(every(s.expiryInterval), func() { s.runExpiry(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(every(s.antiquityInterval), func() { s.runAntiquity(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	log.WithFields(log.Fields{
		"expiry_every":    s.expiryInterval,
		"antiquity_every": s.antiquityInterval,
	}).Info("Планировщик задач запущен (Europe/Moscow)")
	return nil
}

// Stop останавливает планировщик и ждёт текущие задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// runExpiry снимает одну пачку истёкших грантов. Остаток заберёт следующий тик.
func (s *Scheduler) runExpiry(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	res, err := s.expiry.SweepExpired(ctx, s.batchSize)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка проверки истёкших ролей")
		return
	}
	if res.Scanned == 0 {
		return
	}
	entry := log.WithFields(log.Fields{
		"scanned": res.Scanned,
		"revoked": res.Revoked,
		"failed":  res.Failed,
	})
	if res.Scanned >= s.batchSize {
		entry.Warn("[CRON] Пачка истёкших ролей заполнена, остаток на следующем тике")
		return
	}
	entry.Info("[CRON] Истёкшие роли сняты")
}

func (s *Scheduler) runAntiquity(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	log.Debug("[CRON] Пересчёт правил стажа")
	res, err := s.antiquity.Sweep(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка пересчёта стажа")
		return
	}
	log.WithFields(log.Fields{
		"rules":   res.Rules,
		"issued":  res.Issued,
		"revoked": res.Revoked,
		"failed":  res.Failed,
	}).Info("[CRON] Правила стажа пересчитаны")
}
