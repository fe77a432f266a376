// cmd/worker/main.go
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/sendhawk/bulkmail-backend/internal/config"
	"github.com/sendhawk/bulkmail-backend/internal/db"
	"github.com/sendhawk/bulkmail-backend/internal/logging"
	"github.com/sendhawk/bulkmail-backend/internal/queue"
	"github.com/sendhawk/bulkmail-backend/internal/ratelimit"
	"github.com/sendhawk/bulkmail-backend/internal/repository"
	"github.com/sendhawk/bulkmail-backend/internal/sender"
	"github.com/sendhawk/bulkmail-backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	workerID := service.NewWorkerID()
	log := logging.New(cfg.LogLevel).With().
		Str("component", "worker").
		Str("worker_id", workerID).
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer conn.Close()
	if err := db.Migrate(conn); err != nil {
		log.Fatal().Err(err).Msg("migrate schema")
	}

	sendQueue, err := queue.Dial(cfg.AMQP, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to broker")
	}
	defer sendQueue.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	subscriberRepo := &repository.SubscriberRepository{DB: conn}
	suppressionRepo := &repository.SuppressionRepository{DB: conn}
	jobRepo := &repository.JobRepository{DB: conn}

	campaignService := &service.CampaignService{
		CampaignRepo:    campaignRepo,
		SubscriberRepo:  subscriberRepo,
		SuppressionRepo: suppressionRepo,
		JobRepo:         jobRepo,
		Publisher:       sendQueue,
		MaxAttempts:     cfg.Worker.MaxAttempts,
		Log:             log,
	}

	var mailSender sender.Sender
	if cfg.SMTP.DryRun {
		log.Info().Msg("dry-run mode: SMTP dispatch disabled")
		mailSender = &sender.DryRunSender{Log: log}
	} else {
		mailSender = sender.NewSMTP(cfg.SMTP)
	}

	var pacer *rate.Limiter
	if cfg.Rate.LocalPerSec > 0 {
		pacer = rate.NewLimiter(rate.Limit(cfg.Rate.LocalPerSec), cfg.Rate.LocalPerSec)
	}

	worker := &service.SendWorker{
		ID:           workerID,
		Jobs:         jobRepo,
		Campaigns:    campaignRepo,
		Suppressions: suppressionRepo,
		Limiter: &ratelimit.Limiter{
			DB:        conn,
			PerMinute: cfg.Rate.PerMinute,
			PerHour:   cfg.Rate.PerHour,
		},
		Sender: mailSender,
		Pacer:  pacer,
		Cfg:    cfg.Worker,
		Log:    log,
	}

	// Periodic sweeps: stale-lock recovery, scheduled-campaign dispatch and
	// campaign completion. All idempotent, so overlap with other workers is
	// harmless.
	sweeps := cron.New()
	sweeps.AddFunc(fmt.Sprintf("@every %s", cfg.Worker.RecoveryInterval), func() {
		if _, err := worker.RecoverStaleLocks(time.Now()); err != nil {
			log.Error().Err(err).Msg("stale lock sweep failed")
		}
	})
	sweeps.AddFunc("@every 1m", func() {
		if _, err := campaignService.DispatchDueCampaigns(time.Now()); err != nil {
			log.Error().Err(err).Msg("scheduled campaign dispatch failed")
		}
	})
	sweeps.AddFunc("@every 30s", func() {
		if _, err := worker.FinishDrainedCampaigns(); err != nil {
			log.Error().Err(err).Msg("campaign completion sweep failed")
		}
	})
	sweeps.Start()
	defer sweeps.Stop()

	// Campaign send requests from the API become queued jobs here.
	go func() {
		err := sendQueue.Consume(ctx, func(req queue.SendRequest) error {
			_, err := campaignService.EnqueueCampaignJobs(req.CampaignID)
			return err
		})
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("send request consumer stopped")
			stop()
		}
	}()

	log.Info().
		Dur("tick", cfg.Worker.Tick).
		Int("batch_size", cfg.Worker.BatchSize).
		Msg("worker running")

	ticker := time.NewTicker(cfg.Worker.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker shutting down")
			return
		case <-ticker.C:
			if _, err := worker.RunTick(ctx, time.Now()); err != nil && ctx.Err() == nil {
				// Infrastructure trouble; next tick retries.
				log.Error().Err(err).Msg("worker tick failed")
			}
		}
	}
}
