// cmd/server/main.go
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sendhawk/bulkmail-backend/internal/config"
	"github.com/sendhawk/bulkmail-backend/internal/controller"
	"github.com/sendhawk/bulkmail-backend/internal/db"
	"github.com/sendhawk/bulkmail-backend/internal/handler"
	"github.com/sendhawk/bulkmail-backend/internal/logging"
	"github.com/sendhawk/bulkmail-backend/internal/queue"
	"github.com/sendhawk/bulkmail-backend/internal/repository"
	"github.com/sendhawk/bulkmail-backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.LogLevel).With().Str("component", "server").Logger()

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

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
	}
	suppressionController := &controller.SuppressionController{
		Repo: suppressionRepo,
	}
	campaignHandler := &handler.CampaignHandler{
		Service: campaignService,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Campaign routes
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignHandler.GetCampaignHandler)
	r.Put("/campaigns/{id}", campaignController.UpdateCampaign)
	r.Post("/campaigns/{id}/send", campaignController.SendCampaign)
	r.Post("/campaigns/{id}/schedule", campaignController.ScheduleCampaign)
	r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)
	r.Post("/campaigns/{id}/resume", campaignController.ResumeCampaign)
	r.Post("/campaigns/{id}/personalized-preview", campaignController.PersonalizedPreview)
	r.Get("/campaigns/{id}/progress", campaignHandler.GetProgressHandler)

	// Suppression routes
	r.Post("/suppressions", suppressionController.AddSuppression)
	r.Delete("/suppressions/{email}", suppressionController.RemoveSuppression)
	r.Get("/suppressions", suppressionController.ListSuppressions)

	log.Info().Str("addr", cfg.HTTPAddr).Msg("server running")
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
