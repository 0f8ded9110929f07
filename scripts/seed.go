package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/adapters/database"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/adapters/memory"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/application/services"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/repositories"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/clients/postgres"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/observability"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/pkg/config"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/pkg/secrets"
)

type seedEntry struct {
	patientID string
	tier      entities.PriorityTier
	specialty string
	waited    time.Duration
	notes     string
}

// demoQueue is a morning at a small clinic: a mix of tiers and specialties
// checked in over the last hour
var demoQueue = []seedEntry{
	{"patient-ana", entities.PriorityTierNormal, "Clínica Geral", 58 * time.Minute, ""},
	{"patient-bruno", entities.PriorityTierLow, "Dermatologia", 52 * time.Minute, "prescription renewal"},
	{"patient-carla", entities.PriorityTierUrgent, "Cardiologia", 40 * time.Minute, "chest pain, stable"},
	{"patient-diego", entities.PriorityTierSemiUrgent, "Pediatria", 33 * time.Minute, ""},
	{"patient-elisa", entities.PriorityTierNormal, "Pediatria", 25 * time.Minute, ""},
	{"patient-fabio", entities.PriorityTierEmergency, "", 12 * time.Minute, "arrived by ambulance"},
	{"patient-gabi", entities.PriorityTierNormal, "Clínica Geral", 5 * time.Minute, ""},
}

func main() {
	if _, err := secrets.ApplyVaultSecrets(context.Background(), secrets.LoadVaultConfigFromEnv("")); err != nil {
		log.Fatal().Err(err).Msg("Failed to load secrets from Vault")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	observability.InitLogger("queue-seed", cfg.App.Env)

	ctx := context.Background()

	var repo repositories.QueueRepository
	if cfg.Queue.Store == "postgres" {
		pgClient, err := postgres.NewClient(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to DB")
		}
		defer pgClient.Close()

		if os.Getenv("RESET_DB") == "true" {
			log.Info().Msg("RESET_DB=true detected, truncating queue_entries before seeding")
			if _, err := pgClient.DB().ExecContext(ctx, `TRUNCATE TABLE queue_entries`); err != nil {
				log.Fatal().Err(err).Msg("Failed to truncate queue_entries")
			}
		}
		repo = database.NewQueueEntryAdapter(pgClient)
	} else {
		log.Warn().Msg("QUEUE_STORE is not postgres, seeding an in-memory queue for a dry run")
		repo = memory.NewQueueStore()
	}

	queueService := services.NewQueueService(repo, nil, nil, services.QueueServiceConfig{
		DefaultServiceMinutes: cfg.Queue.DefaultServiceMinutes,
		StatsTTLSeconds:       cfg.Queue.StatsTTLSeconds,
		StoreTimeout:          cfg.Queue.StoreTimeout,
	})

	facilityID := os.Getenv("SEED_FACILITY_ID")
	if facilityID == "" {
		facilityID = "facility-demo"
	}

	now := time.Now()
	for _, seed := range demoQueue {
		entry, err := queueService.AddEntry(ctx, &entities.QueueEntry{
			FacilityID:   facilityID,
			PatientID:    seed.patientID,
			PriorityTier: seed.tier,
			Specialty:    seed.specialty,
			Notes:        seed.notes,
			CheckInTime:  now.Add(-seed.waited),
		})
		if err != nil {
			log.Fatal().Err(err).Str("patient_id", seed.patientID).Msg("Failed to seed queue entry")
		}
		log.Info().
			Str("entry_id", entry.ID).
			Str("patient_id", entry.PatientID).
			Str("priority_tier", string(entry.PriorityTier)).
			Msg("Seeded queue entry")
	}

	// Call one patient so the demo has an in-progress consultation
	if called, err := queueService.CallNext(ctx, facilityID, ""); err != nil {
		log.Fatal().Err(err).Msg("Failed to call next patient")
	} else if called != nil {
		log.Info().Str("patient_id", called.PatientID).Msg("Called next patient")
	}

	waiting, err := queueService.ListWaiting(ctx, facilityID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list seeded queue")
	}
	for _, entry := range waiting {
		log.Info().
			Int("position", entry.Position).
			Int("estimated_wait_minutes", entry.EstimatedWaitMinutes).
			Str("patient_id", entry.PatientID).
			Str("priority_tier", string(entry.PriorityTier)).
			Str("specialty", entry.Specialty).
			Msg("Queue")
	}

	stats, err := queueService.GetStats(ctx, facilityID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to compute queue stats")
	}
	log.Info().
		Int("total_waiting", stats.TotalWaiting).
		Float64("average_wait_minutes", stats.AverageWaitMinutes).
		Msg("Seeding completed")
}
