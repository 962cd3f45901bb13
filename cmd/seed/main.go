package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/doctor-appointment-booking/internal/availability"
	"github.com/hackgods/doctor-appointment-booking/internal/config"
	"github.com/hackgods/doctor-appointment-booking/internal/db"
	"github.com/hackgods/doctor-appointment-booking/internal/logging"
)

const (
	hospitalCount = 10
	doctorCount   = 100
	patientCount  = 9000
)

var specializations = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.Init("seed", cfg.Env, cfg.LogLevel)
	logger.Info().Msg("seed starting")

	ctx := logger.WithContext(context.Background())

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if _, err := db.NewMigrator(pool).Up(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
	}

	gofakeit.Seed(time.Now().UnixNano())

	hospitals, err := seedHospitals(ctx, pool, hospitalCount)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed hospitals")
	}
	if err := seedDoctors(ctx, pool, hospitals, doctorCount); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(ctx, pool, patientCount); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

// defaultSchedule is Monday to Friday 09:00-17:00 with a lunch break.
func defaultSchedule() availability.WeeklySchedule {
	lunch := []availability.Break{{
		Start: availability.MustClock("13:00"),
		End:   availability.MustClock("14:00"),
	}}

	schedule := make(availability.WeeklySchedule, 0, 5)
	for d := time.Monday; d <= time.Friday; d++ {
		schedule = append(schedule, availability.DayEntry{
			Day:       availability.Weekday(d),
			StartTime: availability.MustClock("09:00"),
			EndTime:   availability.MustClock("17:00"),
			Breaks:    lunch,
		})
	}
	return schedule
}

func seedHospitals(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	zerolog.Ctx(ctx).Info().Int("count", count).Msg("seeding hospitals")

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		addr := gofakeit.Address()
		_, err := pool.Exec(ctx, `
			INSERT INTO hospitals (id, name, address, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, gofakeit.Company()+" Hospital", addr.Address)
		if err != nil {
			return nil, fmt.Errorf("insert hospital: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, hospitals []uuid.UUID, count int) error {
	zerolog.Ctx(ctx).Info().Int("count", count).Msg("seeding doctors")

	schedule, err := json.Marshal(defaultSchedule())
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		hospital := hospitals[gofakeit.Number(0, len(hospitals)-1)]
		spec := specializations[gofakeit.Number(0, len(specializations)-1)]
		rate := gofakeit.Number(50, 300)

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, user_id, hospital_id, name, specialization, hourly_rate, time_zone, weekly_schedule, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 'UTC', $7, now(), now())
		`, uuid.New(), uuid.New(), hospital, "Dr. "+gofakeit.Name(), spec, rate, schedule)
		if err != nil {
			return fmt.Errorf("insert doctor: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	logger := zerolog.Ctx(ctx)
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, user_id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, uuid.New(), uuid.New(), gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("insert patient: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("seeded", end).Int("total", count).Msg("patients batch committed")
	}
	return nil
}
