package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/booking-ledger/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSlots(context.Background(), pool, doctorIDs, 20); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, name, role, credits, created_at, updated_at)
			VALUES ($1, $2, 'doctor', 0, now(), now())
		`, id, "Dr. "+gofakeit.Name())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

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
			id := uuid.New()
			grant := int64(gofakeit.Number(50, 500))

			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, role, credits, created_at, updated_at)
				VALUES ($1, $2, 'patient', $3, now(), now())
			`, id, gofakeit.Name(), grant)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			// Ledger row for the starting grant so the projection always
			// reconciles against the entries.
			ref := "seed-" + gofakeit.UUID()
			_, err = tx.Exec(ctx, `
				INSERT INTO credit_ledger (user_id, amount, kind, payment_ref, created_at)
				VALUES ($1, $2, 'purchase', $3, now())
			`, id, grant, ref)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

func seedSlots(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID, perDoctor int) error {
	log.Printf("seeding %d slots per doctor", perDoctor)

	for _, doctorID := range doctorIDs {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		// Back-to-back half-hour slots starting tomorrow morning.
		start := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
		for i := 0; i < perDoctor; i++ {
			slotStart := start.Add(time.Duration(i) * 30 * time.Minute)
			_, err := tx.Exec(ctx, `
				INSERT INTO slots (id, doctor_id, start_time, end_time, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 'available', now(), now())
			`, uuid.New(), doctorID, slotStart, slotStart.Add(30*time.Minute))
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	log.Println("slots seeded")
	return nil
}
