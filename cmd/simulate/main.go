// simulate drives concurrent traffic against a running api-server and
// reports contention outcomes. Its main job is demonstrating that a
// burst of bookers aimed at one slot produces exactly one appointment.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/booking-ledger/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BurstSize    int
	PriceCredits int64
	PatientLimit int
	SlotLimit    int
	PostgresDSN  string
}

type DataPool struct {
	Patients []uuid.UUID
	Slots    []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment() (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rand.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Rejected  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status == http.StatusPaymentRequired || status == http.StatusUnprocessableEntity:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, p50, p95
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	reserve OperationMetrics
	cancel  OperationMetrics
	reads   OperationMetrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded: %d patients, %d available slots", len(dataPool.Patients), len(dataPool.Slots))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.RunBurst()
	sim.RunMixed()
	sim.PrintReport()
}

func loadSimConfig() SimConfig {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BurstSize:    getInt("SIM_BURST_SIZE", 25),
		PriceCredits: int64(getInt("SIM_PRICE_CREDITS", 20)),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 2000),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 500),
		PostgresDSN:  dsn,
	}
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id FROM users WHERE role = 'patient' LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Patients = append(dp.Patients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slotRows, err := pool.Query(ctx, `
		SELECT id FROM slots WHERE status = 'available' AND start_time > now() + interval '1 hour' LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, err
	}
	defer slotRows.Close()
	for slotRows.Next() {
		var id uuid.UUID
		if err := slotRows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Slots = append(dp.Slots, id)
	}
	return dp, slotRows.Err()
}

// RunBurst aims every worker at a single slot simultaneously. Exactly one
// reservation must succeed; the rest must see a 409.
func (s *Simulator) RunBurst() {
	if len(s.pool.Slots) == 0 || len(s.pool.Patients) < s.config.BurstSize {
		log.Println("burst skipped: not enough seed data")
		return
	}

	slotID := s.pool.Slots[0]
	s.pool.Slots = s.pool.Slots[1:]

	log.Printf("burst: %d concurrent reservations against slot %s", s.config.BurstSize, slotID)

	var wg sync.WaitGroup
	var successes int64
	start := make(chan struct{})

	for i := 0; i < s.config.BurstSize; i++ {
		patientID := s.pool.Patients[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			status, apptID := s.doReserve(patientID, slotID)
			if status == http.StatusCreated {
				atomic.AddInt64(&successes, 1)
				s.pool.AddAppointment(apptID)
			}
		}()
	}

	close(start)
	wg.Wait()

	log.Printf("burst result: %d/%d succeeded (want exactly 1)", successes, s.config.BurstSize)
	if successes != 1 {
		log.Printf("WARNING: double booking or lost slot detected")
	}
}

// RunMixed generates a blend of reservations, cancellations and reads for
// the configured duration.
func (s *Simulator) RunMixed() {
	log.Printf("mixed load: %d workers for %s", s.config.Workers, s.config.Duration)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var slotIdx int64

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				patientID := s.pool.Patients[rand.Intn(len(s.pool.Patients))]
				switch roll := rand.Float64(); {
				case roll < 0.5:
					idx := int(atomic.AddInt64(&slotIdx, 1))
					if idx >= len(s.pool.Slots) {
						continue
					}
					status, apptID := s.doReserve(patientID, s.pool.Slots[idx])
					if status == http.StatusCreated {
						s.pool.AddAppointment(apptID)
					}
				case roll < 0.7:
					if apptID, ok := s.pool.RandomAppointment(); ok {
						s.doCancel(apptID, patientID)
					}
				default:
					s.doBalance(patientID)
				}
			}
		}()
	}

	wg.Wait()
}

func (s *Simulator) doReserve(patientID, slotID uuid.UUID) (int, uuid.UUID) {
	body, _ := json.Marshal(map[string]any{
		"slot_id":       slotID.String(),
		"patient_id":    patientID.String(),
		"price_credits": s.config.PriceCredits,
	})

	start := time.Now()
	resp, err := s.client.Post(s.config.APIBaseURL+"/appointments", "application/json", bytes.NewReader(body))
	if err != nil {
		s.reserve.Record(time.Since(start), 0)
		return 0, uuid.Nil
	}
	defer resp.Body.Close()
	s.reserve.Record(time.Since(start), resp.StatusCode)

	if resp.StatusCode != http.StatusCreated {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, uuid.Nil
	}

	var out struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return resp.StatusCode, uuid.Nil
	}
	return resp.StatusCode, out.ID
}

func (s *Simulator) doCancel(apptID, actorID uuid.UUID) {
	body, _ := json.Marshal(map[string]any{
		"actor_id": actorID.String(),
		"reason":   "simulated cancellation",
	})

	start := time.Now()
	resp, err := s.client.Post(s.config.APIBaseURL+"/appointments/"+apptID.String()+"/cancel", "application/json", bytes.NewReader(body))
	if err != nil {
		s.cancel.Record(time.Since(start), 0)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	s.cancel.Record(time.Since(start), resp.StatusCode)
}

func (s *Simulator) doBalance(userID uuid.UUID) {
	start := time.Now()
	resp, err := s.client.Get(s.config.APIBaseURL + "/users/" + userID.String() + "/balance")
	if err != nil {
		s.reads.Record(time.Since(start), 0)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	s.reads.Record(time.Since(start), resp.StatusCode)
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println("=== simulation report ===")
	printOp("reserve", &s.reserve)
	printOp("cancel", &s.cancel)
	printOp("balance", &s.reads)
}

func printOp(name string, om *OperationMetrics) {
	avg, p50, p95 := om.Stats()
	fmt.Printf("%-8s total=%d success=%d conflict=%d rejected=%d error=%d avg=%s p50=%s p95=%s\n",
		name, om.Total, om.Success, om.Conflict, om.Rejected, om.Error, avg, p50, p95)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
