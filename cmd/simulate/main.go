package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-slot-scheduling/internal/config"
	"github.com/hackgods/consultation-slot-scheduling/internal/db"
	"github.com/hackgods/consultation-slot-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string          `envconfig:"API_BASE_URL" default:"http://localhost:8080"`
	Duration        config.Duration `envconfig:"DURATION" default:"30s"`
	Workers         int             `envconfig:"WORKERS" default:"10"`
	BookingRatio    float64         `envconfig:"BOOKING_RATIO" default:"0.5"`
	RescheduleRatio float64         `envconfig:"RESCHEDULE_RATIO" default:"0.1"`
	CancelRatio     float64         `envconfig:"CANCEL_RATIO" default:"0.1"`
	ReadRatio       float64         `envconfig:"READ_RATIO" default:"0.3"`
	ProviderLimit   int             `envconfig:"PROVIDER_LIMIT" default:"50"`
	Patients        int             `envconfig:"PATIENTS" default:"2000"`
}

// DataPool holds the ids the workers draw from.
type DataPool struct {
	Providers []uuid.UUID
	Patients  []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Retryable int64
	Error     int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&om.Error, 1)
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict || status == http.StatusNotFound:
		atomic.AddInt64(&om.Conflict, 1)
	case status == http.StatusServiceUnavailable:
		atomic.AddInt64(&om.Retryable, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pick := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Availability OperationMetrics
	Booking      OperationMetrics
	Reschedule   OperationMetrics
	Cancel       OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  zerolog.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	logger := logging.Init("scheduling-simulate", baseCfg.Env, baseCfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	if baseCfg.Store != config.StorePostgres {
		logger.Fatal().Msg("simulate reads providers and audits occupancy in postgres, set STORE=postgres")
	}

	var cfg SimConfig
	if err := envconfig.Process("SIM", &cfg); err != nil {
		logger.Fatal().Err(err).Msg("simulator config error")
	}
	if cfg.Workers <= 0 || cfg.Duration.Duration <= 0 {
		logger.Fatal().Msg("SIM_WORKERS and SIM_DURATION must be positive")
	}

	total := cfg.BookingRatio + cfg.RescheduleRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.RescheduleRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, baseCfg.PgMaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().
		Int("providers", len(dataPool.Providers)).
		Int("patients", len(dataPool.Patients)).
		Dur("duration", cfg.Duration.Duration).
		Int("workers", cfg.Workers).
		Msg("simulation starting")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	sim.Run()
	sim.PrintReport()

	auditCtx, auditCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer auditCancel()
	overbooked, err := auditCapacity(auditCtx, pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("capacity audit")
	}
	if overbooked > 0 {
		logger.Fatal().Int("time_points", overbooked).Msg("capacity invariant violated")
	}
	logger.Info().Msg("capacity audit passed: no time-point holds more occupants than its limit")
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	rows, err := pool.Query(ctx, `
		SELECT DISTINCT provider_id
		FROM appointment_slots
		WHERE is_active AND slot_date >= current_date
		LIMIT $1
	`, cfg.ProviderLimit)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	defer rows.Close()

	dataPool := &DataPool{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Providers = append(dataPool.Providers, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(dataPool.Providers) == 0 {
		return nil, fmt.Errorf("no providers with upcoming slots, run cmd/seed first")
	}

	// A small patient population makes repeat bookings and list reads realistic.
	for i := 0; i < cfg.Patients; i++ {
		dataPool.Patients = append(dataPool.Patients, uuid.New())
	}
	return dataPool, nil
}

// auditCapacity counts time-points whose live occupants exceed the slot limit.
func auditCapacity(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT o.slot_id, o.time_point
			FROM slot_occupants o
			JOIN appointments a ON a.id = o.appointment_id AND a.status <> 'cancelled'
			JOIN appointment_slots s ON s.id = o.slot_id
			GROUP BY o.slot_id, o.time_point, s.capacity_kind, s.max_occupants
			HAVING count(*) > CASE WHEN s.capacity_kind = 'shared' THEN s.max_occupants ELSE 1 END
		) over_limit
	`).Scan(&n)
	return n, err
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.RescheduleRatio:
			s.doReschedule(ctx, rng)
		case r < s.config.BookingRatio+s.config.RescheduleRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			s.pickTimePoint(ctx, rng, s.randomProvider(rng))
		}
	}
}

func (s *Simulator) randomProvider(rng *rand.Rand) uuid.UUID {
	return s.pool.Providers[rng.Intn(len(s.pool.Providers))]
}

func (s *Simulator) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// pickTimePoint walks the patient flow: dates, then times for one date.
func (s *Simulator) pickTimePoint(ctx context.Context, rng *rand.Rand, provider uuid.UUID) (date, tp string, ok bool) {
	start := time.Now()

	var dates struct {
		Dates []string `json:"dates"`
	}
	status, err := s.do(ctx, http.MethodGet, "/providers/"+provider.String()+"/dates", nil, &dates)
	if err != nil || status != http.StatusOK || len(dates.Dates) == 0 {
		s.metrics.Availability.Record(time.Since(start), status, err)
		return "", "", false
	}
	date = dates.Dates[rng.Intn(len(dates.Dates))]

	var times struct {
		Times []struct {
			Time string `json:"time"`
		} `json:"times"`
	}
	status, err = s.do(ctx, http.MethodGet, "/providers/"+provider.String()+"/dates/"+date+"/times", nil, &times)
	s.metrics.Availability.Record(time.Since(start), status, err)
	if err != nil || status != http.StatusOK || len(times.Times) == 0 {
		return "", "", false
	}
	return date, times.Times[rng.Intn(len(times.Times))].Time, true
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	provider := s.randomProvider(rng)
	date, tp, ok := s.pickTimePoint(ctx, rng, provider)
	if !ok {
		return
	}

	paymentStatus := "paid"
	if rng.Intn(4) == 0 {
		paymentStatus = "unpaid"
	}
	body := map[string]any{
		"provider_id": provider.String(),
		"patient_id":  s.pool.Patients[rng.Intn(len(s.pool.Patients))].String(),
		"date":        date,
		"time":        tp,
		"payment":     map[string]any{"method": "card", "status": paymentStatus, "amount": 15000},
	}

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	start := time.Now()
	status, err := s.do(ctx, http.MethodPost, "/appointments", body, &created)
	s.metrics.Booking.Record(time.Since(start), status, err)
	if err == nil && status == http.StatusCreated {
		s.pool.AddAppointment(created.ID)
	}
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	var appt struct {
		ProviderID uuid.UUID `json:"provider_id"`
	}
	if status, err := s.do(ctx, http.MethodGet, "/appointments/"+apptID.String(), nil, &appt); err != nil || status != http.StatusOK {
		return
	}
	date, tp, ok := s.pickTimePoint(ctx, rng, appt.ProviderID)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.do(ctx, http.MethodPost, "/appointments/"+apptID.String()+"/reschedule",
		map[string]string{"date": date, "time": tp}, nil)
	s.metrics.Reschedule.Record(time.Since(start), status, err)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	start := time.Now()
	status, err := s.do(ctx, http.MethodPost, "/appointments/"+apptID.String()+"/cancel", nil, nil)
	s.metrics.Cancel.Record(time.Since(start), status, err)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Cancel", &s.metrics.Cancel)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	retryable := atomic.LoadInt64(&om.Retryable)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Full / gone: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if retryable > 0 {
		fmt.Printf("  Lock timeouts: %d (%.1f%%)\n", retryable, pct(retryable))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}
