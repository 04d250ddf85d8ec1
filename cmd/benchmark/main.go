package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/punchamoorthee/joyledger/internal/config"
	"github.com/punchamoorthee/joyledger/internal/store"
)

// Config holds the benchmark settings
var (
	dbURL       string
	concurrency int
	duration    time.Duration
	workload    string
	hotOrders   int
)

// Metrics
var (
	totalRequests uint64
	applied       uint64 // First delivery of an order
	duplicates    uint64 // Redeliveries skipped by the processed-order set
	failOther     uint64
)

const (
	benchUser      = "bench-user"
	tokensPerOrder = 25
)

func init() {
	_ = godotenv.Load()
	flag.StringVar(&dbURL, "db", config.New().GetString("DB_SOURCE"), "Postgres connection string")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&hotOrders, "hot-orders", 20, "Distinct order ids redelivered in the hotspot workload")
}

func main() {
	flag.Parse()
	if dbURL == "" {
		log.Fatal("DB_SOURCE or -db is required")
	}
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	ctx := context.Background()
	if err := store.RunMigrations(dbURL); err != nil {
		log.Fatalf("Migrations failed: %v", err)
	}
	s, err := store.NewStore(ctx, dbURL)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	runID := uuid.NewString()[:8]
	user := benchUser + "-" + runID

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(ctx, s, &wg, start, runID, user)
	}

	wg.Wait()
	elapsed := time.Since(start)

	consistent := verify(ctx, s, user)
	printResults(elapsed, consistent)
	if !consistent {
		os.Exit(1)
	}
}

func worker(ctx context.Context, s *store.Store, wg *sync.WaitGroup, start time.Time, runID, user string) {
	defer wg.Done()

	for time.Since(start) < duration {
		orderID := generateOrderID(runID)

		ok, err := s.ApplyTokenCredit(ctx, orderID, user, tokensPerOrder)
		atomic.AddUint64(&totalRequests, 1)
		switch {
		case err != nil:
			atomic.AddUint64(&failOther, 1)
		case ok:
			atomic.AddUint64(&applied, 1)
		default:
			atomic.AddUint64(&duplicates, 1)
		}
	}
}

func generateOrderID(runID string) string {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic redelivers a small set of orders
		if rand.Float32() < 0.90 {
			return fmt.Sprintf("bench-%s-hot-%d", runID, rand.Intn(hotOrders))
		}
	}

	// Uniform: every delivery is a new order
	return fmt.Sprintf("bench-%s-%s", runID, uuid.NewString())
}

// verify checks the balance equals applied credits only.
func verify(ctx context.Context, s *store.Store, user string) bool {
	want := int64(atomic.LoadUint64(&applied)) * tokensPerOrder
	if want == 0 {
		return true
	}

	b, err := s.GetBalance(ctx, user)
	if err != nil {
		log.Printf("Balance read failed: %v", err)
		return false
	}
	credited, err := s.CreditedTokens(ctx, user)
	if err != nil {
		log.Printf("Credited sum read failed: %v", err)
		return false
	}
	if b.JoyTokens != want || credited != want {
		log.Printf("Inconsistent ledger: balance=%d credited=%d expected=%d", b.JoyTokens, credited, want)
		return false
	}
	return true
}

func printResults(d time.Duration, consistent bool) {
	total := atomic.LoadUint64(&totalRequests)
	ok := atomic.LoadUint64(&applied)
	dup := atomic.LoadUint64(&duplicates)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	dupRate := 0.0
	if total > 0 {
		dupRate = float64(dup) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":           workload,
		"duration_sec":       d.Seconds(),
		"total_deliveries":   total,
		"throughput_tps":     tps,
		"applied":            ok,
		"duplicates_skipped": dup,
		"duplicate_rate_pct": dupRate,
		"errors":             fErr,
		"ledger_consistent":  consistent,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("Could not write %s: %v", filename, err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
