// Команда loadtest генерирует поток push-событий заказов в Kafka,
// чтобы проверить агент синхронизации под нагрузкой: скорость
// reconcile, отбрасывание устаревших событий и размер очереди.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/mosync/internal/domain"
	"github.com/vladislavdragonenkov/mosync/internal/messaging/kafka"
)

type loadMode string

const (
	modeCreated   loadMode = "created"
	modeLifecycle loadMode = "lifecycle"
	modeMixed     loadMode = "mixed"
)

// lifecycleStatuses — порядок смены статусов в сценарии lifecycle.
var lifecycleStatuses = []domain.OrderStatus{
	domain.OrderStatusApproved,
	domain.OrderStatusInProgress,
	domain.OrderStatusCompleted,
}

type config struct {
	brokers     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	mode        loadMode
	deleteRate  int
	orderPrefix string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type eventReport struct {
	Published int64          `json:"published"`
	Failed    int64          `json:"failed"`
	ErrorRate float64        `json:"error_rate"`
	LatencyMs latencySummary `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time              `json:"started_at"`
	DurationSeconds   float64                `json:"duration_seconds"`
	TotalScenarios    int64                  `json:"total_scenarios"`
	SuccessScenarios  int64                  `json:"success_scenarios"`
	FailedScenarios   int64                  `json:"failed_scenarios"`
	ErrorRate         float64                `json:"error_rate"`
	EventsPerSecond   float64                `json:"events_per_second"`
	ScenarioLatencyMs latencySummary         `json:"scenario_latency_ms"`
	Events            map[string]eventReport `json:"events"`
}

type eventStats struct {
	published int64
	failed    int64
	latencies []float64
}

type collector struct {
	mu     sync.Mutex
	events map[string]*eventStats
}

func newCollector() *collector {
	return &collector{
		events: make(map[string]*eventStats),
	}
}

func (c *collector) record(name string, latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.events[name]
	if !ok {
		stats = &eventStats{}
		c.events[name] = stats
	}

	if err == nil {
		stats.published++
	} else {
		stats.failed++
	}
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Events:          make(map[string]eventReport, len(c.events)),
	}

	var totalEvents int64
	for name, stats := range c.events {
		if name == "scenario" {
			continue
		}
		totalEvents += stats.published + stats.failed
		result.Events[name] = eventReport{
			Published: stats.published,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.published+stats.failed),
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	scenarioStats := c.events["scenario"]
	if scenarioStats != nil {
		result.TotalScenarios = scenarioStats.published + scenarioStats.failed
		result.SuccessScenarios = scenarioStats.published
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, result.TotalScenarios)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.EventsPerSecond = float64(totalEvents) / duration.Seconds()
	}

	return result
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var durationValue string

	flag.StringVar(&cfg.brokers, "brokers", "localhost:9092", "comma-separated kafka brokers")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 20, "number of concurrent publishers")
	flag.StringVar(&modeValue, "mode", string(modeCreated), "load mode: created | lifecycle | mixed")
	flag.IntVar(&cfg.deleteRate, "delete-rate", 0, "delete probability in percent for mixed mode (0..100)")
	flag.StringVar(&cfg.orderPrefix, "order-prefix", "load", "order id prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.deleteRate < 0 || cfg.deleteRate > 100 {
		return cfg, errors.New("delete-rate must be between 0 and 100")
	}
	if strings.TrimSpace(cfg.brokers) == "" {
		return cfg, errors.New("brokers are required")
	}
	if strings.TrimSpace(cfg.orderPrefix) == "" {
		return cfg, errors.New("order-prefix is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCreated:
		return modeCreated, nil
	case modeLifecycle:
		return modeLifecycle, nil
	case modeMixed:
		return modeMixed, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	producer, err := kafka.NewProducer(strings.Split(cfg.brokers, ","))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to create kafka producer: %v\n", err)
		os.Exit(1)
	}
	defer producer.Close()

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(producer, cfg, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario публикует цепочку событий одного заказа.
func runScenario(producer *kafka.Producer, cfg config, index int, runID string, col *collector) error {
	scenarioStart := time.Now()
	var scenarioErr error
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioErr)
	}()

	orderID := fmt.Sprintf("%s-%s-%s", cfg.orderPrefix, runID, uuid.NewString())
	now := time.Now().UTC()

	createdPayload := map[string]any{
		"id":         orderID,
		"name":       fmt.Sprintf("load order %d", index),
		"status":     domain.OrderStatusPending,
		"updated_at": now,
	}
	if err := publishEvent(producer, col, kafka.EventTypeOrderCreated, orderID, createdPayload); err != nil {
		scenarioErr = err
		return err
	}

	if cfg.mode == modeCreated {
		return nil
	}

	for step, status := range lifecycleStatuses {
		statusPayload := map[string]any{
			"status":     status,
			"updated_at": now.Add(time.Duration(step+1) * time.Millisecond),
		}
		if err := publishEvent(producer, col, kafka.EventTypeOrderStatusChanged, orderID, statusPayload); err != nil {
			scenarioErr = err
			return err
		}
	}

	if cfg.mode == modeMixed && shouldDelete(index, cfg.deleteRate) {
		deletePayload := map[string]any{
			"updated_at": now.Add(10 * time.Millisecond),
		}
		if err := publishEvent(producer, col, kafka.EventTypeOrderDeleted, orderID, deletePayload); err != nil {
			scenarioErr = err
			return err
		}
	}

	return nil
}

func publishEvent(
	producer *kafka.Producer,
	col *collector,
	eventType kafka.EventType,
	orderID string,
	payload any,
) error {
	start := time.Now()

	env, err := kafka.NewEventEnvelope(eventType, orderID, payload)
	if err == nil {
		err = producer.PublishEnvelope(env)
	}

	col.record(string(eventType), time.Since(start), err)
	return err
}

func shouldDelete(index, deleteRate int) bool {
	if deleteRate <= 0 {
		return false
	}
	if deleteRate >= 100 {
		return true
	}
	return index%100 < deleteRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs events_per_second=%.2f\n", result.DurationSeconds, result.EventsPerSecond)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	eventNames := make([]string, 0, len(result.Events))
	for name := range result.Events {
		eventNames = append(eventNames, name)
	}
	sort.Strings(eventNames)
	for _, name := range eventNames {
		stats := result.Events[name]
		fmt.Printf(
			"%s: published=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Published,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
