package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type loadMode string

const (
	modeCreate         loadMode = "create"
	modeCreateUpdate   loadMode = "create-update"
	modeCreateComplete loadMode = "create-complete"
)

const (
	callScenario     = "scenario"
	callCreateOrder  = "CreateOrder"
	callUpdateOrder  = "UpdateOrderData"
	callUpdateStatus = "UpdateOrderStatus"
	callGetOrder     = "GetOrder"
)

type config struct {
	baseURL     string
	apiVersion  int
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	unitPrice   string
	quantity    int
	orderTag    string
	outputPath  string
}

func parseConfig(args []string) (config, error) {
	var cfg config
	var modeValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "orders-api base URL")
	fs.IntVar(&cfg.apiVersion, "api-version", 1, "API version prefix (/api/v{N})")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-update | create-complete")
	fs.StringVar(&cfg.unitPrice, "unit-price", "10.00", "unit price of the product created for the run")
	fs.IntVar(&cfg.quantity, "quantity", 2, "item quantity per order")
	fs.StringVar(&cfg.orderTag, "order-tag", "LT", "order number prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
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
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.apiVersion <= 0 {
		return cfg, errors.New("api-version must be > 0")
	}
	if cfg.quantity <= 0 {
		return cfg, errors.New("quantity must be > 0")
	}
	if strings.TrimSpace(cfg.baseURL) == "" {
		return cfg, errors.New("url is required")
	}
	if strings.TrimSpace(cfg.orderTag) == "" {
		return cfg, errors.New("order-tag is required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreateUpdate, modeCreateComplete:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result, err := run(context.Background(), cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
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

// run создаёт товар для прогона и гоняет сценарии в cfg.concurrency воркерах.
func run(ctx context.Context, cfg config) (report, error) {
	client := newAPIClient(cfg.baseURL, cfg.apiVersion, cfg.timeout)

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())

	setupCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	productID, err := client.createProduct(setupCtx, "loadtest-"+runID, cfg.unitPrice)
	cancel()
	if err != nil {
		return report{}, fmt.Errorf("create product: %w", err)
	}

	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)
	var failures int64

	g := new(errgroup.Group)
	for w := 0; w < cfg.concurrency; w++ {
		g.Go(func() error {
			for id := range jobs {
				if runErr := runScenario(ctx, client, cfg, productID, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
			return nil
		})
	}

	dispatchJobs(jobs, cfg)
	_ = g.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}
	return result, nil
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

func runScenario(
	ctx context.Context,
	client *apiClient,
	cfg config,
	productID string,
	index int,
	runID string,
	col *collector,
) (err error) {
	scenarioStart := time.Now()
	defer func() {
		code := "ok"
		if err != nil {
			code = "failed"
		}
		col.record(callScenario, time.Since(scenarioStart), code, err == nil)
	}()

	call := func(name, method, path string, body any, idemKey string) (apiEnvelope, error) {
		callCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
		return client.timed(callCtx, col, name, method, path, body, idemKey)
	}

	orderNumber := fmt.Sprintf("%s-%s-%d", cfg.orderTag, runID, index)
	env, err := call(callCreateOrder, http.MethodPost, "/orders", map[string]any{
		"orderNumber": orderNumber,
		"items": []map[string]any{
			{"productId": productID, "quantity": cfg.quantity},
		},
	}, fmt.Sprintf("lt-create-%s-%d", runID, index))
	if err != nil {
		return err
	}
	orderID, err := decodeID(env)
	if err != nil {
		return err
	}

	switch cfg.mode {
	case modeCreateUpdate:
		if _, err := call(callUpdateOrder, http.MethodPatch, "/orders/data/"+orderID, map[string]any{
			"orderNumber": orderNumber + "-U",
			"items": []map[string]any{
				{"productId": productID, "quantity": cfg.quantity + 1},
			},
		}, ""); err != nil {
			return err
		}
	case modeCreateComplete:
		for _, status := range []string{"IN_PROGRESS", "COMPLETED"} {
			if _, err := call(callUpdateStatus, http.MethodPatch, "/orders/status/"+orderID, map[string]any{
				"status": status,
			}, ""); err != nil {
				return err
			}
		}
	}

	if cfg.mode != modeCreate {
		if _, err := call(callGetOrder, http.MethodGet, "/orders/"+orderID, nil, ""); err != nil {
			return err
		}
	}
	return nil
}
