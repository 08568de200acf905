package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"
	"golang.org/x/sync/errgroup"

	"market-core/internal/registry"
	"market-core/pkg/config"
	"market-core/pkg/db"
	"market-core/pkg/exchanges/common"
)

type HealthStatus struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Latency   string    `json:"latency,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthReport struct {
	Overall  string         `json:"overall"`
	Services []HealthStatus `json:"services"`
}

func main() {
	fmt.Println("Market Core Health Check")
	fmt.Println("========================")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report := HealthReport{
		Overall:  "HEALTHY",
		Services: make([]HealthStatus, 0),
	}

	cfg, cfgStatus := checkConfig()
	report.Services = append(report.Services, cfgStatus)
	if cfg != nil {
		report.Services = append(report.Services, checkDatabase(cfg))
		report.Services = append(report.Services, checkExchanges(ctx, cfg)...)
		report.Services = append(report.Services, checkAPIServer(cfg))
	}

	for _, svc := range report.Services {
		if svc.Status == "UNHEALTHY" {
			report.Overall = "UNHEALTHY"
			break
		} else if svc.Status == "DEGRADED" && report.Overall != "UNHEALTHY" {
			report.Overall = "DEGRADED"
		}
	}

	fmt.Println("Results:")
	fmt.Println("--------")
	for _, svc := range report.Services {
		statusIcon := "✓"
		if svc.Status == "UNHEALTHY" {
			statusIcon = "✗"
		} else if svc.Status == "DEGRADED" {
			statusIcon = "⚠"
		}
		fmt.Printf("%s %-20s %s %s %s\n", statusIcon, svc.Service, svc.Status, svc.Latency, svc.Message)
	}

	fmt.Println()
	fmt.Printf("Overall Status: %s\n", report.Overall)

	if len(os.Args) > 1 && os.Args[1] == "--json" {
		jsonData, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(jsonData))
	}

	if report.Overall == "UNHEALTHY" {
		os.Exit(1)
	}
}

func checkConfig() (*config.Config, HealthStatus) {
	status := HealthStatus{
		Service:   "Configuration",
		Status:    "HEALTHY",
		Timestamp: time.Now(),
	}
	cfg, err := config.Load()
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Failed to load: %v", err)
		return nil, status
	}
	status.Message = fmt.Sprintf("Port=%s default=%s %s %s", cfg.Port, cfg.DefaultExchange, cfg.DefaultSymbol, cfg.DefaultInterval)
	return cfg, status
}

func checkDatabase(cfg *config.Config) HealthStatus {
	status := HealthStatus{
		Service:   "Database",
		Status:    "HEALTHY",
		Timestamp: time.Now(),
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Connection failed: %v", err)
		return status
	}
	defer database.Close()

	if err := database.DB.Ping(); err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Ping failed: %v", err)
		return status
	}
	status.Message = "Connected"
	return status
}

// checkExchanges lists symbols on every exchange concurrently. A failing
// exchange degrades the report; the probe never aborts the others.
func checkExchanges(ctx context.Context, cfg *config.Config) []HealthStatus {
	overrides := make(map[string]common.Options, len(cfg.Exchanges))
	for name, ov := range cfg.Exchanges {
		overrides[name] = common.Options{RESTURL: ov.RESTURL, WSURL: ov.WSURL, RatePerSec: ov.RatePerSec, Burst: ov.Burst}
	}
	reg := registry.New(common.Options{HTTPClient: &http.Client{Timeout: cfg.RequestTimeout}}, overrides, nil)

	names := reg.Names()
	out := make([]HealthStatus, len(names))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			a, _ := reg.Get(name)
			st := HealthStatus{Service: name, Status: "HEALTHY", Timestamp: time.Now()}
			start := time.Now()
			symbols, err := a.FetchAllSymbols(gctx)
			st.Latency = time.Since(start).Round(time.Millisecond).String()
			switch {
			case err != nil:
				st.Status = "DEGRADED"
				st.Message = err.Error()
			case len(symbols) == 0:
				st.Status = "DEGRADED"
				st.Message = "no symbols listed"
			default:
				st.Message = fmt.Sprintf("%d symbols", len(symbols))
			}
			mu.Lock()
			out[i] = st
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func checkAPIServer(cfg *config.Config) HealthStatus {
	status := HealthStatus{
		Service:   "API Server",
		Status:    "HEALTHY",
		Timestamp: time.Now(),
	}

	url := fmt.Sprintf("http://localhost:%s/health", cfg.Port)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		status.Status = "DEGRADED"
		status.Message = fmt.Sprintf("Not reachable: %v", err)
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status.Status = "DEGRADED"
		status.Message = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return status
	}
	status.Message = "Running"
	return status
}
