package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"futures-bridge/internal/api"
	"futures-bridge/pkg/config"
	"futures-bridge/pkg/db"
)

// health_check probes a running bridge: config, journal, HTTP and gRPC health.
//
// Usage:
//   go run ./scripts/health_check [--json]

type HealthStatus struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthReport struct {
	Overall  string         `json:"overall"`
	Services []HealthStatus `json:"services"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report := HealthReport{Overall: "HEALTHY"}
	report.Services = append(report.Services,
		checkConfig(cfg),
		checkJournal(ctx, cfg),
		checkHTTP(ctx, cfg),
		checkGRPC(ctx, cfg),
	)

	for _, svc := range report.Services {
		if svc.Status == "UNHEALTHY" {
			report.Overall = "UNHEALTHY"
			break
		} else if svc.Status == "DEGRADED" {
			report.Overall = "DEGRADED"
		}
	}

	if len(os.Args) > 1 && os.Args[1] == "--json" {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		for _, svc := range report.Services {
			fmt.Printf("%-12s %-10s %s\n", svc.Service, svc.Status, svc.Message)
		}
		fmt.Printf("\nOverall: %s\n", report.Overall)
	}

	if report.Overall == "UNHEALTHY" {
		os.Exit(1)
	}
}

func newStatus(service string) HealthStatus {
	return HealthStatus{Service: service, Status: "HEALTHY", Timestamp: time.Now()}
}

func checkConfig(cfg *config.Config) HealthStatus {
	status := newStatus("config")
	if cfg.DryRun {
		status.Message = "dry run (paper gateway)"
		return status
	}
	if _, err := config.LoadSettings(cfg.GatewaySettingsPath); err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("gateway settings: %v", err)
		return status
	}
	status.Message = fmt.Sprintf("gateway=%s bridge=%s", cfg.GatewayType, cfg.BridgeURL)
	return status
}

func checkJournal(ctx context.Context, cfg *config.Config) HealthStatus {
	status := newStatus("journal")
	if !cfg.EnableJournal {
		status.Status = "DEGRADED"
		status.Message = "disabled"
		return status
	}
	database, err := db.New(cfg.DBPath)
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = err.Error()
		return status
	}
	defer database.Close()
	if err := database.DB.PingContext(ctx); err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("ping: %v", err)
		return status
	}
	status.Message = cfg.DBPath
	return status
}

func checkHTTP(ctx context.Context, cfg *config.Config) HealthStatus {
	status := newStatus("http")
	url := fmt.Sprintf("http://localhost:%s/health", cfg.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = err.Error()
		return status
	}
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("not reachable: %v", err)
		return status
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		status.Message = "connected"
	case http.StatusServiceUnavailable:
		status.Status = "DEGRADED"
		status.Message = "gateway still connecting"
	default:
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return status
}

func checkGRPC(ctx context.Context, cfg *config.Config) HealthStatus {
	status := newStatus("grpc")
	conn, err := grpc.NewClient("localhost:"+cfg.GRPCPort, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = err.Error()
		return status
	}
	defer conn.Close()

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(cctx, &grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("check: %v", err)
		return status
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		status.Status = "DEGRADED"
	}
	status.Message = resp.GetStatus().String()
	return status
}
