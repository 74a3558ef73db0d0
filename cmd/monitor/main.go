package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aigoflow/rideguard/internal/logging"
	"github.com/aigoflow/rideguard/internal/services"
)

func main() {
	var (
		natsURL         = flag.String("nats", "nats://127.0.0.1:4222", "NATS server URL")
		httpAddr        = flag.String("http", "", "Serve /api/replicas on this address instead of the CLI table")
		monitoringTopic = flag.String("monitoring-topic", "monitoring.backpressure", "Backpressure topic prefix")
		refresh         = flag.Duration("refresh", 5*time.Second, "Table refresh interval")
		onceMode        = flag.Bool("once", false, "Print one table after the first heartbeats and exit")
		logLevel        = flag.String("log-level", "warn", "Log level")
	)
	flag.Parse()

	logging.Setup(logging.Options{Level: *logLevel, Service: "rideguard-monitor"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := nats.Connect(*natsURL, nats.Name("rideguard-monitor"))
	if err != nil {
		slog.Error("Failed to connect to NATS", "url", *natsURL, "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	registry := NewRegistry()
	updates := make(chan struct{}, 1)
	notify := func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	}

	if _, err := nc.Subscribe(services.HeartbeatTopic(">"), func(msg *nats.Msg) {
		rep, err := registry.ObserveHeartbeat(msg.Data)
		if err != nil {
			slog.Warn("Failed to parse heartbeat", "subject", msg.Subject, "error", err)
			return
		}
		slog.Debug("Heartbeat", "model", rep.ModelName, "instance", rep.Instance, "status", rep.Status)
		notify()
	}); err != nil {
		slog.Error("Failed to subscribe to heartbeats", "error", err)
		os.Exit(1)
	}

	if _, err := nc.Subscribe(*monitoringTopic+".>", func(msg *nats.Msg) {
		if err := registry.ObserveBackpressure(msg.Data); err != nil {
			slog.Warn("Failed to parse backpressure report", "subject", msg.Subject, "error", err)
			return
		}
		notify()
	}); err != nil {
		slog.Error("Failed to subscribe to backpressure reports", "error", err)
		os.Exit(1)
	}

	if *onceMode {
		// Heartbeats are sent every 30s; wait for at least one round.
		select {
		case <-updates:
			time.Sleep(time.Second)
		case <-time.After(35 * time.Second):
		case <-ctx.Done():
		}
		renderTable(os.Stdout, registry.Snapshot(), time.Now())
		return
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if registry.MarkStale() > 0 {
					notify()
				}
			}
		}
	}()

	if *httpAddr != "" {
		runHTTPServer(ctx, registry, *httpAddr)
		return
	}
	runCLIDashboard(ctx, registry, updates, *refresh)
}

func runCLIDashboard(ctx context.Context, registry *Registry, updates <-chan struct{}, refresh time.Duration) {
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		fmt.Print("\033[2J\033[H")
		renderTable(os.Stdout, registry.Snapshot(), time.Now())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-updates:
		}
	}
}

func renderTable(w io.Writer, replicas []Replica, now time.Time) {
	fmt.Fprintf(w, "RideGuard replicas - %s\n\n", now.Format("15:04:05"))
	if len(replicas) == 0 {
		fmt.Fprintln(w, "No replicas detected. Waiting for heartbeats on monitoring.models.heartbeat.*")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tINSTANCE\tSTATUS\tVERSION\tTHRESHOLD\tCAPABILITIES\tQUEUE\tLAST SEEN")
	for _, r := range replicas {
		status := r.Status
		if r.Reason != "" {
			status += " (" + truncate(r.Reason, 30) + ")"
		}
		queue := "-"
		if bp := r.Backpressure; bp != nil {
			queue = fmt.Sprintf("%d/%d %s", bp.PendingMessages, bp.QueueCapacity, bp.Status)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%s\t%s\t%s\n",
			r.ModelName,
			r.Instance,
			status,
			valueOr(r.ModelVersion, "-"),
			r.Threshold,
			valueOr(strings.Join(r.Capabilities, ","), "-"),
			queue,
			now.Sub(r.LastSeen).Round(time.Second))
	}
	tw.Flush()
}

func runHTTPServer(ctx context.Context, registry *Registry, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/replicas", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(registry.Snapshot()); err != nil {
			slog.Warn("Failed to write replicas", "error", err)
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Monitor HTTP server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Monitor HTTP server failed", "error", err)
	}
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
