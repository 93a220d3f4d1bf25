package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hcavarsan/kftray-sub001/internal/clientfactory"
	"github.com/hcavarsan/kftray-sub001/internal/hostsfile"
	"github.com/hcavarsan/kftray-sub001/internal/model"
	"github.com/hcavarsan/kftray-sub001/internal/netmonitor"
	"github.com/hcavarsan/kftray-sub001/internal/orchestrator"
	"github.com/hcavarsan/kftray-sub001/internal/settings"
	"github.com/hcavarsan/kftray-sub001/internal/store"
	"github.com/hcavarsan/kftray-sub001/pkg/appdir"
	slogutil "github.com/hcavarsan/kftray-sub001/pkg/slog"
)

func newRunCommand(root *rootOptions) *cobra.Command {
	v := viper.New()
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start every persisted rule and keep them running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd.Context(), root, v, metricsAddr)
		},
	}

	settings.BindFlags(cmd.Flags(), v)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (empty disables).")
	return cmd
}

func runAgent(ctx context.Context, root *rootOptions, v *viper.Viper, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPath, err := resolveDBPath(root.dbPath)
	if err != nil {
		return err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	cfg, err := settings.Load(v, st)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	logDir, err := appdir.LogDir()
	if err != nil {
		return err
	}

	clients, err := clientfactory.New()
	if err != nil {
		return fmt.Errorf("build client factory: %w", err)
	}
	defer clients.Close()

	hosts, err := hostsfile.Default()
	if err != nil {
		slog.Warn("hosts-file agent unavailable, domain_enabled rules run in degraded mode", slogutil.Error(err))
		hosts = nil
	}

	reg := prometheus.NewRegistry()
	notifier := netmonitor.NewNotifier()

	orch := orchestrator.New(orchestrator.Options{
		Store:    st,
		Clients:  clients,
		Hosts:    hosts,
		Notifier: notifier,
		LogDir:   logDir,
		Reg:      reg,
	})

	monitor := netmonitor.New(netmonitor.Options{
		Source:    orch,
		Restarter: orch,
		Notifier:  notifier,
	})
	if err := monitor.Collect(reg); err != nil {
		slog.Warn("metrics registration failed", slogutil.Error(err))
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server failed", slogutil.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
	}

	configs, err := st.List()
	if err != nil {
		return fmt.Errorf("list configs: %w", err)
	}
	for _, protocol := range []string{model.ProtocolTCP, model.ProtocolUDP} {
		succeeded, errs := orch.Start(ctx, configs, protocol)
		for _, id := range succeeded {
			slog.Info("rule started", slog.Int64("configID", id))
		}
		for _, re := range errs {
			slog.Error("rule failed to start", slog.Int64("configID", re.ConfigID), slogutil.Error(re.Err))
		}
	}

	if !cfg.NetworkMonitor {
		<-ctx.Done()
	} else {
		monitor.Run(ctx)
	}

	orch.StopAll()
	return nil
}

func resolveDBPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	return appdir.DBPath()
}
