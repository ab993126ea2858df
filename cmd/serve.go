package cmd

import (
	"context"
	cryptotls "crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grimm.is/ngxweb/internal/api"
	"grimm.is/ngxweb/internal/audit"
	"grimm.is/ngxweb/internal/brand"
	"grimm.is/ngxweb/internal/config"
	"grimm.is/ngxweb/internal/lb"
	"grimm.is/ngxweb/internal/logging"
	"grimm.is/ngxweb/internal/metrics"
	"grimm.is/ngxweb/internal/nginx"
	"grimm.is/ngxweb/internal/scheduler"
	"grimm.is/ngxweb/internal/state"
	"grimm.is/ngxweb/internal/tls"
	"grimm.is/ngxweb/internal/traffic"
)

// MetricsInterval is how often the collector samples traffic and pool state.
var MetricsInterval = 30 * time.Second

// BackupKeep is the number of configuration snapshots kept.
const BackupKeep = 7

// RunServe starts the API server and blocks until SIGINT or SIGTERM.
func RunServe(args []string) error {
	flags := newFlagSet("serve")
	configFile := flags.String("config", brand.GetConfigFile(), "Configuration file")
	flags.StringVar(configFile, "c", brand.GetConfigFile(), "Configuration file (short)")
	listen := flags.String("listen", "", "Override the listen address")
	flags.StringVar(listen, "l", "", "Override the listen address (short)")
	debug := flags.Bool("debug", false, "Log at debug level regardless of log_level")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Output: os.Stderr,
		JSON:   cfg.LogJSON,
	})
	if *debug {
		logger.SetLevel(logging.LevelDebug)
	}
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	return Serve(ctx, cfg, listener)
}

// Serve wires the services described by cfg and serves the API on listener
// until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config, listener net.Listener) error {
	logger := logging.WithComponent("serve")

	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	store, err := state.NewSQLiteStore(state.DefaultOptions(cfg.StateDBPath()))
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	var auditLog api.AuditLog
	var pruner scheduler.Pruner
	if !cfg.Audit.Disabled {
		auditStore, err := audit.NewStore(audit.Options{
			Path:          cfg.AuditDBPath(),
			RetentionDays: cfg.Audit.RetentionDays,
		})
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		defer auditStore.Close()
		auditLog = auditStore
		pruner = auditStore
	}

	manager := nginx.NewManager(nginx.Options{
		ConfigDir:      cfg.Nginx.ConfigDir,
		Binary:         cfg.Nginx.Binary,
		LinkDirs:       cfg.Nginx.LinkDirs,
		CommandTimeout: cfg.CommandTimeoutDuration(),
		Logger:         logging.WithComponent("nginx"),
	})
	trafficSvc := traffic.NewService(cfg.AccessLogPath(), logging.WithComponent("traffic"))

	pool, err := lb.NewPool(lb.Options{
		Path:     cfg.UpstreamPath(),
		Upstream: cfg.LoadBalancer.UpstreamName,
		Store:    store,
		Prober:   lb.NewProber(cfg.LoadBalancer.ProbeMode, cfg.ProbeTimeoutDuration()),
		Logger:   logging.WithComponent("lb"),
	})
	if err != nil {
		return fmt.Errorf("load balancer: %w", err)
	}

	server, err := api.NewServer(api.ServerOptions{
		Config:  cfg,
		Configs: manager,
		Traffic: trafficSvc,
		Pool:    pool,
		Audit:   auditLog,
		Logger:  logging.WithComponent("api"),
	})
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(logging.WithComponent("metrics"), MetricsInterval, metrics.Sources{
		Traffic: func() (traffic.Stats, error) { return trafficSvc.Stats(traffic.Query{}) },
		Configs: func() (int, error) {
			configs, err := manager.List()
			return len(configs), err
		},
		Members: pool.StatusCounts,
	})
	go collector.Start()
	defer collector.Stop()

	sched := scheduler.New(logging.WithComponent("scheduler"), nil)
	if pruner != nil {
		sched.AddTask(scheduler.NewAuditPruneTask(pruner, logging.WithComponent("audit")))
	}
	sched.AddTask(scheduler.NewConfigBackupTask(cfg.Nginx.ConfigDir, cfg.BackupDir(), BackupKeep, nil))

	if cfg.API.TLS {
		host, _, _ := net.SplitHostPort(cfg.Listen)
		cert, err := tls.EnsureCertificate(cfg.API.TLSCert, cfg.API.TLSKey, tls.DefaultValidDays, host)
		if err != nil {
			return err
		}
		cm := tls.NewCertificateManager()
		cm.SetCertificate(cert)
		listener = cryptotls.NewListener(listener, cm.ServerConfig())
		logger.Info("serving HTTPS", "cert", cfg.API.TLSCert, "fingerprint", tls.Fingerprint(cert))

		sched.AddTask(scheduler.NewCertificateRenewalTask(func(context.Context) error {
			cert, renewed, err := tls.RenewIfExpiring(cfg.API.TLSCert, cfg.API.TLSKey, tls.DefaultValidDays, tls.RenewBefore, host)
			if err != nil || !renewed {
				return err
			}
			cm.SetCertificate(cert)
			logger.Warn("renewed API certificate; clients pinning the old fingerprint must update",
				"fingerprint", tls.Fingerprint(cert))
			return nil
		}))
	}

	sched.Start()
	defer sched.Stop()

	if !manager.Installed() {
		logger.Warn("nginx binary not found; deploys will fail until it is installed", "binary", cfg.Nginx.Binary)
	}
	return server.Serve(ctx, listener)
}
