// Package main provides the entry point for the SCADA security range.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/Micca1978/scadarange/internal/config"
	"github.com/Micca1978/scadarange/internal/exploit"
	"github.com/Micca1978/scadarange/internal/firewall"
	"github.com/Micca1978/scadarange/internal/monitor"
	"github.com/Micca1978/scadarange/internal/network"
	"github.com/Micca1978/scadarange/internal/policy"
	"github.com/Micca1978/scadarange/internal/scada"
	"github.com/Micca1978/scadarange/internal/server"
	"github.com/Micca1978/scadarange/internal/version"
	"github.com/Micca1978/scadarange/pkg/types"
)

func main() {
	configPath := flag.String("config", "config/range.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	loadErr := err
	if err != nil {
		cfg = config.Default()
	}

	log, err := monitor.NewLogger(&cfg.Logging)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize logger")
	}
	if loadErr != nil {
		log.WithError(loadErr).Warn("Could not load config file, using defaults")
	}

	if err := run(cfg, *configPath, loadErr == nil, log); err != nil {
		log.WithError(err).Fatal("Range stopped")
	}
}

func run(cfg *config.Config, configPath string, watch bool, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize components
	mon := monitor.NewMonitor(&cfg.Monitoring, log)
	model := exploit.NewModel()

	devices := scada.DefaultCatalog()
	if cfg.Scada.CatalogFile != "" {
		loaded, err := scada.LoadCatalog(cfg.Scada.CatalogFile)
		if err != nil {
			return err
		}
		devices = loaded
	}
	sc := scada.NewEngine(devices, model, exploit.ScadaTrials(cfg.Exploit), mon.NewLog("scada"))

	var rules []types.Rule
	if cfg.Firewall.RulesFile != "" {
		loaded, err := policy.LoadRules(cfg.Firewall.RulesFile)
		if err != nil {
			return err
		}
		rules = loaded
	}

	fw, err := firewall.New(firewall.Params{
		Config:    &cfg.Firewall,
		Exploit:   cfg.Exploit,
		Rules:     rules,
		ScadaFlag: sc.Flag(),
		Model:     model,
		Log:       mon.NewLog("firewall"),
	})
	if err != nil {
		return err
	}

	inv := network.NewInventory(sc, fw.IPSEnabled)

	hub := server.NewHub(log, server.OriginMatcher(cfg.Server.AllowedOrigins))
	mon.SetEventHandler(func(subsystem string, entry types.LogEntry) {
		hub.Broadcast(server.Event{Type: "activity", Subsystem: subsystem, Data: entry})
	})

	if cfg.Events.NATSURL != "" {
		nc, err := server.ConnectNATS(cfg.Events.NATSURL, log)
		if err != nil {
			log.WithError(err).Warn("Event bus unavailable, continuing without it")
		} else {
			defer nc.Close()
			hub.SetPublisher(nc, cfg.Events.Subject)
		}
	}

	if watch {
		go func() {
			err := config.Watch(ctx, configPath, log, func(next *config.Config) {
				monitor.ApplyLogging(log, &next.Logging)
				log.WithField("level", next.Logging.Level).Info("Logging configuration reloaded")
			})
			if err != nil {
				log.WithError(err).Warn("Config watcher stopped")
			}
		}()
	}

	srv := server.New(cfg.Server, fw, sc, inv, mon, hub)

	log.WithFields(logrus.Fields{
		"version":        version.Version,
		"rules":          len(fw.ListRules()),
		"scada_devices":  len(sc.Devices()),
		"default_policy": cfg.Firewall.DefaultPolicy,
	}).Info("SCADA range initialized")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
