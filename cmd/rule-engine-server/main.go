// Command rule-engine-server runs the compliance scanning platform: the Job
// Orchestrator, Event Router, Cron Trigger Layer, Rule-Source Syncer, and
// SIEM push service, fronted by the thin external HTTP surface in
// internal/httpapi.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/epam/rule-engine/internal/app"
	"github.com/epam/rule-engine/internal/httpapi"
	"github.com/epam/rule-engine/internal/platform/config"
	"github.com/epam/rule-engine/internal/platform/logging"
	"github.com/epam/rule-engine/internal/storage/postgres"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to config Server.Host/Port)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env; in-memory storage when empty)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	baseLog := logging.New("rule-engine-server", cfg.Logging.Level, cfg.Logging.Format)

	stores := app.Stores{}

	dsnVal := resolveDSN(*dsn, cfg)
	var db *sqlx.DB
	if dsnVal != "" {
		db, err = sqlx.Connect("postgres", dsnVal)
		if err != nil {
			log.Fatalf("connect to postgres: %v", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		if cfg.Database.MigrateOnStart {
			if err := postgres.Migrate(db.DB); err != nil {
				log.Fatalf("apply migrations: %v", err)
			}
		}
		pg := postgres.NewStores(db)
		stores = app.Stores{
			Tenant:            pg.Tenant,
			Customer:          pg.Customer,
			Rule:              pg.Rule,
			RuleSource:        pg.RuleSource,
			Ruleset:           pg.Ruleset,
			License:           pg.License,
			TenantLicenseLink: pg.TenantLicenseLink,
			Job:               pg.Job,
			BatchResult:       pg.BatchResult,
			ScheduledJob:      pg.ScheduledJob,
			ResourceException: pg.ResourceException,
		}
	}
	if db != nil {
		defer db.Close()
	}

	rootCtx := context.Background()
	application, err := app.New(rootCtx, cfg, stores, baseLog)
	if err != nil {
		log.Fatalf("initialise application: %v", err)
	}

	listenAddr := determineAddr(*addr, cfg)
	httpService := httpapi.NewService(application, listenAddr, baseLog)
	application.Attach(httpService)

	if err := application.Start(rootCtx); err != nil {
		log.Fatalf("start application: %v", err)
	}
	baseLog.WithField("addr", listenAddr).Info("rule engine listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}

func resolveDSN(flagDSN string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagDSN); trimmed != "" {
		return trimmed
	}
	if cfg.Database.DSN != "" || cfg.Database.Host != "" {
		return cfg.Database.ConnectionString()
	}
	return ""
}

func determineAddr(flagAddr string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagAddr); trimmed != "" {
		return trimmed
	}
	return strings.TrimSpace(cfg.Server.Host) + portSuffix(cfg.Server.Port)
}

func portSuffix(port int) string {
	if port == 0 {
		return ":8080"
	}
	return ":" + strconv.Itoa(port)
}
