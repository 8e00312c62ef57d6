package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/onemorebsmith/chai-counter/src/airtable"
	"github.com/onemorebsmith/chai-counter/src/cache"
	"github.com/onemorebsmith/chai-counter/src/chatlog"
	"github.com/onemorebsmith/chai-counter/src/common"
	"github.com/onemorebsmith/chai-counter/src/counter"
	"github.com/onemorebsmith/chai-counter/src/ens"
	"github.com/onemorebsmith/chai-counter/src/output"
	"github.com/onemorebsmith/chai-counter/src/postgres"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type registry interface {
	counter.IdentityStore
	counter.CompletionStore
}

func main() {
	pwd, _ := os.Getwd()
	cfg := counter.DefaultConfig()

	fullPath := path.Join(pwd, "config.yaml")
	if rawCfg, err := os.ReadFile(fullPath); err == nil {
		log.Printf("loading config @ `%s`", fullPath)
		if err := yaml.Unmarshal(rawCfg, &cfg); err != nil {
			log.Printf("failed parsing config file: %s", err)
			os.Exit(1)
		}
	}
	if err := godotenv.Load(path.Join(pwd, ".env")); err == nil {
		log.Printf("loaded environment from .env")
	}
	cfg.ApplyEnv(os.LookupEnv)

	migrate := false
	flag.StringVar(&cfg.Period, "period", cfg.Period, "run period in yyyy-mm-dd, also the chat log folder")
	flag.StringVar(&cfg.WindowStart, "af", cfg.WindowStart, "start of the project completion window")
	flag.StringVar(&cfg.WindowEnd, "bf", cfg.WindowEnd, "end of the project completion window")
	flag.StringVar(&cfg.EthEndpoint, "eth", cfg.EthEndpoint, "ethereum json-rpc endpoint used for ENS lookups")
	flag.StringVar(&cfg.Registry, "registry", cfg.Registry, "identity and completion registry, `airtable` or `postgres`")
	flag.StringVar(&cfg.PostgresConfig, "pg", cfg.PostgresConfig, "config string for the postgres connection")
	flag.StringVar(&cfg.RedisConfig, "redis", cfg.RedisConfig, "redis address for the run lock, empty disables locking")
	flag.StringVar(&cfg.ChatLogDir, "logs", cfg.ChatLogDir, "directory holding the chat exports per period")
	flag.StringVar(&cfg.DistributionDir, "out", cfg.DistributionDir, "directory for distribution files")
	flag.StringVar(&cfg.AuditDir, "audit", cfg.AuditDir, "directory for audit files")
	flag.StringVar(&cfg.PromPushURL, "prom", cfg.PromPushURL, "prometheus pushgateway url, empty disables pushing")
	flag.StringVar(&cfg.LogFile, "logfile", cfg.LogFile, "also write json logs to this file")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "debug logging")
	flag.BoolVar(&migrate, "migrate", false, "apply the postgres schema before running")
	flag.Parse()

	log.Println("----------------------------------")
	log.Printf("initializing chai counter")
	log.Printf("\tperiod:        %s", cfg.Period)
	log.Printf("\twindow:        %s - %s", cfg.WindowStart, cfg.WindowEnd)
	log.Printf("\tregistry:      %s", cfg.Registry)
	log.Printf("\tchai/p2p:      %d", cfg.ChaiPerP2P)
	log.Printf("\tchai/project:  %d", cfg.ChaiPerProject)
	log.Printf("\ttoken:         %s", cfg.TokenAddress)
	log.Printf("\tchat logs:     %s", cfg.ChatLogDir)
	log.Printf("\toutput:        %s", cfg.DistributionDir)
	log.Printf("\taudit:         %s", cfg.AuditDir)
	log.Printf("\tredis:         %s", cfg.RedisConfig)
	log.Println("----------------------------------")

	if err := cfg.Validate(); err != nil {
		log.Printf("%s", err)
		os.Exit(1)
	}

	level := zap.InfoLevel
	if cfg.Debug {
		level = zap.DebugLevel
	}
	logger, flush := common.ConfigureZapWithFile(level, cfg.LogFile)
	defer flush()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, &cfg, migrate, logger); err != nil {
		logger.Error("run failed", zap.String("reason", counter.ErrorCode(err)), zap.Error(err))
		flush()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *counter.CounterConfig, migrate bool, logger *zap.Logger) error {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.RetryPolicy().Timeout)
	names, err := ens.Dial(dialCtx, cfg.EthEndpoint, cfg.NameLookupsPerSecond, logger)
	cancel()
	if err != nil {
		return err
	}
	defer names.Close()

	var reg registry
	switch cfg.Registry {
	case counter.RegistryPostgres:
		store := postgres.NewStore(cfg.PostgresConfig)
		if err := store.Ping(ctx); err != nil {
			return err
		}
		if migrate {
			if err := store.Migrate(ctx); err != nil {
				return err
			}
		}
		reg = store
	default:
		client, err := airtable.NewClient(airtable.AirtableConfig{
			APIKey:         cfg.AirtableAPIKey,
			IdentityBase:   cfg.IdentityBase,
			CompletionBase: cfg.CompletionBase,
			Timeout:        cfg.RetryPolicy().Timeout,
		}, logger)
		if err != nil {
			return err
		}
		reg = client
	}

	deps := counter.Deps{
		Activity:    chatlog.NewDirSource(cfg.ChatLogDir, cfg.Period, logger),
		Identities:  reg,
		Completions: reg,
		Names:       names,
		Output:      output.NewCSVWriter(cfg.DistributionDir, cfg.AuditDir, logger),
	}
	if cfg.RedisConfig != "" {
		rd, err := cache.ConfigureRedis(ctx, cfg.RedisConfig)
		if err != nil {
			return err
		}
		defer rd.Close()
		deps.Lock = cache.NewRunLock(rd, cache.DefaultLockKey)
	}

	report, err := counter.NewCounter(cfg, deps, logger).DoRunOnce(ctx, time.Now())
	if report != nil {
		log.Println("----------------------------------")
		log.Printf("run %s", report.RunID)
		log.Printf("\tp2p:           %d CHAI to %d recipients, %d skipped", report.P2P.Amount, report.P2P.Recipients, report.P2P.Skipped)
		log.Printf("\tcompletions:   %d CHAI to %d recipients, %d skipped", report.Completions.Amount, report.Completions.Recipients, report.Completions.Skipped)
		log.Printf("\tmarked done:   %d", len(report.Completions.Consumed))
		log.Printf("\twithheld:      %d", len(report.Completions.Withheld))
		log.Println("----------------------------------")
	}
	return err
}
