// Command dkaudit runs the audit reconciliation and streamlining batch job.
//
// Usage:
//
//	dkaudit [-config config.yaml] [-audit-id AB12CD] [-centre RGN01]
//	        [-include-tests] [-live] [-export out.csv] [-s3-bucket audit-exports]
//	        [-log-format text]
//
// Configuration comes from a YAML file when -config is set, otherwise from
// DKAUDIT_* environment variables (a .env file is honoured).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/openclinical/dkaudit"
	"github.com/openclinical/dkaudit/internal/export"
	"github.com/openclinical/dkaudit/internal/monitoring"
	"github.com/openclinical/dkaudit/internal/storage/sqlite"
	"github.com/openclinical/dkaudit/providers/awskeys"
	"github.com/openclinical/dkaudit/providers/s3export"
	"github.com/openclinical/dkaudit/providers/vaultkeys"
)

func main() {
	var (
		configPath   = flag.String("config", "", "path to YAML configuration file")
		auditID      = flag.String("audit-id", "", "restrict the run to one audit identifier")
		centre       = flag.String("centre", "", "restrict the run to one submitting centre")
		includeTests = flag.Bool("include-tests", false, "include test episodes in the streamlined export")
		forceLive    = flag.Bool("live", false, "use the production table set regardless of configuration")
		exportPath   = flag.String("export", "", "write the streamlined CSV to this file after the run")
		s3Bucket     = flag.String("s3-bucket", "", "upload the streamlined CSV to this S3 bucket, overriding configuration")
		logFormat    = flag.String("log-format", "json", "log output format: json or text")
	)
	flag.Parse()

	if err := run(*configPath, *auditID, *centre, *includeTests, *forceLive, *exportPath, *s3Bucket, *logFormat); err != nil {
		fmt.Fprintln(os.Stderr, "dkaudit:", err)
		os.Exit(1)
	}
}

func run(configPath, auditID, centre string, includeTests, forceLive bool, exportPath, s3Bucket, logFormat string) error {
	// A missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()

	format := monitoring.FormatJSON
	if logFormat == "text" {
		format = monitoring.FormatText
	}
	logger := monitoring.NewLogger(monitoring.LoggerConfig{
		Level:     slog.LevelInfo,
		Format:    format,
		Component: "dkaudit",
	})

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if forceLive {
		cfg.LiveTables = true
	}
	if s3Bucket != "" {
		cfg.ExportBucket = s3Bucket
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keys, err := loadKeys(ctx, cfg)
	if err != nil {
		return err
	}
	cipher, err := dkaudit.NewEnvelopeCipher(keys)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DBPath, 0o700); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	store, err := sqlite.Open(filepath.Join(cfg.DBPath, cfg.DBFilename), sqlite.TablesFor(cfg.LiveTables))
	if err != nil {
		return err
	}
	defer store.Close()

	filter := dkaudit.Filter{AuditID: auditID, Centre: centre}

	reconciler := dkaudit.NewReconciliationEngine(store, cipher, logger)
	reconcileReport, err := reconciler.Run(ctx, filter)
	if err != nil {
		return fmt.Errorf("reconciliation: %w", err)
	}

	streamliner := dkaudit.NewStreamliningEngine(store, logger)
	streamlineReport, err := streamliner.Run(ctx, includeTests)
	if err != nil {
		return fmt.Errorf("streamlining: %w", err)
	}

	logger.Info("run complete",
		"processed", reconcileReport.Processed,
		"skipped", reconcileReport.Skipped,
		"merged", reconcileReport.Merged,
		"emitted", streamlineReport.Emitted,
		"deduplicated", streamlineReport.Deduplicated,
	)

	if exportPath == "" && cfg.ExportBucket == "" {
		return nil
	}
	records, err := store.FetchStreamlinedRecords(ctx)
	if err != nil {
		return fmt.Errorf("fetch streamlined records: %w", err)
	}
	if exportPath != "" {
		if err := exportToFile(exportPath, records); err != nil {
			return err
		}
		logger.Info("export written", "path", exportPath, "records", len(records))
	}
	if cfg.ExportBucket != "" {
		key := exportObjectKey(cfg.ExportPrefix)
		if err := exportToS3(ctx, cfg, key, records); err != nil {
			return err
		}
		logger.Info("export uploaded", "bucket", cfg.ExportBucket, "key", key, "records", len(records))
	}
	return nil
}

func loadConfig(configPath string) (dkaudit.Config, error) {
	if configPath != "" {
		return dkaudit.LoadConfigFromFile(configPath)
	}
	return dkaudit.LoadConfigFromEnvironment()
}

func loadKeys(ctx context.Context, cfg dkaudit.Config) (dkaudit.KeyMaterial, error) {
	switch cfg.KeySource {
	case dkaudit.KeySourceVault:
		src, err := vaultkeys.New(cfg.VaultSecretPath)
		if err != nil {
			return dkaudit.KeyMaterial{}, err
		}
		return dkaudit.LoadKeyMaterialFromSource(ctx, src)
	case dkaudit.KeySourceAWS:
		src, err := awskeys.New(ctx, cfg.AWSSecretName, awskeys.Config{Region: cfg.AWSRegion})
		if err != nil {
			return dkaudit.KeyMaterial{}, err
		}
		return dkaudit.LoadKeyMaterialFromSource(ctx, src)
	default:
		return dkaudit.LoadKeyMaterialFromFiles(cfg.PublicKeyPath, cfg.PrivateKeyPath)
	}
}

func exportToFile(path string, records []dkaudit.StreamlinedRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := export.WriteCSV(f, records); err != nil {
		f.Close()
		return fmt.Errorf("write export file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	return nil
}

func exportToS3(ctx context.Context, cfg dkaudit.Config, key string, records []dkaudit.StreamlinedRecord) error {
	client, err := s3export.NewClient(ctx, cfg.AWSRegion)
	if err != nil {
		return err
	}
	w := s3export.NewWriter(ctx, client, cfg.ExportBucket, key)
	if err := export.WriteCSV(w, records); err != nil {
		w.Close()
		return fmt.Errorf("write export stream: %w", err)
	}
	return w.Close()
}

func exportObjectKey(prefix string) string {
	name := fmt.Sprintf("streamlined-%s.csv", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name
}
