// Command ingest loads the diagnostic corpus (DTC definitions and NHTSA
// recalls) into the store and announces a reindex over NATS.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/AutoSenseAI/autosense/cmd/ingest/nhtsa"
	"github.com/AutoSenseAI/autosense/engine/domain"
	"github.com/AutoSenseAI/autosense/engine/ingest"
	"github.com/AutoSenseAI/autosense/pkg/fn"
	"github.com/AutoSenseAI/autosense/pkg/natsutil"
	"github.com/AutoSenseAI/autosense/pkg/store"
	"github.com/AutoSenseAI/autosense/pkg/vehiclenlp"
)

// fetchWorkers bounds concurrent NHTSA fetches; the client's rate limiter
// still caps the request rate.
const fetchWorkers = 4

func main() {
	_ = godotenv.Load()

	var (
		dbPath  = flag.String("db", envOr("AUTOSENSE_DB", "autosense.db"), "sqlite database path")
		csvPath = flag.String("csv", "", "DTC definitions CSV (code,category,description); sample set when empty")
		vins    = flag.String("vins", "", "comma-separated VINs to fetch recalls for; sample VINs when empty")
		vehs    = flag.String("vehicles", "", `semicolon-separated vehicle descriptions, e.g. "2018 Honda Civic; 2019 Toyota Camry"`)
		natsURL = flag.String("nats", envOr("NATS_URL", ""), "NATS server URL; skip reindex event when empty")
		offline = flag.Bool("offline", false, "use bundled sample recalls instead of calling NHTSA")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(*dbPath, *csvPath, *vins, *vehs, *natsURL, *offline, logger); err != nil {
		logger.Error("ingest failed", "err", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(dbPath, csvPath, vinList, vehicleList, natsURL string, offline bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	dtcs, err := loadDTCs(csvPath)
	if err != nil {
		return err
	}
	if err := db.UpsertDTCs(ctx, dtcs); err != nil {
		return fmt.Errorf("upsert dtcs: %w", err)
	}
	logger.Info("dtc definitions loaded", "count", len(dtcs), "source", dtcSource(csvPath))

	recalls := loadRecalls(ctx, vinList, vehicleList, offline, logger)
	if err := db.UpsertRecalls(ctx, recalls); err != nil {
		return fmt.Errorf("upsert recalls: %w", err)
	}
	logger.Info("recalls loaded", "count", len(recalls))

	if natsURL == "" {
		logger.Info("no NATS URL configured, skipping reindex event")
		return nil
	}
	nc, err := natsutil.Connect(natsURL, "autosense-ingest", logger)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	if err := ingest.PublishReindex(ctx, nc, "corpus ingest"); err != nil {
		return fmt.Errorf("publish reindex: %w", err)
	}
	logger.Info("reindex event published", "subject", ingest.ReindexSubject)
	return nil
}

func loadDTCs(csvPath string) ([]domain.DiagnosticDocument, error) {
	if csvPath == "" {
		return sampleDTCs(), nil
	}
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return loadDTCCSV(f)
}

func dtcSource(csvPath string) string {
	if csvPath == "" {
		return "sample"
	}
	return csvPath
}

// loadRecalls fetches recall campaigns from NHTSA, per VIN and per
// free-text vehicle description. Anything that fails to resolve is logged
// and skipped; if nothing resolves at all the bundled sample recalls keep
// the corpus usable.
func loadRecalls(ctx context.Context, vinList, vehicleList string, offline bool, logger *slog.Logger) []domain.DiagnosticDocument {
	if offline {
		return sampleRecalls()
	}

	vins := sampleVINs
	if vinList != "" {
		vins = nil
		for _, v := range strings.Split(vinList, ",") {
			if v = strings.TrimSpace(v); v != "" {
				vins = append(vins, strings.ToUpper(v))
			}
		}
	}

	client := nhtsa.NewClient(logger)
	perVIN := fn.ParMap(vins, fetchWorkers, func(vin string) []domain.DiagnosticDocument {
		recs, err := client.RecallsForVIN(ctx, vin)
		if err != nil {
			logger.Warn("recall fetch failed", "vin", vin, "err", err)
			return nil
		}
		return recs
	})
	var docs []domain.DiagnosticDocument
	for _, recs := range perVIN {
		docs = append(docs, recs...)
	}
	docs = append(docs, vehicleRecalls(ctx, client, vehicleList, logger)...)

	if len(docs) == 0 {
		logger.Warn("no recalls fetched from NHTSA, falling back to sample data")
		return sampleRecalls()
	}
	return dedupeRecalls(docs)
}

// dedupeRecalls keeps the first document per campaign number; the same
// campaign can come back for several VINs of one model year.
func dedupeRecalls(docs []domain.DiagnosticDocument) []domain.DiagnosticDocument {
	return fn.UniqueBy(docs, func(d domain.DiagnosticDocument) string { return d.RecallID })
}

// vehicleRecalls resolves plain-language vehicle descriptions ("2018 Honda
// Civic") and fetches their campaigns. These documents carry no VIN, so
// they surface through text search rather than VIN lookup.
func vehicleRecalls(ctx context.Context, client *nhtsa.Client, vehicleList string, logger *slog.Logger) []domain.DiagnosticDocument {
	descs := fn.Filter(
		fn.Map(strings.Split(vehicleList, ";"), strings.TrimSpace),
		func(s string) bool { return s != "" },
	)

	var docs []domain.DiagnosticDocument
	for _, desc := range descs {
		m, ok := vehiclenlp.Parse(desc)
		if !ok || !m.Complete() {
			logger.Warn("could not resolve vehicle description", "description", desc)
			continue
		}
		recs, err := client.RecallsForVehicle(ctx, nhtsa.Vehicle{
			Make:  m.Make,
			Model: m.Model,
			Year:  strconv.Itoa(m.Year),
		})
		if err != nil {
			logger.Warn("recall fetch failed", "description", desc, "err", err)
			continue
		}
		docs = append(docs, recs...)
	}
	return docs
}
