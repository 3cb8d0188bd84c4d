// Package main is the entry point for the market simulator.
//
// A single invocation runs one seed and writes the NDJSON event log; batch
// mode (--runs N) replays a range of seeds concurrently and aggregates the
// per-year summary rows into one CSV. Each run is fully self-contained:
// runs share no mutable state, so batch concurrency cannot perturb the
// per-seed event streams.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/marketsim/internal/config"
	"github.com/aristath/marketsim/internal/database"
	"github.com/aristath/marketsim/internal/eventindex"
	"github.com/aristath/marketsim/internal/market"
	"github.com/aristath/marketsim/internal/money"
	"github.com/aristath/marketsim/internal/summary"
	"github.com/aristath/marketsim/pkg/logger"
)

type runResult struct {
	seed   uint64
	market *market.Market
	stats  []summary.YearStats
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	seed := flag.Uint64("seed", cfg.Seed, "master seed for the first run")
	runs := flag.Int("runs", cfg.Runs, "number of consecutive seeds to replay")
	years := flag.Int("years", cfg.AnalysisYears, "analysis horizon in years")
	output := flag.String("output", cfg.OutputPath, "event log path (suffixed with the seed in batch mode)")
	csvPath := flag.String("csv", cfg.CSVPath, "optional per-year summary CSV path")
	indexPath := flag.String("index", cfg.IndexPath, "optional SQLite run index path")
	quiet := flag.Bool("quiet", cfg.Quiet, "suppress non-error output")
	flag.Parse()

	cfg.Seed = *seed
	cfg.Runs = *runs
	cfg.AnalysisYears = *years
	cfg.OutputPath = *output
	cfg.CSVPath = *csvPath
	cfg.IndexPath = *indexPath
	cfg.Quiet = *quiet

	outputSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "output" {
			outputSet = true
		}
	})

	level := cfg.LogLevel
	if cfg.Quiet {
		level = "error"
	}
	log := logger.New(logger.Config{Level: level, Pretty: !cfg.Quiet})
	log = log.With().Str("run_id", uuid.New().String()).Logger()

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Batch mode discards per-seed event logs unless an output path was
	// given explicitly; the CSV is the batch's data product.
	writeEvents := cfg.Runs == 1 || outputSet

	results := make([]*runResult, cfg.Runs)
	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())

	initialCapital := money.Cents(cfg.Insurers.Count) * cfg.Insurers.InitialCapital

	for i := 0; i < cfg.Runs; i++ {
		i := i
		runSeed := cfg.Seed + uint64(i)
		g.Go(func() error {
			path := ""
			if writeEvents {
				path = eventPath(cfg.OutputPath, runSeed, cfg.Runs > 1)
			}
			m, err := runOne(cfg, runSeed, path, log)
			if err != nil {
				return fmt.Errorf("seed %d: %w", runSeed, err)
			}
			results[i] = &runResult{
				seed:   runSeed,
				market: m,
				stats:  summary.Aggregate(m.Records(), cfg.TotalYears(), initialCapital),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Simulation failed")
	}

	sort.Slice(results, func(i, j int) bool { return results[i].seed < results[j].seed })

	if cfg.CSVPath != "" {
		if err := writeCSV(cfg, results); err != nil {
			log.Fatal().Err(err).Msg("Failed to write summary CSV")
		}
		log.Info().Str("path", cfg.CSVPath).Msg("summary CSV written")
	}

	if cfg.IndexPath != "" {
		if err := writeIndex(cfg, results, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to write run index")
		}
		log.Info().Str("path", cfg.IndexPath).Msg("run index written")
	}
}

// runOne executes a single seed, streaming events to path when non-empty.
func runOne(cfg *config.Config, seed uint64, path string, log zerolog.Logger) (*market.Market, error) {
	var m *market.Market
	if path == "" {
		m = market.New(cfg, seed, log, nil)
		if err := m.Run(); err != nil {
			return nil, err
		}
		return m, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create event log %s: %w", path, err)
	}
	m = market.New(cfg, seed, log, f)
	if err := m.Run(); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close event log %s: %w", path, err)
	}
	return m, nil
}

// eventPath suffixes the configured path with the seed in batch mode:
// events.ndjson -> events.42.ndjson.
func eventPath(path string, seed uint64, batch bool) string {
	if !batch {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s.%d%s", strings.TrimSuffix(path, ext), seed, ext)
}

func writeCSV(cfg *config.Config, results []*runResult) error {
	f, err := os.Create(cfg.CSVPath)
	if err != nil {
		return fmt.Errorf("create summary CSV %s: %w", cfg.CSVPath, err)
	}
	defer f.Close()

	for i, r := range results {
		if err := summary.WriteCSV(f, r.seed, r.stats, cfg.Insurers.ExpenseLoad, i == 0); err != nil {
			return err
		}
	}
	return nil
}

func writeIndex(cfg *config.Config, results []*runResult, log zerolog.Logger) error {
	db, err := database.New(database.Config{Path: cfg.IndexPath, Name: "runindex"})
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := eventindex.NewStore(db, log)
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := store.SaveRun(r.seed, r.market.Records(), r.stats); err != nil {
			return err
		}
	}
	return nil
}
