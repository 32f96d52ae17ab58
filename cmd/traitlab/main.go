package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/traitlab/internal/api"
	"github.com/knowledge-engine/traitlab/internal/config"
	"github.com/knowledge-engine/traitlab/internal/corpus"
	"github.com/knowledge-engine/traitlab/internal/engine"
	"github.com/knowledge-engine/traitlab/internal/storage"
)

func main() {
	corpusPath := flag.String("corpus", "", "corpus CSV file (overrides STORAGE_CORPUS_PATH)")
	serve := flag.Bool("serve", false, "serve the HTTP API while and after the sweep runs")
	export := flag.String("export", "", "write the sweep results to this CSV file")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	// Setup Logging
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	entry := logger.WithField("service", "traitlab")

	// 1. Config
	cfg := config.Load()
	if *corpusPath != "" {
		cfg.Storage.CorpusPath = *corpusPath
	}
	if *serve {
		cfg.Server.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		entry.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Storage
	var store storage.ResultStore
	if cfg.Storage.ResultsDB != "" {
		s, err := storage.NewSQLiteResultStore(cfg.Storage.ResultsDB)
		if err != nil {
			entry.Fatalf("Failed to initialize result store: %v", err)
		}
		defer s.Close()
		store = s
	}

	// 3. Traits and corpus
	traits := corpus.DefaultTraits()
	if cfg.Sweep.TraitsFile != "" {
		loaded, err := corpus.LoadTraits(cfg.Sweep.TraitsFile)
		if err != nil {
			entry.Fatalf("Failed to load traits: %v", err)
		}
		traits = loaded
	}
	traits, err := corpus.SelectTraits(traits, cfg.Sweep.Traits)
	if err != nil {
		entry.Fatalf("Failed to select traits: %v", err)
	}

	c, err := corpus.LoadFile(cfg.Storage.CorpusPath)
	if err != nil {
		entry.Fatalf("Failed to load corpus: %v", err)
	}
	entry.WithFields(logrus.Fields{
		"path":      cfg.Storage.CorpusPath,
		"documents": c.Len(),
	}).Info("Corpus loaded")

	// 4. Engine
	eng, err := engine.NewEngine(cfg, entry, store)
	if err != nil {
		entry.Fatalf("Failed to initialize engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. API Server
	if cfg.Server.Enabled {
		server := api.NewServer(eng, entry)
		go func() {
			if err := server.Start(cfg.Server.Addr); err != nil {
				entry.Fatal(err)
			}
		}()
	}

	// 6. Sweep
	results, err := eng.Run(ctx, c, traits)
	if err != nil {
		entry.Errorf("Sweep failed after %d experiments: %v", len(results), err)
	}

	if *export != "" {
		if err := exportCSV(*export, results); err != nil {
			entry.Errorf("Failed to export results: %v", err)
		} else {
			entry.WithField("path", *export).Infof("Exported %d results", len(results))
		}
	}

	if cfg.Server.Enabled && ctx.Err() == nil {
		entry.Info("Sweep done, API still serving; interrupt to exit")
		<-ctx.Done()
	}
}

func exportCSV(path string, results []storage.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := storage.WriteCSV(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
