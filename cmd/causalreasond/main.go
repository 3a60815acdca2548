// Package main is the causalreasond daemon entry point: it wires up the
// reasoning engine, exposes a one-shot "reason" command for scripting
// and a long-running "serve" command, and handles graceful shutdown with
// a signal handler and a bounded shutdown window.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cogpy/causalreason/core/contracts"
	"github.com/cogpy/causalreason/core/engine"
	"github.com/cogpy/causalreason/core/memstore"
)

var (
	checkpointPath string
	historyPath    string
	dgraphEndpoint string
	devLogging     bool
)

func main() {
	root := &cobra.Command{
		Use:   "causalreasond",
		Short: "Self-improving causal reasoning engine",
		Long:  "A reasoning daemon fusing pattern recall, causal graph traversal, and GNN-enhanced contextual embeddings, trained continuously from trajectory feedback.",
	}

	root.PersistentFlags().StringVar(&checkpointPath, "checkpoint", "data/checkpoint.json", "GNN weight checkpoint path")
	root.PersistentFlags().StringVar(&historyPath, "history-db", "data/training.db", "training history sqlite path")
	root.PersistentFlags().StringVar(&dgraphEndpoint, "dgraph", "", "Dgraph endpoint for causal graph persistence (empty disables it)")
	root.PersistentFlags().BoolVar(&devLogging, "dev", false, "use development (console) logging instead of production JSON logging")

	root.AddCommand(serveCmd(), reasonCmd(), healthCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if devLogging {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func buildEngine(ctx context.Context, log *zap.Logger) (*engine.Engine, error) {
	cfg := engine.DefaultConfig()
	cfg.CheckpointPath = checkpointPath
	cfg.HistoryPath = historyPath
	cfg.DgraphEndpoint = dgraphEndpoint
	return engine.New(ctx, cfg, log)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reasoning engine until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer log.Sync()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			eng, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("build engine: %w", err)
			}
			if err := eng.Start(ctx); err != nil {
				return fmt.Errorf("start engine: %w", err)
			}
			log.Info("causalreasond started", zap.String("checkpoint", checkpointPath), zap.String("history_db", historyPath))

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigChan
			log.Info("received signal, shutting down", zap.String("signal", sig.String()))

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := eng.PersistGraph(shutdownCtx); err != nil {
				log.Warn("failed to persist causal graph on shutdown", zap.Error(err))
			}
			if err := eng.Close(); err != nil {
				log.Warn("error during shutdown", zap.Error(err))
			}
			return nil
		},
	}
}

func reasonCmd() *cobra.Command {
	var mode, query string
	var maxResults int
	var confidence float64
	var enhance bool

	cmd := &cobra.Command{
		Use:   "reason",
		Short: "Run a single reasoning request and print the JSON response",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer log.Sync()

			ctx := cmd.Context()
			eng, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("build engine: %w", err)
			}
			defer eng.Close()

			embedder := memstore.HashEmbedder{}
			embedding, err := embedder.Embed(ctx, query)
			if err != nil {
				return fmt.Errorf("embed query: %w", err)
			}

			resp, err := eng.Reason(ctx, contracts.ReasoningRequest{
				QueryEmbedding:      embedding,
				Mode:                contracts.Mode(mode),
				MaxResults:          maxResults,
				ConfidenceThreshold: confidence,
				EnhanceWithGNN:      enhance,
			})
			if err != nil {
				return fmt.Errorf("reason: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(contracts.ModeHybrid), "pattern | causal | contextual | hybrid | abductive | counterfactual | temporal | constraint")
	cmd.Flags().StringVar(&query, "query", "", "query text to embed and reason over")
	cmd.Flags().IntVar(&maxResults, "max-results", 10, "maximum results per mode")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.0, "minimum confidence threshold")
	cmd.Flags().BoolVar(&enhance, "enhance", true, "route the query embedding through the GNN enhancer first")
	cmd.MarkFlagRequired("query")
	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Build the engine, print its health report, and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer log.Sync()

			ctx := cmd.Context()
			eng, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("build engine: %w", err)
			}
			defer eng.Close()

			if err := eng.Start(ctx); err != nil {
				return fmt.Errorf("start engine: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(eng.Health())
		},
	}
}
