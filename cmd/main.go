package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/embeddings"

	"agentic-rag/internal/config"
	"agentic-rag/internal/embedding"
	"agentic-rag/internal/helper"
	"agentic-rag/internal/ingest"
	"agentic-rag/internal/llmservice"
	"agentic-rag/internal/rag"
	"agentic-rag/internal/retriever"
	"agentic-rag/internal/tui"
)

const configFilePath = "./configs/config.yaml"

func main() {
	var configPath, logLevel string
	setupLogger(os.Stderr, "info")

	rootCmd := &cobra.Command{
		Use:   "agentic-rag",
		Short: "Answer questions about a document with retrieval-augmented generation",
		Long:  "Ingest a PDF into a Supabase pgvector index and a local chromem index, then ask grounded questions about it from a terminal chat.",
		// chat is the default when no subcommand is given
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), configPath, logLevel)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", configFilePath, "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")

	rootCmd.AddCommand(createIngestCommand(&configPath, &logLevel))
	rootCmd.AddCommand(createChatCommand(&configPath, &logLevel))
	rootCmd.AddCommand(createAskCommand(&configPath, &logLevel))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func createIngestCommand(configPath, logLevel *string) *cobra.Command {
	var filePath string
	var dryRun, recreate bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load, chunk and embed the document into the vector indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *logLevel, os.Stderr)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var embedder embeddings.Embedder
			if !dryRun {
				embedder, err = embedding.NewEmbedder(ctx, &cfg.EmbedLLM, cfg.RAG.BatchSize)
				if err != nil {
					return err
				}
			}

			report, err := ingest.NewFromConfig(cfg, embedder, ingest.Options{
				Document: filePath,
				DryRun:   dryRun,
				Recreate: recreate,
				Out:      cmd.OutOrStdout(),
			}).Run(ctx)
			if err != nil {
				return err
			}
			if report.Aborted {
				fmt.Fprintln(cmd.ErrOrStderr(), report.Message)
				return nil
			}
			if !dryRun {
				log.Info().
					Int("chunks", report.Chunks).
					Str("hosted", report.HostedStatus).
					Int("local_docs", report.LocalDocs).
					Bool("snapshot", report.SnapshotSaved).
					Msg("Ingestion complete")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Document to ingest (default from config: "+config.DefaultDocumentPath+")")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the chunks instead of embedding and storing them")
	cmd.Flags().BoolVar(&recreate, "recreate", false, "Drop the hosted index before writing")

	return cmd
}

func createChatCommand(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive terminal chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), *configPath, *logLevel)
		},
	}
}

func createAskCommand(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and print the answer as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *logLevel, os.Stderr)
			if err != nil {
				return err
			}
			pipeline, err := buildPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			answer, err := pipeline.Ask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			helper.FprettyPrint(cmd.OutOrStdout(), answer)
			return nil
		},
	}
}

func runChat(ctx context.Context, configPath, logLevel string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	// the TUI owns the terminal, so logs go to a file
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	configureLogging(cfg, logLevel, logFile)

	pipeline, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	p := tea.NewProgram(tui.New(ctx, pipeline, probeBackend(ctx, cfg)), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}

// loadConfig reads the config and points the global logger at out.
func loadConfig(path, levelFlag string, out io.Writer) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	configureLogging(cfg, levelFlag, out)
	log.Debug().Str("config", path).Str("provider", cfg.LLM.Provider).Bool("hosted", cfg.HostedEnabled()).Msg("Loaded config")
	return cfg, nil
}

func configureLogging(cfg *config.Config, levelFlag string, out io.Writer) {
	level := cfg.LogLevel
	if levelFlag != "" {
		level = levelFlag
	}
	setupLogger(out, level)
}

func setupLogger(out io.Writer, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

// buildPipeline creates the model clients once; the retriever chain runs
// again for every question.
func buildPipeline(ctx context.Context, cfg *config.Config) (*rag.Pipeline, error) {
	model, err := llmservice.NewChatModel(ctx, &cfg.LLM)
	if err != nil {
		return nil, err
	}
	embedder, err := embedding.NewEmbedder(ctx, &cfg.EmbedLLM, cfg.RAG.BatchSize)
	if err != nil {
		return nil, err
	}

	backends := retriever.DefaultBackends(cfg)
	opts := retrieverOptions(cfg)
	open := func(ctx context.Context) (rag.ContextRetriever, error) {
		r, err := retriever.Open(ctx, backends, embedder, opts)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return rag.NewPipeline(open, model), nil
}

func retrieverOptions(cfg *config.Config) retriever.Options {
	return retriever.Options{K: cfg.RAG.TopK, FetchK: cfg.RAG.FetchK, Lambda: cfg.RAG.MMRLambda}
}

// probeBackend names the index the chat will use, for the header only.
func probeBackend(ctx context.Context, cfg *config.Config) string {
	r, err := retriever.Open(ctx, retriever.DefaultBackends(cfg), nil, retrieverOptions(cfg))
	if err != nil {
		return "none (run ingest)"
	}
	defer r.Close()
	return r.Backend()
}
