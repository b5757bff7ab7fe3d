package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RichardoC/streampad/internal/api"
	"github.com/RichardoC/streampad/internal/chat"
	"github.com/RichardoC/streampad/internal/config"
	"github.com/RichardoC/streampad/internal/llm"
	"github.com/RichardoC/streampad/internal/models"
	"github.com/RichardoC/streampad/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "streampad",
	Short: "Browser-based streaming chat client with local session history",
	RunE:  run,
	// Errors are logged by run itself; cobra should not repeat them.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return err
	}
	if cfg.APIKey == "" {
		logger.Warn("no API key configured, sends will fail until one is set")
	}

	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open session store",
			zap.Error(err),
			zap.String("dbPath", cfg.DBPath))
		return err
	}
	defer st.Close()

	llmCfg := llm.Config{
		BaseURL:         cfg.BaseURL,
		APIKey:          cfg.APIKey,
		Model:           cfg.Model,
		TitleModel:      cfg.TitleModel,
		MaxPromptTokens: cfg.MaxPromptTokens,
	}
	client := llm.NewClient(llmCfg, logger)
	titler := llm.NewTitler(llmCfg, logger)
	controller := chat.NewController(streamer{client}, titler, st, logger)

	commands := make(chan chat.Command, 16)
	handler := api.NewHandler(controller, commands, logger)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("/", http.FileServer(http.Dir(cfg.WebDir)))

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		controller.RunCommands(ctx, commands, handler.Input(), nil)
		return nil
	})
	g.Go(func() error {
		logger.Info("starting server", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	// Let a pending title write land in the store before the process exits.
	controller.Wait()
	if err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

// streamer adapts the concrete client to the controller's interface.
type streamer struct {
	client *llm.Client
}

func (s streamer) StreamChat(ctx context.Context, history []models.Message) (chat.DeltaStream, error) {
	r, err := s.client.StreamChat(ctx, history)
	if err != nil {
		return nil, err
	}
	return r, nil
}
