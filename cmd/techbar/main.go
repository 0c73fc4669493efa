package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hiroq/techbar/internal/profile"
	"github.com/hiroq/techbar/server"
	"github.com/hiroq/techbar/server/ai"
	"github.com/hiroq/techbar/server/chat"
	"github.com/hiroq/techbar/server/hub"
	"github.com/hiroq/techbar/store"
	"github.com/hiroq/techbar/store/db"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "techbar",
	Short: "Late-night tech bar: a shared chat room tended by an AI bartender",
	RunE: func(_ *cobra.Command, _ []string) error {
		serverProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version,
		}
		serverProfile.FromEnv()
		if err := serverProfile.Validate(); err != nil {
			return err
		}
		return run(serverProfile)
	},
}

func init() {
	rootCmd.PersistentFlags().String("mode", "dev", `mode of the server, can be "dev" or "prod"`)
	rootCmd.PersistentFlags().String("addr", "", "address of the server")
	rootCmd.PersistentFlags().Int("port", 8080, "port of the server")
	rootCmd.PersistentFlags().String("driver", "postgres", `database driver, "postgres" or "sqlite"`)
	rootCmd.PersistentFlags().String("dsn", "", "database connection string")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("techbar")
	viper.AutomaticEnv()
}

func run(serverProfile *profile.Profile) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbDriver, err := db.NewDBDriver(serverProfile)
	if err != nil {
		return err
	}
	if err := dbDriver.Migrate(ctx); err != nil {
		return err
	}

	storeInstance := store.New(dbDriver, serverProfile)

	connectionHub := hub.New()

	var embedder chat.Embedder
	var completer chat.Completer
	if serverProfile.IsAIEnabled() {
		provider, err := ai.NewProvider(ai.NewConfigFromProfile(serverProfile))
		if err != nil {
			return err
		}
		embedder = provider
		completer = provider
		storeInstance.SetEmbedder(provider)
		slog.Info("AI provider enabled",
			"embedding_model", serverProfile.AIEmbeddingModel,
			"chat_model", serverProfile.AIChatModel)
	} else {
		slog.Warn("AI provider disabled: the bartender will not speak")
	}

	retriever := chat.NewRetriever(storeInstance, embedder)
	chatService := chat.NewService(storeInstance, retriever, completer, connectionHub, chat.Options{
		WelcomeDelay:         serverProfile.WelcomeDelay,
		ReplyDelay:           serverProfile.ReplyDelay,
		PresenceTimeout:      serverProfile.PresenceTimeout,
		RecentLimit:          5,
		MaxConcurrentReplies: 4,
	})

	s := server.NewServer(serverProfile, storeInstance, chatService, connectionHub)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received")
		s.Shutdown(context.Background())
		cancel()
	}()

	if err := s.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
	}
	<-ctx.Done()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
}
