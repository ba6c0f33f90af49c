package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/npezzotti/go-alumnichat/internal/api"
	"github.com/npezzotti/go-alumnichat/internal/config"
	"github.com/npezzotti/go-alumnichat/internal/database"
	"github.com/npezzotti/go-alumnichat/internal/messaging"
	"github.com/npezzotti/go-alumnichat/internal/server"
	"github.com/npezzotti/go-alumnichat/internal/stats"
)

func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file with configuration")
	flag.Parse()

	logger := log.New(os.Stderr, "[alumnichat] ", log.LstdFlags)

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	repo, err := database.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	if err := repo.Migrate(); err != nil {
		logger.Fatal("db migrate: ", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(logger, mux)
	statsUpdater.RegisterDefaults()
	statsUpdater.Run()
	defer statsUpdater.Stop()

	chatServer := server.NewChatServer(logger, statsUpdater)
	go chatServer.Run()

	svc := messaging.NewService(logger, repo, chatServer, statsUpdater,
		messaging.WithMaxMessageLength(cfg.MaxMessageLength),
	)

	srv := api.NewGoChatApp(mux, logger, chatServer, svc, repo, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutdownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
