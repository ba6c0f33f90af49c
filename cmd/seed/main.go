package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/npezzotti/go-alumnichat/internal/config"
	"github.com/npezzotti/go-alumnichat/internal/database"
	"github.com/npezzotti/go-alumnichat/internal/seed"
)

func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file with configuration")
	fixturePath := flag.String("file", "fixtures/dev.yaml", "YAML fixture of users and connections")
	flag.Parse()

	logger := log.New(os.Stderr, "[alumnichat-seed] ", log.LstdFlags)

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	fixture, err := seed.Load(*fixturePath)
	if err != nil {
		logger.Fatal(err)
	}

	repo, err := database.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer repo.Close()

	if err := repo.Migrate(); err != nil {
		logger.Fatal("db migrate: ", err)
	}

	res, err := seed.Apply(context.Background(), repo, fixture)
	if err != nil {
		logger.Fatal("seed: ", err)
	}

	logger.Printf("seeded %d users and %d connections from %s\n", res.Users, res.Connections, *fixturePath)
}
