package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/npezzotti/go-alumnichat/internal/admin/ui"
	"github.com/npezzotti/go-alumnichat/internal/api"
	"github.com/npezzotti/go-alumnichat/internal/chatclient"
	"github.com/npezzotti/go-alumnichat/internal/config"
	"github.com/npezzotti/go-alumnichat/internal/types"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8000", "chat server base URL")
	token := flag.String("token", os.Getenv("CHAT_ADMIN_TOKEN"), "admin bearer token; minted from SIGNING_KEY when empty")
	envFile := flag.String("env-file", ".env", "optional dotenv file used to mint a token")
	userId := flag.String("user", "admin", "user id of the minted token")
	flag.Parse()

	if *token == "" {
		t, err := mintToken(*envFile, *userId)
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		*token = t
	}

	client, err := chatclient.New(*serverURL, *token)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	p := tea.NewProgram(ui.NewRootModel(client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mintToken(envFile, userId string) (string, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return "", fmt.Errorf("config: %w", err)
	}

	return api.NewToken(cfg.SigningKey, userId, types.RoleAdmin, 12*time.Hour)
}
