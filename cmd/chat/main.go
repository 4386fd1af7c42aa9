package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"crawlmind/internal/bootstrap"
	"crawlmind/internal/config"
	"crawlmind/internal/tui"
)

func main() {
	var (
		identity  string
		sessionID string
		apiKey    string
	)
	flag.StringVar(&identity, "identity", "", "knowledge base identity (empty for the single-tenant store)")
	flag.StringVar(&sessionID, "session", "tui", "session id to resume")
	flag.StringVar(&apiKey, "api-key", os.Getenv("LLM_API_KEY"), "LLM API key")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	// The drop folder belongs to the server process.
	cfg.Watch.Enabled = false

	ctx := context.Background()
	// The logger stays a no-op here; log lines would tear the terminal UI.
	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	defer app.Close()

	sess, err := app.Sessions.Open(ctx, identity, sessionID, apiKey)
	if err != nil {
		log.Fatalf("open session failed: %v", err)
	}

	model := tui.New(ctx, app.Ingestion, app.Query, app.Sessions, sess)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
