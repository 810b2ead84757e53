package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ansuz/internal"
	pkgconfig "github.com/starford/ansuz/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfExists(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}
	if cmd.Bool("mcp") {
		opts = append(opts, internal.WithMCP())
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

// call performs an authenticated request against a running instance and
// prints the JSON response.
func call(ctx context.Context, cmd *cli.Command, method, path string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://localhost%s%s", cfg.App.HTTP.Address(), path)
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	if cfg.Auth.AuthEnabled() {
		req.Header.Set("Authorization", "Bearer "+cfg.Auth.Token)
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed (is the server running?): %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, body)
	}

	var pretty json.RawMessage = body
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:  "ansuz",
		Usage: "Markdown knowledge-base completion service: tags, wikilinks, and link targets over HTTP, SSE, and MCP",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the completion server",
				Action: serve,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "mcp",
						Usage: "Serve MCP over stdio instead of the HTTP API",
					},
				},
			},
			{
				Name:  "refresh",
				Usage: "Invalidate and rebuild extraction caches on a running server",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return call(ctx, cmd, http.MethodPost, "/api/refresh")
				},
			},
			{
				Name:  "status",
				Usage: "Print subsystem statistics from a running server",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return call(ctx, cmd, http.MethodGet, "/api/stats")
				},
			},
			{
				Name:  "bench",
				Usage: "Run a completion latency benchmark on a running server",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "iterations",
						Usage: "Number of benchmark iterations",
						Value: 10,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path := fmt.Sprintf("/api/bench?iterations=%d", cmd.Int("iterations"))
					return call(ctx, cmd, http.MethodPost, path)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
