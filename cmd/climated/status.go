package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

// statusTimeout bounds each request made by the status command.
const statusTimeout = 5 * time.Second

func newStatusCmd(configPath func() string) *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running daemon for health and ingestion counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if baseURL == "" {
				cfg, _, err := loadConfig(configPath())
				if err != nil {
					return err
				}
				host := cfg.API.Host
				if host == "" || host == "0.0.0.0" {
					host = "127.0.0.1"
				}
				scheme := "http"
				if cfg.API.TLS.Enabled {
					scheme = "https"
				}
				baseURL = fmt.Sprintf("%s://%s:%d", scheme, host, cfg.API.Port)
			}

			client := resty.New().
				SetBaseURL(baseURL + "/api/v1").
				SetTimeout(statusTimeout).
				SetHeader("Accept", "application/json")

			out := cmd.OutOrStdout()
			healthy := true
			for _, path := range []string{"/health", "/ingest/stats"} {
				resp, err := client.R().SetContext(cmd.Context()).Get(path)
				if err != nil {
					return fmt.Errorf("querying %s: %w", path, err)
				}
				if resp.IsError() {
					healthy = false
				}

				var body any
				if err := json.Unmarshal(resp.Body(), &body); err != nil {
					return fmt.Errorf("decoding %s response: %w", path, err)
				}
				pretty, _ := json.MarshalIndent(body, "", "  ") //nolint:errcheck // body came from json.Unmarshal
				fmt.Fprintf(out, "%s (%d)\n%s\n", path, resp.StatusCode(), pretty)
			}
			if !healthy {
				return fmt.Errorf("daemon at %s reports a problem", baseURL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "daemon base URL (default from api.host and api.port)")
	return cmd
}
