package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverAddr is the daemon admin API address (host:port).
	serverAddr string

	// outputFormat controls the output format for all commands
	// (table, json, or yaml).
	outputFormat string

	// httpClient is the shared client for admin API requests.
	httpClient = &http.Client{Timeout: 10 * time.Second}
)

// rootCmd is the top-level cobra command for goswitchctl.
var rootCmd = &cobra.Command{
	Use:   "goswitchctl",
	Short: "CLI client for the goswitch daemon",
	Long:  "goswitchctl reads switch state (status, flow table, ports) from the goswitch admin API.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8080",
		"goswitch admin API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json, yaml")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(flowsCmd())
	rootCmd.AddCommand(portsCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// apiGet fetches an admin API path and decodes the JSON response into out.
func apiGet(path string, out any) error {
	url := "http://" + serverAddr + path
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("get %s: status %s: %s", url, resp.Status, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", url, err)
	}
	return nil
}
