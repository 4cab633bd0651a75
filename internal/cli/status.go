package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vietddude/feedsync/internal/core/config"
	"github.com/vietddude/feedsync/internal/feed/health"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current status of all refreshed resources",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	url := fmt.Sprintf("http://localhost:%d/health/detailed", cfg.Server.Port)
	resp, err := http.Get(url)
	if err != nil {
		slog.Error("Failed to reach the running service", "url", url, "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var report health.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		slog.Error("Failed to decode health report", "error", err)
		os.Exit(1)
	}

	names := make([]string, 0, len(report.Resources))
	for name := range report.Resources {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "RESOURCE\tGROUP\tSTATUS\tBACKEND\tCHANNEL\tLAST REFRESH")

	for _, name := range names {
		rh := report.Resources[name]
		ch := "-"
		if rh.Channel != nil {
			ch = rh.Channel.State.String()
		}
		refreshed := "-"
		if !rh.LastRefreshAt.IsZero() {
			refreshed = rh.LastRefreshAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rh.Resource, rh.Group, rh.Status, rh.ActiveBackend, ch, refreshed)
	}
	_ = w.Flush()

	fmt.Printf("\nOverall: %s\n", report.SystemStatus)
}
