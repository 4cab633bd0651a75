package cli

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vietddude/feedsync/internal/core/config"
)

var restorePrimaryCmd = &cobra.Command{
	Use:   "restore-primary [group]",
	Short: "Flip a circuit group back to the primary backend",
	Args:  cobra.ExactArgs(1),
	Run:   runRestorePrimary,
}

var reconnectCmd = &cobra.Command{
	Use:   "reconnect [resource]",
	Short: "Drop and redial a resource's change channel",
	Args:  cobra.ExactArgs(1),
	Run:   runReconnect,
}

func init() {
	rootCmd.AddCommand(restorePrimaryCmd)
	rootCmd.AddCommand(reconnectCmd)
}

func runRestorePrimary(cmd *cobra.Command, args []string) {
	postAdmin("/admin/probe-primary", "group", args[0])
	fmt.Printf("Restored primary for group %s\n", args[0])
}

func runReconnect(cmd *cobra.Command, args []string) {
	postAdmin("/admin/reconnect", "resource", args[0])
	fmt.Printf("Reconnect requested for resource %s\n", args[0])
}

// postAdmin hits an admin endpoint on the running service and exits on failure.
func postAdmin(path, param, value string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	target := fmt.Sprintf("http://localhost:%d%s?%s=%s",
		cfg.Server.Port, path, param, url.QueryEscape(value))
	resp, err := http.Post(target, "", nil)
	if err != nil {
		slog.Error("Failed to reach the running service", "url", target, "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("Admin request rejected",
			"status", resp.StatusCode, "response", strings.TrimSpace(string(body)))
		os.Exit(1)
	}
}
