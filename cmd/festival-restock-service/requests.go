package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/fairyhunter13/festival-restock-service/internal/config"
	"github.com/fairyhunter13/festival-restock-service/internal/model"
	"github.com/fairyhunter13/festival-restock-service/internal/store"
)

var (
	listColor    bool
	statusJSON   bool
	statusServer string
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Inspect and update stored restock requests",
}

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every stored restock request",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := openFileStore()
		if err != nil {
			return err
		}
		recs, err := fs.Load(cmd.Context())
		if err != nil {
			return err
		}
		b, err := json.Marshal(recs)
		if err != nil {
			return err
		}
		out := pretty.Pretty(b)
		if listColor {
			out = pretty.Color(out, nil)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var requestsSetStatusCmd = &cobra.Command{
	Use:   "set-status <index|id> <status>",
	Short: "Set the status of one restock request",
	Long: `Set the status field of the restock request at the given position, or
with the given string id. No other field is changed.

Without --server the file is patched directly. That bypasses a running
server's writer queue, so a concurrent write from the server can be lost.
Pass --server with the base URL of a running service to send the patch
through its API instead.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := statusValue(args[1], statusJSON)
		if err != nil {
			return err
		}
		var b []byte
		if statusServer != "" {
			b, err = patchViaServer(cmd.Context(), statusServer, args[0], status)
		} else {
			b, err = patchFile(cmd.Context(), args[0], status)
		}
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(pretty.Pretty(b))
		return err
	},
}

func patchFile(ctx context.Context, ref string, status json.RawMessage) ([]byte, error) {
	fs, err := openFileStore()
	if err != nil {
		return nil, err
	}
	rec, err := fs.PatchStatus(ctx, store.ParseRef(ref), store.Status(status))
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

// patchViaServer sends the patch to a running service and returns the
// updated record.
func patchViaServer(ctx context.Context, server, ref string, status json.RawMessage) ([]byte, error) {
	body, err := json.Marshal(map[string]json.RawMessage{model.StatusKey: status})
	if err != nil {
		return nil, err
	}
	target := strings.TrimRight(server, "/") + "/restock-request/" + url.PathEscape(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("patch via server: %w", err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read server response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// statusValue encodes s as a JSON string, or passes it through when asJSON is set.
func statusValue(s string, asJSON bool) (json.RawMessage, error) {
	if asJSON {
		if !json.Valid([]byte(s)) {
			return nil, fmt.Errorf("status %q is not valid JSON", s)
		}
		return json.RawMessage(s), nil
	}
	return json.Marshal(s)
}

func openFileStore() (*store.FileStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.StoreBackend != config.BackendFile {
		return nil, fmt.Errorf("requests commands need the %s store backend, got %s", config.BackendFile, cfg.StoreBackend)
	}
	return store.NewFile(cfg.StorePath), nil
}

func init() {
	requestsListCmd.Flags().BoolVar(&listColor, "color", false, "colorize output")
	requestsSetStatusCmd.Flags().BoolVar(&statusJSON, "json", false, "treat <status> as a raw JSON value")
	requestsSetStatusCmd.Flags().StringVar(&statusServer, "server", "", "base URL of a running service to patch through, e.g. http://localhost:5000")
	requestsCmd.AddCommand(requestsListCmd)
	requestsCmd.AddCommand(requestsSetStatusCmd)
}
