package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"nhooyr.io/websocket"

	"github.com/krail/tabwarden/internal/appconfig"
	"github.com/krail/tabwarden/internal/export"
	"github.com/krail/tabwarden/internal/types"
)

const exportTimeout = 10 * time.Second

func newExportCmd() *cobra.Command {
	var cfgPath string
	var addr string
	var asJSON bool
	var outFile string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export open tabs as markdown or JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				path, err := resolveConfigPath(cfgPath)
				if err != nil {
					return err
				}
				cfg, err := appconfig.Load(path)
				if err != nil {
					return err
				}
				addr = cfg.Server.Addr
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), exportTimeout)
			defer cancel()
			tabs, err := fetchTabs(ctx, addr)
			if err != nil {
				return err
			}

			var output string
			if asJSON {
				output, err = export.JSON(tabs)
				if err != nil {
					return err
				}
			} else {
				output = export.Markdown(tabs)
			}

			if outFile != "" {
				return os.WriteFile(outFile, []byte(output), 0o644)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), output)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", "", "daemon address (overrides config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "export as JSON instead of markdown")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file path (default: stdout)")
	return cmd
}

// fetchTabs asks the running daemon for its tab list over the overlay
// websocket. Event frames that arrive before the reply are skipped.
func fetchTabs(ctx context.Context, addr string) ([]types.TabRecord, error) {
	conn, _, err := websocket.Dial(ctx, "ws://"+addr+"/ui", nil)
	if err != nil {
		return nil, fmt.Errorf("dial daemon at %s: %w", addr, err)
	}
	defer conn.CloseNow()

	req, err := json.Marshal(map[string]string{"id": "export", "action": "get-tabs"})
	if err != nil {
		return nil, err
	}
	if err := conn.Write(ctx, websocket.MessageText, req); err != nil {
		return nil, err
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		var resp struct {
			ID    string            `json:"id"`
			OK    bool              `json:"ok"`
			Error string            `json:"error"`
			Tabs  []types.TabRecord `json:"tabs"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		if resp.ID == "" {
			continue
		}
		if !resp.OK {
			return nil, fmt.Errorf("daemon: %s", resp.Error)
		}
		return resp.Tabs, nil
	}
}
