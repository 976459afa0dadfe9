// Package client contains Cobra CLI commands that talk to a running agent.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// BaseURLFunc provides the agent's HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewQueueCommand constructs the `queue` command group and subcommands.
func NewQueueCommand(baseURL BaseURLFunc) *cobra.Command {
	queueCmd := &cobra.Command{Use: "queue", Short: "Location queue operations"}
	queueCmd.AddCommand(
		newQueueAddCommand(baseURL),
		newQueueFlushCommand(baseURL),
		newQueueStatsCommand(baseURL),
		newQueueListCommand(baseURL),
		newQueueResetCommand(baseURL),
		newAutoFlushCommand(baseURL),
	)
	return queueCmd
}

func decodeResponse(resp *http.Response) (map[string]any, error) {
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return nil, fmt.Errorf("agent error: %s (%s)", e.Error, resp.Status)
		}
		return nil, fmt.Errorf("http error: %s", resp.Status)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		return nil, err
	}
	return out, nil
}

// printJSON renders a decoded response body. A 204 or empty body decodes to
// an empty map; print a status line rather than the literal "null".
func printJSON(cmd *cobra.Command, v map[string]any) error {
	if len(v) == 0 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newQueueAddCommand constructs the `queue add` subcommand.
func newQueueAddCommand(baseURL BaseURLFunc) *cobra.Command {
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Enqueue one location sample",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deviceTime, _ := cmd.Flags().GetString("device-time")
			lat, _ := cmd.Flags().GetFloat64("lat")
			lon, _ := cmd.Flags().GetFloat64("lon")

			body := map[string]any{
				"deviceTime": deviceTime,
				"latitude":   lat,
				"longitude":  lon,
			}
			for name, flag := range map[string]string{
				"speed": "speed", "heading": "heading", "odometer": "odometer", "accuracy": "accuracy",
			} {
				if cmd.Flags().Changed(flag) {
					v, _ := cmd.Flags().GetFloat64(flag)
					body[name] = v
				}
			}
			b, _ := json.Marshal(body)
			resp, err := http.Post(baseURL()+"/v1/locations", "application/json", bytes.NewReader(b))
			if err != nil {
				return err
			}
			out, err := decodeResponse(resp)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	addCmd.Flags().String("device-time", "", "Device timestamp (RFC3339)")
	addCmd.Flags().Float64("lat", 0, "Latitude in degrees")
	addCmd.Flags().Float64("lon", 0, "Longitude in degrees")
	addCmd.Flags().Float64("speed", 0, "Speed (optional)")
	addCmd.Flags().Float64("heading", 0, "Heading (optional)")
	addCmd.Flags().Float64("odometer", 0, "Odometer (optional)")
	addCmd.Flags().Float64("accuracy", 0, "Accuracy (optional)")
	return addCmd
}

// newQueueFlushCommand constructs the `queue flush` subcommand.
func newQueueFlushCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Trigger an immediate delivery attempt",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := http.Post(baseURL()+"/v1/flush", "application/json", nil)
			if err != nil {
				return err
			}
			out, err := decodeResponse(resp)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
}

// newQueueStatsCommand constructs the `queue stats` subcommand.
func newQueueStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue size and watermarks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := http.Get(baseURL() + "/v1/queue/stats")
			if err != nil {
				return err
			}
			out, err := decodeResponse(resp)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
}

// newQueueListCommand constructs the `queue list` subcommand.
func newQueueListCommand(baseURL BaseURLFunc) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List pending entries, optionally filtered",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, _ := cmd.Flags().GetString("filter")
			u := baseURL() + "/v1/queue/entries"
			if filter != "" {
				u += "?filter=" + url.QueryEscape(filter)
			}
			resp, err := http.Get(u)
			if err != nil {
				return err
			}
			out, err := decodeResponse(resp)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	listCmd.Flags().String("filter", "", "CEL filter, e.g. 'seq > 10 && speed != null'")
	return listCmd
}

// newQueueResetCommand constructs the `queue reset` subcommand.
func newQueueResetCommand(baseURL BaseURLFunc) *cobra.Command {
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop all pending entries and both watermarks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				return fmt.Errorf("use --confirm to reset the queue; pending samples are lost")
			}
			resp, err := http.Post(baseURL()+"/v1/queue/reset", "application/json", nil)
			if err != nil {
				return err
			}
			if _, err := decodeResponse(resp); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	resetCmd.Flags().Bool("confirm", false, "Confirm the reset operation")
	return resetCmd
}

// newAutoFlushCommand constructs the `queue autoflush` subcommand group.
func newAutoFlushCommand(baseURL BaseURLFunc) *cobra.Command {
	autoCmd := &cobra.Command{Use: "autoflush", Short: "Control the recurring flush timer"}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start (or restart) the recurring flush timer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			intervalMs, _ := cmd.Flags().GetInt("interval-ms")
			u := baseURL() + "/v1/autoflush/start"
			if intervalMs > 0 {
				u += "?intervalMs=" + strconv.Itoa(intervalMs)
			}
			resp, err := http.Post(u, "application/json", nil)
			if err != nil {
				return err
			}
			out, err := decodeResponse(resp)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	startCmd.Flags().Int("interval-ms", 0, "Tick interval in ms (0 = agent config)")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the recurring flush timer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := http.Post(baseURL()+"/v1/autoflush/stop", "application/json", nil)
			if err != nil {
				return err
			}
			if _, err := decodeResponse(resp); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}

	autoCmd.AddCommand(startCmd, stopCmd)
	return autoCmd
}
