package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"livecast/internal/app"
	"livecast/internal/config"
	"livecast/internal/lifecycle"
	"livecast/internal/observability/ops"
	"livecast/internal/storage"
	logx "livecast/pkg/logx"
)

var broadcastsCmd = &cobra.Command{
	Use:     "broadcasts",
	Aliases: []string{"bc"},
	Short:   "Manage stored broadcasts",
}

func init() {
	broadcastsCmd.AddCommand(broadcastsListCmd)
	broadcastsCmd.AddCommand(broadcastsAddCmd)
	broadcastsCmd.AddCommand(broadcastsStopCmd)
	broadcastsCmd.AddCommand(broadcastsDeleteCmd)
}

// withStore opens the configured store for one command.
func withStore(fn func(ctx context.Context, cfg *config.Config, st storage.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := app.OpenStore(cfg, logx.Nop())
	if err != nil {
		return err
	}
	defer st.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, cfg, st)
}

// ---- list ------------------------------------------------------------------

var listStatus string

var broadcastsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List broadcasts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(func(ctx context.Context, _ *config.Config, st storage.Store) error {
			return listBroadcasts(ctx, cmd.OutOrStdout(), st, lifecycle.Status(listStatus))
		})
	},
}

func init() {
	broadcastsListCmd.Flags().StringVarP(&listStatus, "status", "s", "", "only show broadcasts with this status")
}

func listBroadcasts(ctx context.Context, w io.Writer, st storage.Store, status lifecycle.Status) error {
	all, err := st.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tSCHEDULED\tSTARTED\tDURATION")
	n := 0
	for _, b := range all {
		if status != "" && b.Status != status {
			continue
		}
		n++
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", b.ID, b.Name, b.Status,
			fmtTime(b.ScheduledAt), fmtTime(b.StartedAt), fmtMinutes(b.DurationMinutes))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(w, "No broadcasts.")
	}
	return nil
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func fmtMinutes(m *float64) string {
	if m == nil {
		return "-"
	}
	return strconv.FormatFloat(*m, 'f', -1, 64) + "m"
}

// ---- add -------------------------------------------------------------------

var (
	addID       string
	addName     string
	addAt       string
	addDuration time.Duration
)

var broadcastsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Schedule a broadcast",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := newScheduled(addID, addName, addAt, addDuration, time.Now())
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, cfg *config.Config, st storage.Store) error {
			oc, err := app.OpsConfig(cfg)
			if err != nil {
				return err
			}
			if oc.Enabled {
				err = opsDo(ctx, http.DefaultClient, oc.Addr, oc.Token, http.MethodPut, broadcastPath(b.ID), ops.ViewOf(b))
			} else if err = guardNotLive(ctx, st, b.ID); err == nil {
				err = st.Upsert(ctx, b)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %s at %s\n", b.ID, fmtTime(b.ScheduledAt))
			return nil
		})
	},
}

func init() {
	f := broadcastsAddCmd.Flags()
	f.StringVar(&addID, "id", "", "broadcast id (random uuid when empty)")
	f.StringVar(&addName, "name", "", "display name")
	f.StringVar(&addAt, "at", "", "start time, RFC3339 or local 2006-01-02T15:04:05, or +duration (e.g. +10m)")
	f.DurationVar(&addDuration, "duration", 0, "stop automatically after this long (0 = until stopped)")
	_ = broadcastsAddCmd.MarkFlagRequired("at")
}

func newScheduled(id, name, at string, dur time.Duration, now time.Time) (lifecycle.Broadcast, error) {
	when, err := parseWhen(at, now)
	if err != nil {
		return lifecycle.Broadcast{}, err
	}
	if dur < 0 {
		return lifecycle.Broadcast{}, errors.New("--duration must be >= 0")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	b := lifecycle.Broadcast{
		ID:          id,
		Name:        strings.TrimSpace(name),
		Status:      lifecycle.StatusScheduled,
		ScheduledAt: &when,
	}
	if dur > 0 {
		m := dur.Minutes()
		b.DurationMinutes = &m
	}
	return b, nil
}

func parseWhen(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if rel, ok := strings.CutPrefix(raw, "+"); ok {
		d, err := time.ParseDuration(rel)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --at offset %q: %w", raw, err)
		}
		return now.Add(d), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at value %q", raw)
	}
	return t, nil
}

// ---- stop ------------------------------------------------------------------

var broadcastsStopCmd = &cobra.Command{
	Use:   "stop <id>",
	Short: "Stop a live broadcast",
	Long: "Stop a live broadcast. When the ops server is enabled the running daemon\n" +
		"performs the stop so its pending termination is cancelled; otherwise the\n" +
		"engine is called directly.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, cfg *config.Config, st storage.Store) error {
			id := args[0]
			if _, err := st.Get(ctx, id); err != nil {
				return err
			}
			oc, err := app.OpsConfig(cfg)
			if err != nil {
				return err
			}
			if oc.Enabled {
				if err := stopViaOps(ctx, http.DefaultClient, oc.Addr, oc.Token, id); err != nil {
					return err
				}
			} else {
				eng, err := app.OpenEngine(cfg, st, logx.Nop())
				if err != nil {
					return err
				}
				if err := eng.Stop(ctx, id); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s\n", id)
			return nil
		})
	},
}

func stopViaOps(ctx context.Context, client *http.Client, addr, token, id string) error {
	return opsDo(ctx, client, addr, token, http.MethodPost, broadcastPath(id)+"/stop", nil)
}

func broadcastPath(id string) string { return "/broadcasts/" + url.PathEscape(id) }

// opsDo sends one request to the running daemon's ops server. body, when not
// nil, is sent as JSON.
func opsDo(ctx context.Context, client *http.Client, addr, token, method, path string, body any) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("ops.addr: %w", err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	target := "http://" + net.JoinHostPort(host, port) + path
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ops server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("ops server: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

// guardNotLive refuses to rewrite a live broadcast behind the daemon's back:
// without the ops server there is no way to drop its pending termination.
func guardNotLive(ctx context.Context, st storage.Store, id string) error {
	b, err := st.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if b.Status == lifecycle.StatusLive {
		return fmt.Errorf("broadcast %q is live; stop it first or enable ops", id)
	}
	return nil
}

// ---- delete ----------------------------------------------------------------

var broadcastsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored broadcast",
	Long: "Delete a stored broadcast. When the ops server is enabled the running daemon\n" +
		"stops a live broadcast and drops its pending termination first; otherwise\n" +
		"a live broadcast is refused.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, cfg *config.Config, st storage.Store) error {
			oc, err := app.OpsConfig(cfg)
			if err != nil {
				return err
			}
			if oc.Enabled {
				if err := opsDo(ctx, http.DefaultClient, oc.Addr, oc.Token, http.MethodDelete, broadcastPath(args[0]), nil); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			}
			if err := guardNotLive(ctx, st, args[0]); err != nil {
				return err
			}
			ok, err := st.Delete(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("broadcast %q: %w", args[0], storage.ErrNotFound)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		})
	},
}
