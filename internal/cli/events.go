package cli

import (
	"bufio"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ipscope/ipscope/internal/client"
	"github.com/ipscope/ipscope/internal/store/sqlite"
	"github.com/ipscope/ipscope/pkg/types"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Watch/query audit events",
	}

	cmd.AddCommand(newEventsTailCmd())
	cmd.AddCommand(newEventsQueryCmd())
	return cmd
}

func newEventsTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail TASK_ID",
		Short: "Tail live events for a task (SSE)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getClientConfig(cmd)
			c := client.New(cfg.serverAddr, cfg.apiKey)
			body, err := c.StreamTaskEvents(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer body.Close()

			sc := bufio.NewScanner(body)
			for sc.Scan() {
				line := sc.Text()
				if strings.HasPrefix(line, "data: ") {
					fmt.Fprintln(cmd.OutOrStdout(), strings.TrimPrefix(line, "data: "))
				}
			}
			return sc.Err()
		},
	}
	return cmd
}

func newEventsQueryCmd() *cobra.Command {
	var (
		taskID   string
		typesCSV string
		since    string
		until    string
		ipLike   string
		textLike string
		limit    int
		offset   int
		order    string

		directDB bool
		dbPath   string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query events (API by default; --direct-db for offline)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if directDB {
				if dbPath == "" {
					dbPath = getenvDefault("IPSCOPE_DB_PATH", "./data/events.db")
				}
				st, err := sqlite.Open(dbPath)
				if err != nil {
					return err
				}
				defer st.Close()

				q, err := buildEventQuery(taskID, typesCSV, since, until, ipLike, textLike, limit, offset, order)
				if err != nil {
					return err
				}
				evs, err := st.QueryEvents(cmd.Context(), q)
				if err != nil {
					return err
				}
				return printJSON(cmd, evs)
			}

			cfg := getClientConfig(cmd)
			c := client.New(cfg.serverAddr, cfg.apiKey)
			params := url.Values{}
			if taskID != "" {
				params.Set("task_id", taskID)
			}
			if typesCSV != "" {
				params.Set("type", typesCSV)
			}
			if since != "" {
				params.Set("since", since)
			}
			if until != "" {
				params.Set("until", until)
			}
			if ipLike != "" {
				params.Set("ip_like", ipLike)
			}
			if textLike != "" {
				params.Set("text_like", textLike)
			}
			if limit != 0 {
				params.Set("limit", fmt.Sprintf("%d", limit))
			}
			if offset != 0 {
				params.Set("offset", fmt.Sprintf("%d", offset))
			}
			if order != "" {
				params.Set("order", order)
			}

			evs, err := c.SearchEvents(cmd.Context(), params)
			if err != nil {
				return err
			}
			return printJSON(cmd, evs)
		},
	}

	cmd.Flags().StringVar(&taskID, "task", "", "Filter by task ID")
	cmd.Flags().StringVar(&typesCSV, "type", "", "Comma-separated event types")
	cmd.Flags().StringVar(&since, "since", "", "Start time (RFC3339) or duration (e.g. 1h)")
	cmd.Flags().StringVar(&until, "until", "", "End time (RFC3339) or duration (e.g. 5m)")
	cmd.Flags().StringVar(&ipLike, "ip-like", "", "SQL LIKE pattern for the address (e.g. 192.168.%)")
	cmd.Flags().StringVar(&textLike, "text-like", "", "SQL LIKE pattern for raw JSON payload")
	cmd.Flags().IntVar(&limit, "limit", 200, "Result limit")
	cmd.Flags().IntVar(&offset, "offset", 0, "Result offset")
	cmd.Flags().StringVar(&order, "order", "desc", "Sort order: asc|desc")

	cmd.Flags().BoolVar(&directDB, "direct-db", false, "Query local SQLite directly (offline)")
	cmd.Flags().StringVar(&dbPath, "db-path", "", "SQLite DB path (used with --direct-db)")

	return cmd
}

func buildEventQuery(taskID, typesCSV, since, until, ipLike, textLike string, limit, offset int, order string) (types.EventQuery, error) {
	var q types.EventQuery
	q.TaskID = taskID
	if typesCSV != "" {
		q.Types = strings.Split(typesCSV, ",")
	}
	if since != "" {
		t, err := parseTimeOrAgo(since)
		if err != nil {
			return q, err
		}
		q.Since = &t
	}
	if until != "" {
		t, err := parseTimeOrAgo(until)
		if err != nil {
			return q, err
		}
		q.Until = &t
	}
	q.IPLike = ipLike
	q.TextLike = textLike
	q.Limit = limit
	q.Offset = offset
	q.Asc = strings.EqualFold(order, "asc")
	return q, nil
}

func parseTimeOrAgo(s string) (time.Time, error) {
	if strings.ContainsAny(s, "smhdw") && !strings.Contains(s, "T") {
		d, err := time.ParseDuration(s)
		if err != nil {
			return time.Time{}, err
		}
		return time.Now().UTC().Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
