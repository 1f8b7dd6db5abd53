package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ipscope/ipscope/internal/client"
	"github.com/ipscope/ipscope/internal/export"
	"github.com/ipscope/ipscope/pkg/types"
)

func newSubmitCmd() *cobra.Command {
	var (
		file     string
		abuseKey string
		wait     bool
	)
	cmd := &cobra.Command{
		Use:   "submit [IPS...]",
		Short: "Submit IP addresses for analysis",
		Long:  "Submit IP addresses for analysis. Addresses come from the arguments, from --file, or from stdin when --file is \"-\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if file != "" {
				var b []byte
				var err error
				if file == "-" {
					b, err = io.ReadAll(cmd.InOrStdin())
				} else {
					b, err = os.ReadFile(file)
				}
				if err != nil {
					return err
				}
				text = strings.TrimSpace(text + " " + string(b))
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("no IP addresses given")
			}

			cfg := getClientConfig(cmd)
			c := client.New(cfg.serverAddr, cfg.apiKey)
			sub, err := c.Submit(cmd.Context(), types.SubmitRequest{IPs: text, APIKey: abuseKey})
			if err != nil {
				return err
			}
			if !wait {
				return printJSON(cmd, sub)
			}

			for {
				snap, err := c.GetTask(cmd.Context(), sub.TaskID)
				if err != nil {
					return err
				}
				if snap.Status.IsTerminal() {
					return printJSON(cmd, snap)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d/%d\n", snap.Status, snap.Completed, snap.Total)
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(time.Second):
				}
			}
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Read addresses from a file (\"-\" for stdin)")
	cmd.Flags().StringVar(&abuseKey, "abuse-key", "", "AbuseIPDB API key for this task")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the task finishes")
	return cmd
}

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getClientConfig(cmd)
			c := client.New(cfg.serverAddr, cfg.apiKey)
			tasks, err := c.ListTasks(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, tasks)
		},
	}
	return cmd
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status TASK_ID",
		Short: "Show task status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getClientConfig(cmd)
			c := client.New(cfg.serverAddr, cfg.apiKey)
			snap, err := c.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		},
	}
	return cmd
}

func newResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results TASK_ID",
		Short: "Fetch task results as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getClientConfig(cmd)
			c := client.New(cfg.serverAddr, cfg.apiKey)
			records, err := c.Results(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, records)
		},
	}
	return cmd
}

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export TASK_ID",
		Short: "Download task results as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getClientConfig(cmd)
			c := client.New(cfg.serverAddr, cfg.apiKey)
			body, err := c.ExportCSV(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer body.Close()

			if output == "" {
				output = export.Filename(args[0])
			}
			if output == "-" {
				_, err = io.Copy(cmd.OutOrStdout(), body)
				return err
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, body); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (\"-\" for stdout)")
	return cmd
}

func newCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel TASK_ID",
		Short: "Request cooperative cancellation of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getClientConfig(cmd)
			c := client.New(cfg.serverAddr, cfg.apiKey)
			out, err := c.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
