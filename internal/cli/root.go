package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func NewRoot(version string) *cobra.Command {
	cfg := &clientConfig{}
	cmd := &cobra.Command{
		Use:           "ipscope",
		Short:         "ipscope: batch IP analysis service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("ipscope {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfg.serverAddr, "server", getenvDefault("IPSCOPE_SERVER", "http://127.0.0.1:8080"), "ipscope server base URL")
	cmd.PersistentFlags().StringVar(&cfg.apiKey, "api-key", getenvDefault("IPSCOPE_API_KEY", ""), "API key (sent as X-API-Key)")

	cmd.AddCommand(newServerCmd())
	cmd.AddCommand(newSubmitCmd())
	cmd.AddCommand(newTasksCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newResultsCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newCancelCmd())
	cmd.AddCommand(newEventsCmd())

	return cmd
}

type clientConfig struct {
	serverAddr string
	apiKey     string
}

func getClientConfig(cmd *cobra.Command) *clientConfig {
	serverAddr, _ := cmd.Root().PersistentFlags().GetString("server")
	apiKey, _ := cmd.Root().PersistentFlags().GetString("api-key")
	if serverAddr == "" {
		serverAddr = "http://127.0.0.1:8080"
	}
	return &clientConfig{serverAddr: serverAddr, apiKey: apiKey}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
