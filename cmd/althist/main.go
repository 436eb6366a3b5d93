package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/shone114/alternate-history/internal/client"
)

var (
	httpURL    string
	grpcAddr   string
	token      string
	jsonOutput bool

	apiClient client.Client
)

func defaultHTTPURL() string {
	if s := os.Getenv("ALTHIST_HTTP_URL"); s != "" {
		return s
	}
	if u := activeRemoteURL(); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultGRPCAddr() string {
	if s := os.Getenv("ALTHIST_GRPC_URL"); s != "" {
		return s
	}
	if a := activeRemoteGRPCAddr(); a != "" {
		return a
	}
	return "localhost:9090"
}

func defaultToken() string {
	if s := os.Getenv("ALTHIST_ADMIN_TOKEN"); s != "" {
		return s
	}
	return activeRemoteToken()
}

var rootCmd = &cobra.Command{
	Use:          "althist <command>",
	Short:        "Run and browse an alternate-history universe",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		apiClient = client.NewHTTPClient(httpURL, token)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if apiClient != nil {
			apiClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&grpcAddr, "grpc-addr", defaultGRPCAddr(), "gRPC server address (health checks)")
	rootCmd.PersistentFlags().StringVar(&token, "token", defaultToken(), "admin token for /v1/admin routes")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "admin", Title: "Admin:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Views
	rootCmd.AddCommand(universeCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(latestCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(subtopicsCmd)
	rootCmd.AddCommand(proposalsCmd)
	rootCmd.AddCommand(judgmentsCmd)
	rootCmd.AddCommand(watchCmd)

	// Admin
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(exportCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
