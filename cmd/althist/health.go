package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shone114/alternate-history/internal/client"
	"github.com/shone114/alternate-history/internal/ui"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of an althist server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		useGRPC, _ := cmd.Flags().GetBool("grpc")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var (
			status  string
			healthy string
			err     error
		)
		if useGRPC {
			healthy = "SERVING"
			status, err = grpcHealth(ctx, grpcAddr)
		} else {
			healthy = "ok"
			status, err = apiClient.Health(ctx)
		}
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			if err := printJSON(stdout, map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(stdout, "Health: %s\n", ui.RenderState(status))
		}

		if status != healthy {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

func grpcHealth(ctx context.Context, addr string) (string, error) {
	hc, err := client.NewHealthChecker(addr, token)
	if err != nil {
		return "", err
	}
	defer hc.Close()
	return hc.Status(ctx, "")
}

func init() {
	healthCmd.Flags().Bool("grpc", false, "query the gRPC health service at --grpc-addr instead of HTTP")
}
