package main

import (
	"fmt"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ashureev/botkit/internal/healthcheck"
)

var (
	healthAddr    string
	healthService string
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the server's gRPC health service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		status, err := healthcheck.Check(ctx, healthAddr, healthService)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), status.String())
		if status != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("%s is %s", healthService, status)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthAddr, "addr", envOr("BOTKIT_GRPC_ADDR", "localhost:50051"), "gRPC health address")
	healthCmd.Flags().StringVar(&healthService, "service", healthcheck.ServiceName, "service name to check")
}
