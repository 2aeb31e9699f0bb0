// filepath: internal/cli/heartbeat.go
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"photogallery/internal/services"
)

// heartbeatCmd calls the heartbeat RPC once, e.g. from a cron job.
var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Call the heartbeat RPC once and print its response",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := services.NewPersistenceClient(cfg)
		defer client.Close()
		return runHeartbeat(cmd.Context(), services.NewHeartbeatService(client), cmd.OutOrStdout())
	},
}

func runHeartbeat(ctx context.Context, hb services.HeartbeatService, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.PersistenceTimeout)
	defer cancel()

	res, err := hb.Touch(ctx)
	if err != nil {
		return fmt.Errorf("heartbeat failed: %w", err)
	}
	fmt.Fprintf(out, "%d %s\n", res.Status, res.Body)
	if res.Status >= 300 {
		return fmt.Errorf("heartbeat returned status %d", res.Status)
	}
	return nil
}
