package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonio1998/snsulms-sub001/internal/statusapi"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Keep syncing in the foreground until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(cmd, "daemon", false)
		if err != nil {
			return err
		}
		defer a.Close()

		a.Start(ctx)

		listen, _ := cmd.Flags().GetString("listen")
		if listen == "" {
			listen = a.Config().Status.Listen
		}

		errc := make(chan error, 1)
		var srv *statusapi.Server
		if listen != "" {
			srv = statusapi.NewServer(listen, a, a.Logger())
			go func() { errc <- srv.Start() }()
			fmt.Printf("Status endpoints on %s\n", listen)
		}
		fmt.Println("Syncing; press Ctrl-C to stop.")

		var serveErr error
		select {
		case <-ctx.Done():
		case serveErr = <-errc:
		}

		if srv != nil {
			sctx, cancel := withTimeout(5 * time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				a.Logger().Warn("status server shutdown", "error", err)
			}
		}
		if serveErr != nil {
			a.Operation().Fail(serveErr)
			return fmt.Errorf("status server: %w", serveErr)
		}
		return nil
	},
}
