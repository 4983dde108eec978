// Command client solves one puzzle from the server and prints the phrase it
// receives. It exits with 2 when the solution is rejected and 1 on any
// other failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dayanaadylkhanova/wisdom-pow/internal/adapter/transport/tcp"
	"github.com/dayanaadylkhanova/wisdom-pow/internal/service"
	"github.com/dayanaadylkhanova/wisdom-pow/pkg/config"
	"github.com/dayanaadylkhanova/wisdom-pow/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		addr    string
	)

	cmd := &cobra.Command{
		Use:           "client",
		Short:         "Fetch one word of wisdom by solving the server's puzzle",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.ServerAddr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			// logs go to stderr, the phrase to stdout
			log := logger.NewJSONTo(os.Stderr, logger.LevelFromEnv(cfg.LogLevel))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c := tcp.NewClient(log, tcp.ClientOptions{
				Addr:            cfg.ServerAddr,
				DialTimeout:     cfg.DialTimeout,
				MaxResponseSize: cfg.MaxResponseSize,
			}, service.NewHashcash())

			text, err := c.GetResponse(ctx)
			if err != nil {
				log.Error("exchange failed", "server_addr", cfg.ServerAddr, "err", err)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "YAML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "server address host:port")
	return cmd
}

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	switch {
	case err == nil:
	case errors.Is(err, tcp.ErrRejected):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
