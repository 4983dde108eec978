// Command server issues a proof-of-work puzzle to every connection and
// answers a solved puzzle with a random phrase from the response pool.
//
// Configuration is read from an optional YAML file (--config or CONFIG_FILE),
// then the environment (HOST, PORT, POW_COMPLEXITY, RESPONSES_FILE, ...),
// then flags.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dayanaadylkhanova/wisdom-pow/internal/adapter/quote"
	"github.com/dayanaadylkhanova/wisdom-pow/internal/adapter/transport/admin"
	"github.com/dayanaadylkhanova/wisdom-pow/internal/adapter/transport/tcp"
	"github.com/dayanaadylkhanova/wisdom-pow/internal/app"
	"github.com/dayanaadylkhanova/wisdom-pow/internal/service"
	"github.com/dayanaadylkhanova/wisdom-pow/pkg/config"
	"github.com/dayanaadylkhanova/wisdom-pow/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var (
		cfgFile    string
		host       string
		port       string
		complexity int
		responses  string
		adminAddr  string
		maxConns   int
	)

	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Serve words of wisdom behind a proof-of-work puzzle",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Host = host
			}
			if flags.Changed("port") {
				cfg.Port = port
			}
			if flags.Changed("complexity") {
				cfg.Complexity = complexity
			}
			if flags.Changed("responses") {
				cfg.ResponsesFile = responses
			}
			if flags.Changed("admin-addr") {
				cfg.AdminAddr = adminAddr
			}
			if flags.Changed("max-conns") {
				cfg.MaxConns = maxConns
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "YAML config file")
	cmd.Flags().StringVar(&host, "host", "", "listen host")
	cmd.Flags().StringVar(&port, "port", "", "listen port")
	cmd.Flags().IntVar(&complexity, "complexity", 0, "puzzle complexity in leading zero nibbles (1-10)")
	cmd.Flags().StringVar(&responses, "responses", "", "file with blank-line separated response phrases")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "admin HTTP address (disabled when empty)")
	cmd.Flags().IntVar(&maxConns, "max-conns", 0, "max concurrently handled connections (0 = unbounded)")
	return cmd
}

func run(cfg config.Config) error {
	log := logger.NewJSON(logger.LevelFromEnv(cfg.LogLevel))

	var pool tcp.Quote = quote.NewStatic()
	if cfg.ResponsesFile != "" {
		loaded, err := quote.LoadFile(cfg.ResponsesFile, nil)
		if err != nil {
			return err
		}
		log.Info("responses loaded", "file", cfg.ResponsesFile, "count", loaded.Len())
		pool = loaded
	}

	srv := tcp.NewServer(log, tcp.Options{
		Addr:            cfg.ListenAddr(),
		SolutionTimeout: cfg.SolutionTimeout,
		ShutdownWait:    cfg.ShutdownWait,
		MaxConns:        cfg.MaxConns,
		AcceptRate:      cfg.AcceptRate,
		AcceptBurst:     cfg.AcceptBurst,
	}, service.NewHashcash(), pool)

	var side []app.Service
	if cfg.AdminAddr != "" {
		side = append(side, admin.New(log, cfg.AdminAddr, srv))
	}

	if err := app.New(srv, uint8(cfg.Complexity), side...).Run(); err != nil {
		log.Error("server stopped with error", "err", err)
		return err
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
