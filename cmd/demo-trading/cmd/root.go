package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/STTM-NSU/demo-trading/internal/config"
	"github.com/STTM-NSU/demo-trading/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const _appCfgFilePath = "./configs/demo-trading.yaml"

var (
	cfgFile  string
	logLevel string

	appCfg     config.AppConfig
	zapLogger  *logger.ZapLogger
	loggerSync = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "demo-trading",
	Short: "Simulated trading account: demo portfolios, trade journal and price oracle",
	Long: `demo-trading keeps a virtual cash-and-holdings portfolio per user, executes
demo buy and sell orders at the current market price and records every
executed order in an append-only journal.

Database connection comes from the environment (DB_DRIVER, POSTGRES_*,
SQLITE_PATH), a .env file in the working directory is loaded first.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		appCfg, err = config.LoadAppConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("%w: can't load app cfg", err)
		}
		if logLevel != "" {
			appCfg.LogLevel = logLevel
		}

		zapLogger, loggerSync, err = logger.NewZapLogger(logger.ParseLevel(appCfg.LogLevel))
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		loggerSync()
	},
}

// Execute runs the command line until SIGINT or SIGTERM.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", _appCfgFilePath, "application config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}
