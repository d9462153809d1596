package cmd

import (
	"github.com/STTM-NSU/demo-trading/internal/server"
	"github.com/spf13/cobra"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the demo trading HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		if servePort != "" {
			appCfg.Server.Port = servePort
		}

		handler := server.NewHandler(a.service, a.oracle, a.watch, a.db, server.HandlerConfig{
			IdentityHeader: appCfg.Server.IdentityHeader,
			Currency:       appCfg.Ledger.Currency,
		}, zapLogger.With("component", "http"))

		srv := server.NewHTTPServer(ctx, appCfg.Server.Port, handler, appCfg.Server.ShutdownTimeout)
		zapLogger.Infof("listening on :%s, quotes from %s", appCfg.Server.Port, appCfg.Quote.Provider)

		if err := srv.Run(ctx); err != nil {
			zapLogger.Errorf("%s: server stopped", err)
			return err
		}
		zapLogger.Infof("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port, overrides server.port")
}
