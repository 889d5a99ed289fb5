package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/odvcencio/visualdocs-collab/logging"
	"github.com/odvcencio/visualdocs-collab/web"
)

func newServeCommand(o *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the project room relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := o.cfg
			if err := cfg.ValidateRelay(); err != nil {
				return err
			}

			log := logging.Named("relay")
			if cfg.Relay.JWTSecret == "" {
				log.Warn("no jwt secret configured, tokens are not verified")
			}
			srv := web.NewServer(web.Options{JWTSecret: cfg.Relay.JWTSecret, Logger: log})
			err := srv.ListenAndServe(cmd.Context(), cfg.Relay.Listen)
			log.Info("relay stopped", zap.Error(err))
			return err
		},
	}
	cmd.Flags().String("listen", "", "address to listen on (default from config)")
	cmd.Flags().String("jwt-secret", "", "HMAC secret used to verify bearer tokens")
	return cmd
}
