// Package commands implements the vdcollab command line.
package commands

import (
	"context"

	"github.com/Laisky/errors/v2"
	"github.com/spf13/cobra"

	"github.com/odvcencio/visualdocs-collab/config"
	"github.com/odvcencio/visualdocs-collab/logging"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configPath string

	cfg *config.Config
}

// NewRootCommand builds the vdcollab command tree.
func NewRootCommand() *cobra.Command {
	o := &globalOptions{}
	root := &cobra.Command{
		Use:   "vdcollab",
		Short: "Collaborative editing sessions for VisualDocs projects",
		Long: `vdcollab opens a VisualDocs project for editing, keeps it in sync with
everyone else in the project room, and can run the room relay itself.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "path to a YAML config file")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: json or console")

	root.AddCommand(
		newServeCommand(o),
		newOpenCommand(o),
		newTreeCommand(o),
		newSymbolsCommand(o),
		newConfigCommand(o),
	)
	return root
}

// Execute runs the command line with ctx.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// setup resolves the configuration for cmd. Flags named in
// config.FlagKeys override the file and the environment.
func (o *globalOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	if err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, OutputPath: "stderr"}); err != nil {
		return errors.Wrap(err, "init logging")
	}
	o.cfg = cfg
	return nil
}

func newConfigCommand(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := o.cfg.Redacted().YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
