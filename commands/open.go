package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/odvcencio/visualdocs-collab/logging"
	"github.com/odvcencio/visualdocs-collab/realtime"
	"github.com/odvcencio/visualdocs-collab/session"
	"github.com/odvcencio/visualdocs-collab/tree"
)

func newOpenCommand(o *globalOptions) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "open [deep-link]",
		Short: "Open a project and run an interactive editing session",
		Long: `open loads the project's files and comments, joins the project room and
reads session commands from stdin, one per line. Type "help" for the list.

An optional deep link such as "file=src/app.ts&line=12" opens that file at
that line before the first command is read.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := o.cfg
			if err := cfg.ValidateClient(); err != nil {
				return err
			}

			ctx := cmd.Context()
			out := &lockedWriter{w: cmd.OutOrStdout()}
			log := logging.Named("open")

			s := session.New(session.Options{
				ProjectID: cfg.ProjectID,
				Backend:   newAPIClient(cfg),
				Notifier: session.NotifierFunc(func(n session.Notice) {
					fmt.Fprintf(out, "[%s] %s\n", n.Level, n.Message)
				}),
				Logger:         logging.Named("session"),
				RecentLimit:    cfg.Editor.RecentLimit,
				SymbolDebounce: cfg.Editor.SymbolDebounce,
			})
			defer func() {
				if err := s.Close(); err != nil {
					log.Warn("close session", zap.Error(err))
				}
			}()

			if !offline {
				rc, err := realtime.NewClient(realtime.Options{
					URL:            cfg.Realtime.URL,
					Token:          cfg.Token,
					ProjectID:      cfg.ProjectID,
					UserID:         cfg.UserID,
					Handlers:       s.RealtimeHandlers(),
					Logger:         logging.Named("realtime"),
					ReconnectMin:   cfg.Realtime.ReconnectMin,
					ReconnectMax:   cfg.Realtime.ReconnectMax,
					CursorInterval: cfg.Realtime.CursorInterval,
				})
				if err != nil {
					return err
				}
				s.Attach(rc)
				rc.Start(ctx)
			}

			if err := s.Load(ctx); err != nil {
				log.Warn("project loaded with errors", zap.Error(err))
			}
			fmt.Fprintf(out, "project %s: %d file(s), %d comment(s)\n",
				cfg.ProjectID, countFiles(s), len(s.Comments()))

			if len(args) == 1 {
				info, pos, err := s.OpenDeepLink(args[0])
				if err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
				} else {
					fmt.Fprintf(out, "opened %s at line %d\n", info.Path, pos.Line)
				}
			}
			return RunPalette(ctx, cmd.InOrStdin(), out, SessionActions(s, out))
		},
	}

	fl := cmd.Flags()
	fl.String("project", "", "project id")
	fl.String("token", "", "bearer token for the API and the room")
	fl.String("user-id", "", "override the user id read from the token")
	fl.String("api", "", "REST API base url")
	fl.String("ws", "", "room websocket url")
	fl.BoolVar(&offline, "offline", false, "do not join the project room")
	return cmd
}

func countFiles(s *session.Session) int {
	return len(tree.Files(s.Tree()))
}
