package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/eventhub/internal/client/client"
	"github.com/dmitrijs2005/eventhub/internal/client/config"
	"github.com/dmitrijs2005/eventhub/internal/client/services"
	"github.com/dmitrijs2005/eventhub/internal/client/session"
	"github.com/spf13/cobra"
)

// App carries what every command needs once flags are parsed.
type App struct {
	config      *config.Config
	authService *services.AuthService
	store       *session.Store
	reader      *bufio.Reader
	out         io.Writer
}

type rootFlags struct {
	configFile string
	server     string
	sessionDB  string
}

// Execute runs the command line in args and releases the session store.
func Execute(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	app := &App{reader: bufio.NewReader(in), out: out}
	defer app.close()

	root := app.newRootCommand()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}

func (a *App) newRootCommand() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:           "eventhub",
		Short:         "Command-line client for the eventhub account API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.init(cmd, flags)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "path to a JSON or YAML config file")
	pf.StringVarP(&flags.server, "server", "a", "", "server base URL")
	pf.StringVarP(&flags.sessionDB, "session", "d", "", "path to the local session database")

	cmd.AddCommand(
		a.newRegisterCommand(),
		a.newLoginCommand(),
		a.newRefreshCommand(),
		a.newProfileCommand(),
		a.newLogoutCommand(),
		a.newVersionCommand(),
	)
	return cmd
}

func (a *App) init(cmd *cobra.Command, flags rootFlags) error {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("server") {
		cfg.ServerURL = flags.server
	}
	if cmd.Flags().Changed("session") {
		cfg.SessionDB = flags.sessionDB
	}
	a.config = cfg

	if cfg.SessionDB != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.SessionDB), 0o700); err != nil {
			return fmt.Errorf("session directory: %w", err)
		}
	}
	store, err := session.Open(cmd.Context(), cfg.SessionDB)
	if err != nil {
		return err
	}
	a.store = store
	a.authService = services.NewAuthService(client.NewHTTPClient(cfg.ServerURL, cfg.Timeout), store)
	return nil
}

func (a *App) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}
