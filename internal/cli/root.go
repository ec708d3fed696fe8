// Package cli implements the rangectl operator commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/guan4tou2/Lnadlse/internal/app"
	"github.com/guan4tou2/Lnadlse/internal/config"
	"github.com/guan4tou2/Lnadlse/internal/logging"
)

// Options customizes how commands reach the outside world.
type Options struct {
	Out    io.Writer
	Err    io.Writer
	Open   func(ctx context.Context, cfg *config.Config) (*app.App, error)
	Select func(title string, choices []string) (string, error)
}

type runner struct {
	opts       Options
	configPath string
	logLevel   string
	app        *app.App
}

// NewRootCommand builds the rangectl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.Open == nil {
		opts.Open = app.New
	}
	if opts.Select == nil {
		opts.Select = promptSelect
	}
	r := &runner{opts: opts}

	root := &cobra.Command{
		Use:   "rangectl",
		Short: "Stand up and tear down the cyber-range lab",
		Long: `rangectl builds the lab images, starts the analytics stack and the
target/attacker machines once it is ready, and tears everything down again.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: r.open,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if r.app != nil {
				return r.app.Close()
			}
			return nil
		},
	}
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})
	root.PersistentFlags().StringVarP(&r.configPath, "config", "c", "", "config file (default: rangectl.yml)")
	root.PersistentFlags().StringVar(&r.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		r.installCmd(),
		r.buildCmd(),
		r.startCmd(),
		r.stopCmd(),
		r.removeCmd(),
		r.showCmd(),
		r.checkCmd(),
	)
	return root
}

func (r *runner) open(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" {
		return nil
	}
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if r.logLevel != "" {
		cfg.Logging.Level = r.logLevel
	}
	logging.Configure(cfg.Logging.Level, cfg.Logging.Format, r.opts.Err)

	a, err := r.opts.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	r.app = a
	return nil
}

// Execute runs rangectl with the process arguments and returns the exit code.
func Execute(ctx context.Context) int {
	cmd := NewRootCommand(Options{})
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprint(os.Stderr, formatError(err.Error(), "", hintFor(err)))
		log.Debug().Err(err).Msg("command failed")
	}
	return ExitCode(err)
}

func hintFor(err error) string {
	switch ExitCode(err) {
	case ExitNotReady:
		return "run 'rangectl check' to see which service is not ready"
	case ExitSelection:
		return "run 'rangectl --help' for the available groups and commands"
	}
	return ""
}

func promptSelect(title string, choices []string) (string, error) {
	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(title).
				Options(huh.NewOptions(choices...)...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return choice, nil
}
