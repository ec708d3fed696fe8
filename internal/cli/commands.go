package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guan4tou2/Lnadlse/internal/adapters/builder"
	"github.com/guan4tou2/Lnadlse/internal/core/domain"
	"github.com/guan4tou2/Lnadlse/internal/core/lifecycle"
)

// maxArgs reports surplus arguments as a usage error.
func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

var noArgs = maxArgs(0)

func (r *runner) groupsOrAll(args []string) []string {
	if len(args) > 0 {
		return args
	}
	return r.app.Lab.GroupNames()
}

func (r *runner) installCmd() *cobra.Command {
	var (
		dir         string
		interactive bool
		group       string
	)
	cmd := &cobra.Command{
		Use:   "install [group...]",
		Short: "Create the lab network and build or pull every image",
		Long: `Without flags, install prepares every image of the named groups (all
groups by default). With --dir or --interactive a single Dockerfile
directory under the group's build root is built instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir != "" || interactive {
				return r.buildOne(cmd, group, dir, interactive)
			}
			for _, g := range r.groupsOrAll(args) {
				res, err := r.app.Controller.Install(cmd.Context(), g)
				printResult(cmd.OutOrStdout(), res)
				if err != nil {
					return err
				}
			}
			success(cmd.OutOrStdout(), "Images ready")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Dockerfile directory (relative to the build root, or its number)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "pick the Dockerfile directory from a list")
	cmd.Flags().StringVar(&group, "group", "simulation", "group whose build root is searched")
	return cmd
}

func (r *runner) buildCmd() *cobra.Command {
	var (
		dir         string
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "build [group]",
		Short: "Build one architecture-specific image from the group's build root",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group := "simulation"
			if len(args) == 1 {
				group = args[0]
			}
			return r.buildOne(cmd, group, dir, interactive || dir == "")
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Dockerfile directory (relative to the build root, or its number)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "pick the Dockerfile directory from a list")
	return cmd
}

// buildOne builds a single Dockerfile directory found under the group's
// build root. The choice is a relative path, a base name or a 1-based index.
func (r *runner) buildOne(cmd *cobra.Command, group, choice string, interactive bool) error {
	grp, err := r.app.Lab.Group(group)
	if err != nil {
		return err
	}
	if grp.BuildRoot == "" {
		return &domain.InvalidSelectionError{What: "build group", Value: group, Allowed: r.buildGroups()}
	}
	dirs, err := builder.FindDockerBuilds(grp.BuildRoot)
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		return fmt.Errorf("no Dockerfile found under %s", grp.BuildRoot)
	}

	choices := make([]string, 0, len(dirs))
	for _, d := range dirs {
		rel, err := filepath.Rel(grp.BuildRoot, d)
		if err != nil {
			rel = d
		}
		choices = append(choices, filepath.ToSlash(rel))
	}

	if interactive {
		choice, err = r.opts.Select("Select a Docker build directory", choices)
		if err != nil {
			return err
		}
	}
	idx := pick(choices, choice)
	if idx < 0 {
		return &domain.InvalidSelectionError{What: "build directory", Value: choice, Allowed: choices}
	}

	svc := buildDescriptor(grp, dirs[idx], choices[idx])
	arch, err := r.app.Builder.Architecture()
	if err != nil {
		return err
	}
	tag, err := r.app.Builder.Build(cmd.Context(), svc, arch)
	if err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Built %s (%s)", tag, arch)
	return nil
}

func (r *runner) buildGroups() []string {
	var names []string
	for _, g := range r.app.Lab.Groups {
		if g.BuildRoot != "" {
			names = append(names, g.Name)
		}
	}
	return names
}

func pick(choices []string, choice string) int {
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return -1
	}
	if n, err := strconv.Atoi(choice); err == nil {
		if n < 1 || n > len(choices) {
			return -1
		}
		return n - 1
	}
	for i, c := range choices {
		if c == choice || filepath.Base(c) == choice {
			return i
		}
	}
	return -1
}

// buildDescriptor reuses the declared service for dir, or names the image
// after the top-level directory it lives in (Targeted/nginx -> targeted-nginx).
func buildDescriptor(grp domain.ServiceGroup, dir, rel string) domain.ServiceDescriptor {
	for _, s := range grp.Services {
		if s.Build != nil && s.Build.Repo == "" && filepath.Clean(s.Build.Path) == filepath.Clean(dir) {
			return s
		}
	}
	prefix, _, _ := strings.Cut(rel, "/")
	if prefix == rel {
		prefix = filepath.Base(grp.BuildRoot)
	}
	return domain.ServiceDescriptor{
		Name:  filepath.Base(dir),
		Build: &domain.BuildSpec{Path: dir, Prefix: strings.ToLower(prefix)},
	}
}

func (r *runner) startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start [group] [service...]",
		Short: "Resume or create a group, waiting for its dependency first",
		Long: `start resumes a group's existing containers or creates them when none
exist. Without arguments every group is started in declaration order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, g := range r.app.Lab.GroupNames() {
					if err := r.apply(cmd, g, domain.ActionStart); err != nil {
						return err
					}
				}
				return nil
			}
			return r.apply(cmd, args[0], domain.ActionStart, args[1:]...)
		},
	}
}

func (r *runner) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop [group...]",
		Short: "Stop the containers of the named groups (all by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			groups := r.groupsOrAll(args)
			var errs []error
			for i := len(groups) - 1; i >= 0; i-- {
				errs = append(errs, r.apply(cmd, groups[i], domain.ActionStop))
			}
			return errors.Join(errs...)
		},
	}
}

func (r *runner) apply(cmd *cobra.Command, group string, action domain.Action, services ...string) error {
	res, err := r.app.Controller.Apply(cmd.Context(), group, action, services...)
	if err != nil {
		var exhausted *domain.ReadinessExhaustedError
		if errors.As(err, &exhausted) {
			warn(cmd.OutOrStdout(), "%s is not ready (%s), %s was not started", exhausted.Dependency, exhausted.Code, group)
		}
		return err
	}
	printResult(cmd.OutOrStdout(), res)
	return nil
}

func (r *runner) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [group...]",
		Short: "Remove the named groups (all by default) and sweep leftover containers",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := r.app.Controller.Teardown(cmd.Context(), args...)
			printResult(cmd.OutOrStdout(), res)

			var partial *domain.PartialCleanupError
			if errors.As(err, &partial) {
				for _, f := range partial.Failures {
					row(cmd.OutOrStdout(), f.Container, errorStyle.Render(f.Step+" failed"), f.Error)
				}
			}
			return err
		},
	}
}

func (r *runner) showCmd() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the lab-network addresses of a group's services",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			grp, err := r.app.Lab.Group(group)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			heading(w, fmt.Sprintf("%s on %s", grp.Name, r.app.Lab.Network))
			for _, s := range grp.Services {
				rec, err := r.app.Engine.GetContainer(cmd.Context(), s.Container())
				switch {
				case errors.Is(err, domain.ErrNotFound):
					row(w, s.Container(), domain.NoAddress, "not created")
					continue
				case err != nil:
					return err
				}
				ip := rec.Address(r.app.Lab.Network)
				if ip == "" {
					ip = domain.NoAddress
				}
				row(w, s.Container(), ip, string(rec.Status))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "analytics", "group to show")
	return cmd
}

func (r *runner) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [group]",
		Short: "Probe a group's readiness once with the configured budget",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group := "analytics"
			if len(args) == 1 {
				group = args[0]
			}
			res, err := r.app.Gate.Check(cmd.Context(), group)
			w := cmd.OutOrStdout()
			for _, p := range res.Last {
				row(w, p.Target, string(p.State), string(p.Code))
			}
			if err != nil {
				return err
			}
			success(w, "%s is ready after %d attempt(s)", group, res.Attempts)
			return nil
		},
	}
}

func printResult(w io.Writer, res lifecycle.Result) {
	if res.Group == "" {
		return
	}
	heading(w, fmt.Sprintf("%s %s: %s", res.Group, res.Action, res.Mode))
	if res.Readiness != nil {
		row(w, res.Readiness.Dependency, string(res.Readiness.Verdict), fmt.Sprintf("after %d attempt(s)", res.Readiness.Attempts))
	}
	for _, s := range res.Services {
		detail := s.Detail
		if detail == "" {
			detail = s.Image
		}
		row(w, s.Container, s.Step, detail)
	}
	if res.Mode == lifecycle.ModeAlreadyRunning {
		warn(w, "%s is already running", res.Group)
	}
	if res.HandoffErr != nil {
		warn(w, "%v", res.HandoffErr)
	}
}
