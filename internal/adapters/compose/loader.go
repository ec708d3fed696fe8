// Package compose imports service descriptors from docker-compose files.
package compose

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/cli"
	"github.com/compose-spec/compose-go/v2/types"
	"github.com/rs/zerolog/log"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
)

// Load parses the compose file at path and returns one descriptor per
// service, sorted by service name. Containers default to the name compose
// itself would assign ("<project>-<service>-1").
func Load(ctx context.Context, path, project string) ([]domain.ServiceDescriptor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve compose path: %w", err)
	}
	dir := filepath.Dir(abs)
	if project == "" {
		project = filepath.Base(dir)
	}

	opts, err := cli.NewProjectOptions(
		[]string{abs},
		cli.WithWorkingDirectory(dir),
		cli.WithName(strings.ToLower(project)),
		cli.WithDotEnv,
		cli.WithInterpolation(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure compose loader: %w", err)
	}
	p, err := cli.ProjectFromOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load compose file %s: %w", path, err)
	}

	names := make([]string, 0, len(p.Services))
	for name := range p.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]domain.ServiceDescriptor, 0, len(names))
	for _, name := range names {
		out = append(out, descriptor(p.Name, dir, p.Services[name]))
	}
	log.Debug().Str("file", abs).Int("services", len(out)).Msg("imported compose services")
	return out, nil
}

func descriptor(project, dir string, svc types.ServiceConfig) domain.ServiceDescriptor {
	d := domain.ServiceDescriptor{
		Name:          svc.Name,
		ContainerName: svc.ContainerName,
		Image:         svc.Image,
		Command:       []string(svc.Command),
		Privileged:    svc.Privileged,
		CapAdd:        svc.CapAdd,
	}
	if d.ContainerName == "" {
		d.ContainerName = project + "-" + svc.Name + "-1"
	}

	if svc.Build != nil {
		ctxDir := svc.Build.Context
		if ctxDir == "" {
			ctxDir = "."
		}
		if !filepath.IsAbs(ctxDir) {
			ctxDir = filepath.Join(dir, ctxDir)
		}
		d.Build = &domain.BuildSpec{
			Path:       ctxDir,
			Dockerfile: svc.Build.Dockerfile,
			Prefix:     project,
		}
	}

	if len(svc.Environment) > 0 {
		d.Env = make(map[string]string, len(svc.Environment))
		for k, v := range svc.Environment {
			if v != nil {
				d.Env[k] = *v
			} else {
				d.Env[k] = ""
			}
		}
	}

	for _, p := range svc.Ports {
		b := domain.PortBinding{Container: int(p.Target), Protocol: p.Protocol}
		if p.Published != "" {
			host, err := strconv.Atoi(p.Published)
			if err != nil {
				log.Warn().Str("service", svc.Name).Str("published", p.Published).Msg("skipping port range")
				continue
			}
			b.Host = host
		}
		d.Ports = append(d.Ports, b)
	}

	for _, v := range svc.Volumes {
		if v.Source == "" {
			continue
		}
		spec := v.Source + ":" + v.Target
		if v.ReadOnly {
			spec += ":ro"
		}
		d.Volumes = append(d.Volumes, spec)
	}
	return d
}
