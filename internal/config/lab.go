package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/guan4tou2/Lnadlse/internal/adapters/beatconfig"
	"github.com/guan4tou2/Lnadlse/internal/adapters/compose"
	"github.com/guan4tou2/Lnadlse/internal/core/domain"
)

// LoadLab reads the lab topology from cfg.Lab.File, falling back to the
// built-in lab when the file does not exist. Compose imports are expanded,
// relative build paths are resolved against cfg.Lab.Root and the result is
// validated.
func LoadLab(ctx context.Context, cfg *Config) (*domain.Lab, error) {
	lab, err := readLab(cfg.Lab.File)
	if err != nil {
		return nil, err
	}
	if lab == nil {
		log.Debug().Str("file", cfg.Lab.File).Msg("lab file not found, using built-in lab")
		lab = DefaultLab()
	}
	if lab.Network == "" {
		lab.Network = cfg.Lab.Network
	}

	for i := range lab.Groups {
		g := &lab.Groups[i]
		if g.Compose != "" {
			imported, err := compose.Load(ctx, resolve(cfg.Lab.Root, g.Compose), g.Project)
			if err != nil {
				return nil, fmt.Errorf("group %s: %w", g.Name, err)
			}
			for _, svc := range imported {
				if _, ok := g.Service(svc.Name); !ok {
					g.Services = append(g.Services, svc)
				}
			}
		}
		if g.BuildRoot != "" {
			g.BuildRoot = resolve(cfg.Lab.Root, g.BuildRoot)
		}
		for j := range g.Services {
			svc := &g.Services[j]
			if svc.Build != nil && svc.Build.Repo == "" {
				b := *svc.Build
				b.Path = resolve(cfg.Lab.Root, b.Path)
				svc.Build = &b
			}
			for k, v := range svc.Volumes {
				svc.Volumes[k] = resolveBind(cfg.Lab.Root, v)
			}
		}
	}

	if err := lab.Validate(); err != nil {
		return nil, err
	}
	return lab, nil
}

func readLab(path string) (*domain.Lab, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read lab file: %w", err)
	}
	return ParseLab(content)
}

// ParseLab decodes a lab document. Unknown fields are rejected.
func ParseLab(content []byte) (*domain.Lab, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	var lab domain.Lab
	if err := dec.Decode(&lab); err != nil {
		return nil, fmt.Errorf("failed to parse lab file: %w", err)
	}
	return &lab, nil
}

func resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) || root == "" {
		return p
	}
	return filepath.Join(root, p)
}

// resolveBind makes a relative bind mount source absolute; the engine
// rejects relative sources.
func resolveBind(root, spec string) string {
	if !strings.HasPrefix(spec, ".") {
		return spec
	}
	src, rest, _ := strings.Cut(spec, ":")
	abs, err := filepath.Abs(resolve(root, src))
	if err != nil {
		return spec
	}
	if rest == "" {
		return abs
	}
	return abs + ":" + rest
}

// DefaultLab is the stock range: an analytics stack, then targets and
// attackers that wait for it.
func DefaultLab() *domain.Lab {
	const stack = "9.0.0"
	return &domain.Lab{
		Network: "elk_net",
		Groups: []domain.ServiceGroup{
			{
				Name: "analytics",
				Services: []domain.ServiceDescriptor{
					{
						Name:          "es01",
						ContainerName: "elk-es01-1",
						Image:         "docker.elastic.co/elasticsearch/elasticsearch:" + stack,
						Env: map[string]string{
							"discovery.type":         "single-node",
							"xpack.security.enabled": "true",
						},
						Ports: []domain.PortBinding{{Host: 9200, Container: 9200}},
						Readiness: &domain.ReadinessCheck{
							Kind:           domain.CheckHTTPS,
							Port:           9200,
							UseCredentials: true,
							NotFoundCode:   domain.CodeESIPNotFound,
							NotReadyCode:   domain.CodeESNotReady,
						},
						Handoff: &domain.ConfigHandoff{
							File:           "Machines/Beat/packetbeat.yml",
							HostPattern:    beatconfig.DefaultHostPattern,
							HostTemplate:   beatconfig.DefaultHostTemplate,
							CredentialLine: beatconfig.DefaultCredentialLine,
						},
					},
					{
						Name:          "kibana",
						ContainerName: "elk-kibana-1",
						Image:         "docker.elastic.co/kibana/kibana:" + stack,
						Env:           map[string]string{"ELASTICSEARCH_HOSTS": "https://es01:9200"},
						Ports:         []domain.PortBinding{{Host: 5601, Container: 5601}},
						Readiness: &domain.ReadinessCheck{
							Kind:         domain.CheckHTTP,
							Port:         5601,
							Path:         "/api/status",
							NotFoundCode: domain.CodeKibanaIPNotFound,
							NotReadyCode: domain.CodeKibanaNotReady,
						},
					},
				},
			},
			{
				Name:      "simulation",
				DependsOn: "analytics",
				Defaults:  []string{"nginx", "kali-novnc", "packetbeat"},
				BuildRoot: "Machines",
				Services: []domain.ServiceDescriptor{
					target("nginx"),
					target("httpd"),
					attacker("kali-novnc", "novnc", 8080),
					attacker("kali-xrdp", "xrdp", 3389),
					attacker("kali-x11", "x11", 0),
					{
						Name:          "packetbeat",
						Role:          domain.RoleCapture,
						ContainerName: "elk-packetbeat-1",
						Build:         &domain.BuildSpec{Path: "Machines/Beat", Prefix: "beat"},
						CapAdd:        []string{"NET_ADMIN", "NET_RAW"},
						Volumes:       []string{"./Machines/Beat/packetbeat.yml:/usr/share/packetbeat/packetbeat.yml:ro"},
					},
				},
			},
		},
	}
}

func target(kind string) domain.ServiceDescriptor {
	return domain.ServiceDescriptor{
		Name:          kind,
		Role:          domain.RoleTarget,
		ContainerName: "target-" + kind,
		Build:         &domain.BuildSpec{Path: "Machines/Targeted/" + kind, Prefix: "target"},
	}
}

func attacker(name, dir string, port int) domain.ServiceDescriptor {
	svc := domain.ServiceDescriptor{
		Name:          name,
		Role:          domain.RoleAttacker,
		ContainerName: "attacker-" + name,
		Build:         &domain.BuildSpec{Path: "Machines/Attacker/" + dir, Prefix: "attacker"},
		CapAdd:        []string{"NET_ADMIN"},
	}
	if port != 0 {
		svc.Ports = []domain.PortBinding{{Container: port}}
	}
	return svc
}
