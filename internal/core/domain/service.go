package domain

import (
	"fmt"
	"slices"
	"strings"
)

// ArchPlaceholder is substituted with the host architecture in image
// references and Dockerfile templates.
const ArchPlaceholder = "{{ARCH}}"

// CheckKind selects how a service's readiness is verified.
type CheckKind string

const (
	CheckHTTP    CheckKind = "http"
	CheckHTTPS   CheckKind = "https"
	CheckRunning CheckKind = "running"
)

// ReadinessCheck describes the probe for one service.
type ReadinessCheck struct {
	Kind           CheckKind     `yaml:"kind"`
	Port           int           `yaml:"port,omitempty"`
	Path           string        `yaml:"path,omitempty"`
	ExpectStatus   int           `yaml:"expect_status,omitempty"`
	UseCredentials bool          `yaml:"use_credentials,omitempty"`
	NotFoundCode   ReadinessCode `yaml:"not_found_code,omitempty"`
	NotReadyCode   ReadinessCode `yaml:"not_ready_code,omitempty"`
}

// ConfigHandoff rewrites a downstream config file with a discovered address.
type ConfigHandoff struct {
	File           string `yaml:"file"`
	HostPattern    string `yaml:"host_pattern"`
	HostTemplate   string `yaml:"host_template"`
	CredentialLine string `yaml:"credential_line,omitempty"`
}

// BuildSpec locates the Dockerfile template for a locally built image.
type BuildSpec struct {
	Path       string `yaml:"path"`
	Dockerfile string `yaml:"dockerfile,omitempty"`
	Prefix     string `yaml:"prefix"`
	Repo       string `yaml:"repo,omitempty"`
	Ref        string `yaml:"ref,omitempty"`
}

// Role tags what a service is for inside its group.
type Role string

const (
	RoleTarget   Role = "target"
	RoleAttacker Role = "attacker"
	// RoleCapture services start with every role-based selection.
	RoleCapture Role = "capture"
)

// ServiceDescriptor is one deployable unit of the lab.
type ServiceDescriptor struct {
	Name          string            `yaml:"name"`
	Role          Role              `yaml:"role,omitempty"`
	ContainerName string            `yaml:"container_name,omitempty"`
	Image         string            `yaml:"image,omitempty"`
	Build         *BuildSpec        `yaml:"build,omitempty"`
	Env           map[string]string `yaml:"env,omitempty"`
	Command       []string          `yaml:"command,omitempty"`
	Ports         []PortBinding     `yaml:"ports,omitempty"`
	Volumes       []string          `yaml:"volumes,omitempty"`
	Privileged    bool              `yaml:"privileged,omitempty"`
	CapAdd        []string          `yaml:"cap_add,omitempty"`
	Readiness     *ReadinessCheck   `yaml:"readiness,omitempty"`
	Handoff       *ConfigHandoff    `yaml:"handoff,omitempty"`
}

// Container returns the engine-side container name.
func (s ServiceDescriptor) Container() string {
	if s.ContainerName != "" {
		return s.ContainerName
	}
	return s.Name
}

// ImageFor renders the image reference for the given architecture.
func (s ServiceDescriptor) ImageFor(arch Architecture) string {
	return strings.ReplaceAll(s.Image, ArchPlaceholder, string(arch))
}

// NotFoundCode is reported when the service's address cannot be resolved.
func (s ServiceDescriptor) NotFoundCode() ReadinessCode {
	if s.Readiness != nil && s.Readiness.NotFoundCode != "" {
		return s.Readiness.NotFoundCode
	}
	return ReadinessCode(codeName(s.Name) + "_IP_NOT_FOUND")
}

// NotReadyCode is reported when the service answers with the wrong status.
func (s ServiceDescriptor) NotReadyCode() ReadinessCode {
	if s.Readiness != nil && s.Readiness.NotReadyCode != "" {
		return s.Readiness.NotReadyCode
	}
	return ReadinessCode(codeName(s.Name) + "_NOT_READY")
}

func codeName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

// ServiceGroup is a set of services managed as one unit.
type ServiceGroup struct {
	Name      string              `yaml:"name"`
	DependsOn string              `yaml:"depends_on,omitempty"`
	Defaults  []string            `yaml:"defaults,omitempty"`
	BuildRoot string              `yaml:"build_root,omitempty"`
	Compose   string              `yaml:"compose,omitempty"`
	Project   string              `yaml:"project,omitempty"`
	Services  []ServiceDescriptor `yaml:"services,omitempty"`
}

// Service looks up a descriptor by logical name.
func (g ServiceGroup) Service(name string) (ServiceDescriptor, bool) {
	for _, s := range g.Services {
		if s.Name == name {
			return s, true
		}
	}
	return ServiceDescriptor{}, false
}

// ServiceNames lists the group's services in declaration order.
func (g ServiceGroup) ServiceNames() []string {
	names := make([]string, 0, len(g.Services))
	for _, s := range g.Services {
		names = append(names, s.Name)
	}
	return names
}

// Select resolves a start request to descriptors. An empty request selects
// the group's defaults, or every service when no defaults are declared.
func (g ServiceGroup) Select(names ...string) ([]ServiceDescriptor, error) {
	if len(names) == 0 {
		names = g.Defaults
	}
	if len(names) == 0 {
		return append([]ServiceDescriptor(nil), g.Services...), nil
	}
	out := make([]ServiceDescriptor, 0, len(names))
	for _, n := range names {
		s, ok := g.Service(n)
		if !ok {
			return nil, &InvalidSelectionError{What: g.Name + " service", Value: n, Allowed: g.ServiceNames()}
		}
		out = append(out, s)
	}
	return out, nil
}

// NamesWithRole lists the services tagged with role in declaration order.
func (g ServiceGroup) NamesWithRole(role Role) []string {
	var names []string
	for _, s := range g.Services {
		if s.Role == role {
			names = append(names, s.Name)
		}
	}
	return names
}

// SelectPair resolves a target/attacker request to service names: the
// target, the attacker, then every capture service. Groups without any
// role tags accept the two names as given.
func (g ServiceGroup) SelectPair(target, attacker string) ([]string, error) {
	targets, attackers := g.NamesWithRole(RoleTarget), g.NamesWithRole(RoleAttacker)
	if len(targets) == 0 && len(attackers) == 0 {
		return []string{target, attacker}, nil
	}
	if !slices.Contains(targets, target) {
		return nil, &InvalidSelectionError{What: "target", Value: target, Allowed: targets}
	}
	if !slices.Contains(attackers, attacker) {
		return nil, &InvalidSelectionError{What: "attacker", Value: attacker, Allowed: attackers}
	}
	return append([]string{target, attacker}, g.NamesWithRole(RoleCapture)...), nil
}

// Lab is the static topology of the range.
type Lab struct {
	Network string         `yaml:"network"`
	Groups  []ServiceGroup `yaml:"groups"`
}

// Group looks up a group by name.
func (l *Lab) Group(name string) (ServiceGroup, error) {
	for _, g := range l.Groups {
		if g.Name == name {
			return g, nil
		}
	}
	return ServiceGroup{}, &UnknownGroupError{Name: name}
}

// GroupNames lists every declared group.
func (l *Lab) GroupNames() []string {
	names := make([]string, 0, len(l.Groups))
	for _, g := range l.Groups {
		names = append(names, g.Name)
	}
	return names
}

// Validate checks names, references and dependency cycles.
func (l *Lab) Validate() error {
	if l.Network == "" {
		return fmt.Errorf("lab: network name is required")
	}
	groups := map[string]ServiceGroup{}
	containers := map[string]string{}
	for _, g := range l.Groups {
		if g.Name == "" {
			return fmt.Errorf("lab: group name is required")
		}
		if _, dup := groups[g.Name]; dup {
			return fmt.Errorf("lab: duplicate group %q", g.Name)
		}
		groups[g.Name] = g
		for _, s := range g.Services {
			if s.Name == "" {
				return fmt.Errorf("lab: group %q has a service without a name", g.Name)
			}
			if s.Image == "" && s.Build == nil {
				return fmt.Errorf("lab: service %q needs an image or a build", s.Name)
			}
			switch s.Role {
			case "", RoleTarget, RoleAttacker, RoleCapture:
			default:
				return fmt.Errorf("lab: service %q has unknown role %q", s.Name, s.Role)
			}
			if owner, dup := containers[s.Container()]; dup {
				return fmt.Errorf("lab: container %q declared by %q and %q", s.Container(), owner, g.Name)
			}
			containers[s.Container()] = g.Name
		}
		for _, d := range g.Defaults {
			if _, ok := g.Service(d); !ok {
				return fmt.Errorf("lab: group %q default %q is not a declared service", g.Name, d)
			}
		}
	}
	for _, g := range l.Groups {
		seen := map[string]bool{g.Name: true}
		for dep := g.DependsOn; dep != ""; dep = groups[dep].DependsOn {
			if _, ok := groups[dep]; !ok {
				return fmt.Errorf("lab: group %q depends on unknown group %q", g.Name, dep)
			}
			if seen[dep] {
				return fmt.Errorf("lab: dependency cycle through group %q", dep)
			}
			seen[dep] = true
		}
	}
	return nil
}
