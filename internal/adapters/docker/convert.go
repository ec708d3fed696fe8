package docker

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
)

func fromSummary(c types.Container) domain.ContainerRecord {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	var nets map[string]*network.EndpointSettings
	if c.NetworkSettings != nil {
		nets = c.NetworkSettings.Networks
	}
	return domain.ContainerRecord{
		ID:        c.ID,
		Name:      name,
		Image:     c.Image,
		Status:    normalizeStatus(c.State),
		State:     c.State,
		Addresses: addresses(nets),
	}
}

func fromInspect(info types.ContainerJSON) domain.ContainerRecord {
	rec := domain.ContainerRecord{Status: domain.StatusUnknown, Addresses: map[string]string{}}
	if info.ContainerJSONBase != nil {
		rec.ID = info.ID
		rec.Name = strings.TrimPrefix(info.Name, "/")
		rec.Image = info.Image
		if info.State != nil {
			rec.State = info.State.Status
			rec.Status = normalizeStatus(info.State.Status)
		}
	}
	if info.Config != nil && info.Config.Image != "" {
		rec.Image = info.Config.Image
	}
	if info.NetworkSettings != nil {
		rec.Addresses = addresses(info.NetworkSettings.Networks)
	}
	return rec
}

func addresses(nets map[string]*network.EndpointSettings) map[string]string {
	out := make(map[string]string, len(nets))
	for name, ep := range nets {
		ip := domain.NoAddress
		if ep != nil && ep.IPAddress != "" {
			ip = ep.IPAddress
		}
		out[name] = ip
	}
	return out
}

// normalizeStatus folds the engine's state machine into the domain's five states.
func normalizeStatus(state string) domain.ContainerStatus {
	switch strings.ToLower(state) {
	case "running", "restarting":
		return domain.StatusRunning
	case "created":
		return domain.StatusCreated
	case "exited", "dead", "paused":
		return domain.StatusStopped
	case "removing":
		return domain.StatusRemoved
	default:
		return domain.StatusUnknown
	}
}

func portMaps(ports []domain.PortBinding) (nat.PortSet, nat.PortMap, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		port, err := nat.NewPort(proto, strconv.Itoa(p.Container))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid port %d/%s: %w", p.Container, proto, err)
		}
		exposed[port] = struct{}{}
		if p.Host > 0 {
			bindings[port] = append(bindings[port], nat.PortBinding{HostPort: strconv.Itoa(p.Host)})
		}
	}
	return exposed, bindings, nil
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
