// Package inventory classifies live containers and networks into the lab's
// clusters. Every call queries the engine afresh.
package inventory

import (
	"context"
	"sort"
	"strings"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
	"github.com/guan4tou2/Lnadlse/internal/core/ports"
)

var (
	analyticsPrefixes  = []string{"elk", "elasticsearch", "logstash", "kibana"}
	simulationPrefixes = []string{"target", "attacker"}
)

// ConnectionTemplate maps a base-key substring to how operators reach it.
type ConnectionTemplate struct {
	Key         string
	Type        string
	URL         string // {ip} is replaced with the container address
	Credentials *domain.Credentials
}

// DefaultTemplates is the ordered lookup table; the first match wins.
func DefaultTemplates(elasticPassword string, attacker domain.Credentials) []ConnectionTemplate {
	return []ConnectionTemplate{
		{Key: "target", Type: "Web", URL: "http://{ip}:80"},
		{Key: "elk-es", Type: "Web", URL: "https://{ip}:9200", Credentials: &domain.Credentials{Username: "elastic", Password: elasticPassword}},
		{Key: "elk-kibana", Type: "Web", URL: "http://{ip}:5601", Credentials: &domain.Credentials{Username: "elastic", Password: elasticPassword}},
		{Key: "attacker", Type: "Web VNC", URL: "http://{ip}:8080/vnc.html", Credentials: &attacker},
	}
}

// Classifier answers read-only inventory queries.
type Classifier struct {
	engine    ports.EngineGateway
	network   string
	templates []ConnectionTemplate
}

// NewClassifier creates a classifier. network is the lab network whose
// addresses are preferred for connection URLs.
func NewClassifier(engine ports.EngineGateway, network string, templates []ConnectionTemplate) *Classifier {
	return &Classifier{engine: engine, network: network, templates: templates}
}

// Classify returns the cluster for a container name, or false when the name
// belongs to neither cluster.
func Classify(name string) (domain.Cluster, bool) {
	lower := strings.ToLower(name)
	for _, p := range analyticsPrefixes {
		if strings.Contains(lower, p) {
			return domain.ClusterAnalytics, true
		}
	}
	for _, p := range simulationPrefixes {
		if strings.Contains(lower, p) {
			return domain.ClusterSimulation, true
		}
	}
	return "", false
}

// BaseKey lower-cases name and strips trailing digits, then trailing hyphens.
func BaseKey(name string) string {
	key := strings.TrimRight(strings.ToLower(name), "0123456789")
	return strings.TrimRight(key, "-")
}

// ListContainers returns every classified container, running or not.
func (c *Classifier) ListContainers(ctx context.Context) ([]domain.ContainerView, error) {
	records, err := c.engine.ListContainers(ctx, true)
	if err != nil {
		return nil, err
	}
	views := make([]domain.ContainerView, 0, len(records))
	for _, rec := range records {
		cluster, ok := Classify(rec.Name)
		if !ok {
			continue
		}
		key := BaseKey(rec.Name)
		views = append(views, domain.ContainerView{
			ID:          rec.ShortID(),
			Name:        rec.Name,
			Status:      rec.Status,
			Image:       rec.Image,
			IPAddresses: rec.Addresses,
			Cluster:     cluster,
			BaseKey:     key,
			Connection:  c.connection(key, rec),
		})
	}
	return views, nil
}

// ListNetworks returns networks with at least one classified container attached.
func (c *Classifier) ListNetworks(ctx context.Context) ([]domain.NetworkView, error) {
	networks, err := c.engine.ListNetworks(ctx)
	if err != nil {
		return nil, err
	}
	records, err := c.engine.ListContainers(ctx, true)
	if err != nil {
		return nil, err
	}

	members := map[string][]domain.ContainerRef{}
	for _, rec := range records {
		if _, ok := Classify(rec.Name); !ok {
			continue
		}
		for netName := range rec.Addresses {
			members[netName] = append(members[netName], domain.ContainerRef{ID: rec.ShortID(), Name: rec.Name, Status: rec.Status})
		}
	}

	views := make([]domain.NetworkView, 0, len(members))
	for _, n := range networks {
		refs := members[n.Name]
		if len(refs) == 0 {
			continue
		}
		sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
		views = append(views, domain.NetworkView{ID: n.ID, Name: n.Name, Driver: n.Driver, Containers: refs})
	}
	return views, nil
}

// Lookup returns the classified view for a container name.
func (c *Classifier) Lookup(ctx context.Context, name string) (domain.ContainerView, bool, error) {
	views, err := c.ListContainers(ctx)
	if err != nil {
		return domain.ContainerView{}, false, err
	}
	for _, v := range views {
		if v.Name == name {
			return v, true, nil
		}
	}
	return domain.ContainerView{}, false, nil
}

func (c *Classifier) connection(key string, rec domain.ContainerRecord) *domain.Connection {
	for _, t := range c.templates {
		if !strings.Contains(key, t.Key) {
			continue
		}
		ip := c.address(rec)
		if ip == "" {
			return nil
		}
		return &domain.Connection{
			Type:        t.Type,
			URL:         strings.ReplaceAll(t.URL, "{ip}", ip),
			Credentials: t.Credentials,
		}
	}
	return nil
}

// address prefers the lab network, then the first other network by name.
func (c *Classifier) address(rec domain.ContainerRecord) string {
	if ip := rec.Address(c.network); ip != "" {
		return ip
	}
	names := make([]string, 0, len(rec.Addresses))
	for n := range rec.Addresses {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if ip := rec.Address(n); ip != "" {
			return ip
		}
	}
	return ""
}
