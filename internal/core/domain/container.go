package domain

// ContainerStatus is the normalized lifecycle state of a container.
type ContainerStatus string

const (
	StatusCreated ContainerStatus = "created"
	StatusRunning ContainerStatus = "running"
	StatusStopped ContainerStatus = "stopped"
	StatusRemoved ContainerStatus = "removed"
	StatusUnknown ContainerStatus = "unknown"
)

// NoAddress is reported for a network attachment without an IP.
const NoAddress = "N/A"

// ContainerRecord is a point-in-time view of a container owned by the engine.
// Addresses must not be cached across calls.
type ContainerRecord struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Image     string            `json:"image"`
	Status    ContainerStatus   `json:"status"`
	State     string            `json:"state"` // raw engine state: running, exited, etc.
	Addresses map[string]string `json:"ip_addresses"`
}

// ShortID returns the 12 character engine id prefix.
func (c ContainerRecord) ShortID() string {
	if len(c.ID) > 12 {
		return c.ID[:12]
	}
	return c.ID
}

// Address returns the IP on the named network, or "" when not attached.
func (c ContainerRecord) Address(network string) string {
	ip, ok := c.Addresses[network]
	if !ok || ip == "" || ip == NoAddress {
		return ""
	}
	return ip
}

// Running reports whether the engine considers the container running.
func (c ContainerRecord) Running() bool {
	return c.Status == StatusRunning
}

// NetworkRecord describes an engine network. Membership is derived per query.
type NetworkRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

// PortBinding publishes a container port on the host.
type PortBinding struct {
	Host      int    `yaml:"host" json:"host"`
	Container int    `yaml:"container" json:"container"`
	Protocol  string `yaml:"protocol,omitempty" json:"protocol,omitempty"`
}

// ContainerSpec is everything the engine needs to create and start one container.
type ContainerSpec struct {
	Name       string
	Image      string
	Network    string
	Aliases    []string
	Env        map[string]string
	Command    []string
	Ports      []PortBinding
	Volumes    []string
	Privileged bool
	CapAdd     []string
	Labels     map[string]string
}
