package domain

// Cluster is the logical grouping a container is classified into.
type Cluster string

const (
	ClusterAnalytics  Cluster = "analytics"
	ClusterSimulation Cluster = "simulation"
)

// Credentials are shown to operators next to a connection URL.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Connection tells an operator how to reach a container.
type Connection struct {
	Type        string       `json:"type"`
	URL         string       `json:"url"`
	Credentials *Credentials `json:"credentials"`
}

// ContainerView is a classified container as presented to operators.
type ContainerView struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Status      ContainerStatus   `json:"status"`
	Image       string            `json:"image"`
	IPAddresses map[string]string `json:"ip_addresses"`
	Cluster     Cluster           `json:"cluster"`
	BaseKey     string            `json:"base_key"`
	Connection  *Connection       `json:"connection"`
}

// ContainerRef is a container attached to a reported network.
type ContainerRef struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Status ContainerStatus `json:"status"`
}

// NetworkView is a network with at least one classified container attached.
type NetworkView struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Driver     string         `json:"driver"`
	Containers []ContainerRef `json:"containers"`
}
