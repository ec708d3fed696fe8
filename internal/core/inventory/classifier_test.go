package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
	"github.com/guan4tou2/Lnadlse/internal/enginefake"
)

func newClassifier(eng *enginefake.Engine) *Classifier {
	return NewClassifier(eng, "elk_net", DefaultTemplates("changeme", domain.Credentials{Username: "kali", Password: "kalilinux"}))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		cluster domain.Cluster
		ok      bool
	}{
		{"Elk-Es01-1", domain.ClusterAnalytics, true},
		{"my-kibana", domain.ClusterAnalytics, true},
		{"logstash", domain.ClusterAnalytics, true},
		{"target-nginx", domain.ClusterSimulation, true},
		{"Attacker-Kali", domain.ClusterSimulation, true},
		{"db-worker-3", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cluster, ok := Classify(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.cluster, cluster)
		})
	}
}

func TestBaseKey(t *testing.T) {
	assert.Equal(t, "elk-es01", BaseKey("Elk-Es01-1"))
	assert.Equal(t, "target-nginx", BaseKey("target-nginx"))
	assert.Equal(t, "attacker-kali", BaseKey("attacker-kali-12"))
	assert.Equal(t, "", BaseKey("123"))
}

func TestListContainersOmitsUnclassified(t *testing.T) {
	eng := enginefake.New()
	eng.AddContainer(domain.ContainerRecord{Name: "Elk-Es01-1", Status: domain.StatusRunning, Addresses: map[string]string{"elk_net": "172.18.0.2"}})
	eng.AddContainer(domain.ContainerRecord{Name: "db-worker-3", Status: domain.StatusRunning, Addresses: map[string]string{"elk_net": "172.18.0.9"}})

	views, err := newClassifier(eng).ListContainers(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 1)

	v := views[0]
	assert.Equal(t, domain.ClusterAnalytics, v.Cluster)
	assert.Equal(t, "elk-es01", v.BaseKey)
	require.NotNil(t, v.Connection)
	assert.Equal(t, "https://172.18.0.2:9200", v.Connection.URL)
	assert.Equal(t, "elastic", v.Connection.Credentials.Username)
	assert.Equal(t, "changeme", v.Connection.Credentials.Password)
	assert.Len(t, v.ID, 12)
}

func TestConnectionResolution(t *testing.T) {
	eng := enginefake.New()
	eng.AddContainer(domain.ContainerRecord{Name: "target-nginx", Addresses: map[string]string{"bridge": "172.17.0.4", "aaa": domain.NoAddress}})
	eng.AddContainer(domain.ContainerRecord{Name: "attacker-kali-1", Addresses: map[string]string{"elk_net": "172.18.0.5", "bridge": "172.17.0.5"}})
	eng.AddContainer(domain.ContainerRecord{Name: "elk-kibana-1", Addresses: map[string]string{}})
	eng.AddContainer(domain.ContainerRecord{Name: "logstash"})

	views, err := newClassifier(eng).ListContainers(context.Background())
	require.NoError(t, err)
	byName := map[string]domain.ContainerView{}
	for _, v := range views {
		byName[v.Name] = v
	}

	assert.Equal(t, "http://172.17.0.4:80", byName["target-nginx"].Connection.URL)
	assert.Nil(t, byName["target-nginx"].Connection.Credentials)

	attacker := byName["attacker-kali-1"].Connection
	assert.Equal(t, "Web VNC", attacker.Type)
	assert.Equal(t, "http://172.18.0.5:8080/vnc.html", attacker.URL)
	assert.Equal(t, "kali", attacker.Credentials.Username)

	assert.Nil(t, byName["elk-kibana-1"].Connection, "no address means no connection")
	assert.Nil(t, byName["logstash"].Connection, "no template match")
}

func TestListNetworks(t *testing.T) {
	eng := enginefake.New()
	eng.AddNetwork(domain.NetworkRecord{ID: "n1", Name: "elk_net", Driver: "bridge"})
	eng.AddNetwork(domain.NetworkRecord{ID: "n2", Name: "bridge", Driver: "bridge"})
	eng.AddNetwork(domain.NetworkRecord{ID: "n3", Name: "db_net", Driver: "bridge"})
	eng.AddContainer(domain.ContainerRecord{Name: "target-nginx", Status: domain.StatusRunning, Addresses: map[string]string{"elk_net": "172.18.0.4"}})
	eng.AddContainer(domain.ContainerRecord{Name: "Elk-Es01-1", Status: domain.StatusRunning, Addresses: map[string]string{"elk_net": "172.18.0.2"}})
	eng.AddContainer(domain.ContainerRecord{Name: "db-worker-3", Status: domain.StatusRunning, Addresses: map[string]string{"db_net": "10.0.0.3", "elk_net": "172.18.0.9"}})

	nets, err := newClassifier(eng).ListNetworks(context.Background())
	require.NoError(t, err)
	require.Len(t, nets, 1)
	assert.Equal(t, "elk_net", nets[0].Name)

	var names []string
	for _, c := range nets[0].Containers {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Elk-Es01-1", "target-nginx"}, names)
}

func TestListPropagatesEngineErrors(t *testing.T) {
	eng := enginefake.New()
	eng.Unreachable = true
	_, err := newClassifier(eng).ListContainers(context.Background())
	assert.ErrorIs(t, err, domain.ErrEngineUnreachable)
}
