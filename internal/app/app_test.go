package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guan4tou2/Lnadlse/internal/adapters/builder"
	"github.com/guan4tou2/Lnadlse/internal/config"
	"github.com/guan4tou2/Lnadlse/internal/core/domain"
	"github.com/guan4tou2/Lnadlse/internal/enginefake"
)

func testConfig() *config.Config {
	return &config.Config{
		Lab:       config.LabConfig{Root: "."},
		Readiness: config.ReadinessConfig{Attempts: 1, Delay: time.Millisecond, Timeout: time.Second},
		Credentials: config.CredentialsConfig{
			ElasticUser:      "elastic",
			ElasticPassword:  "s3cret",
			AttackerUser:     "kali",
			AttackerPassword: "kalilinux",
		},
	}
}

func TestProbeCredentialsOnlyForAuthenticatedChecks(t *testing.T) {
	creds := probeCredentials(config.DefaultLab(), testConfig().Credentials)

	require.Contains(t, creds, "es01")
	assert.Equal(t, domain.Credentials{Username: "elastic", Password: "s3cret"}, creds["es01"])
	assert.NotContains(t, creds, "kibana")
}

func TestWireSharesOneEngine(t *testing.T) {
	eng := enginefake.New()
	eng.AddContainer(domain.ContainerRecord{
		Name:      "elk-kibana-1",
		Status:    domain.StatusRunning,
		Addresses: map[string]string{"elk_net": "172.18.0.3"},
	})

	a := Wire(testConfig(), config.DefaultLab(), eng, builder.NewBuilderAdapter(eng, builder.WithMachine("amd64")))
	require.NoError(t, a.Close())

	views, err := a.Inventory.ListContainers(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "http://172.18.0.3:5601", views[0].Connection.URL)
	assert.Equal(t, "s3cret", views[0].Connection.Credentials.Password)

	dep, err := a.Gate.Dependency("analytics")
	require.NoError(t, err)
	assert.Len(t, dep.Targets, 2)
	assert.Equal(t, "es01", dep.HandoffFrom)

	_, err = a.Controller.Apply(context.Background(), "analytics", domain.ActionStop)
	require.NoError(t, err)
	assert.Equal(t, []string{"elk-es01-1", "elk-kibana-1"}, eng.CallsTo("Stop"))
}
