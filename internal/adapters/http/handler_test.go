package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
	"github.com/guan4tou2/Lnadlse/internal/core/inventory"
	"github.com/guan4tou2/Lnadlse/internal/core/lifecycle"
	"github.com/guan4tou2/Lnadlse/internal/core/readiness"
	"github.com/guan4tou2/Lnadlse/internal/enginefake"
	"github.com/guan4tou2/Lnadlse/internal/metrics"
)

type stubBuilder struct{}

func (stubBuilder) Architecture() (domain.Architecture, error) { return domain.ArchX86_64, nil }
func (stubBuilder) Tag(svc domain.ServiceDescriptor) string { return svc.Name + ":latest" }
func (stubBuilder) Build(ctx context.Context, svc domain.ServiceDescriptor, arch domain.Architecture) (string, error) {
	return svc.Name + ":latest", nil
}

type stubGate struct {
	result readiness.Result
	err    error
}

func (g *stubGate) Await(ctx context.Context, group string) (readiness.Result, error) {
	return g.result, g.err
}

func (g *stubGate) Check(ctx context.Context, group string) (readiness.Result, error) {
	return g.result, g.err
}

func testLab() *domain.Lab {
	return &domain.Lab{
		Network: "elk_net",
		Groups: []domain.ServiceGroup{
			{Name: "analytics", Services: []domain.ServiceDescriptor{
				{Name: "es01", ContainerName: "elk-es01-1", Image: "elasticsearch:9.0.0"},
			}},
			{Name: "simulation", DependsOn: "analytics", Services: []domain.ServiceDescriptor{
				{Name: "nginx", Role: domain.RoleTarget, ContainerName: "target-nginx", Image: "nginx"},
				{Name: "kali-novnc", Role: domain.RoleAttacker, ContainerName: "attacker-kali-novnc", Image: "kali"},
				{Name: "packetbeat", Role: domain.RoleCapture, ContainerName: "elk-packetbeat-1", Image: "packetbeat"},
			}},
		},
	}
}

func newTestApp(t *testing.T) (*fiber.App, *enginefake.Engine, *stubGate) {
	t.Helper()
	eng := enginefake.New()
	gate := &stubGate{result: readiness.Result{Verdict: readiness.VerdictReady, Code: domain.CodeSuccess}}
	lab := testLab()
	inv := inventory.NewClassifier(eng, lab.Network, inventory.DefaultTemplates("changeme", domain.Credentials{Username: "kali", Password: "kalilinux"}))
	ctrl := lifecycle.NewController(eng, stubBuilder{}, gate, lab, lifecycle.Options{})
	h := NewHandler(inv, ctrl, gate, eng, lab)
	return NewApp(h, NewProxyHandler(inv, "localhost"), metrics.New().Handler()), eng, gate
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestListContainersOnlyClassified(t *testing.T) {
	app, eng, _ := newTestApp(t)
	eng.AddContainer(domain.ContainerRecord{Name: "elk-es01-1", Status: domain.StatusRunning, Addresses: map[string]string{"elk_net": "172.18.0.2"}})
	eng.AddContainer(domain.ContainerRecord{Name: "db-worker-3", Status: domain.StatusRunning})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/containers", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var views []domain.ContainerView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, "elk-es01-1", views[0].Name)
	assert.Equal(t, "https://172.18.0.2:9200", views[0].Connection.URL)
}

func TestStartSimulation(t *testing.T) {
	app, eng, _ := newTestApp(t)

	status, body := do(t, app, http.MethodPost, "/api/v1/simulation/start", `{"target_type":"nginx","attacker_type":"kali-novnc"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, []string{"target-nginx", "attacker-kali-novnc", "elk-packetbeat-1"}, eng.CallsTo("CreateAndStart"))
}

func TestStartSimulationValidation(t *testing.T) {
	app, _, _ := newTestApp(t)

	status, body := do(t, app, http.MethodPost, "/api/v1/simulation/start", `{"target_type":"nginx"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "MISSING_PARAMETERS", body["error"].(map[string]any)["code"])

	status, body = do(t, app, http.MethodPost, "/api/v1/simulation/start", `{"target_type":"iis","attacker_type":"kali-novnc"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_SELECTION", body["error"].(map[string]any)["code"])
}

func TestStartSimulationRejectsSwappedRoles(t *testing.T) {
	app, eng, _ := newTestApp(t)

	status, body := do(t, app, http.MethodPost, "/api/v1/simulation/start", `{"target_type":"kali-novnc","attacker_type":"nginx"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_SELECTION", body["error"].(map[string]any)["code"])
	assert.Empty(t, eng.Calls())

	status, _ = do(t, app, http.MethodPost, "/api/v1/simulation/start", `{"target_type":"nginx","attacker_type":"packetbeat"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStartSimulationDependencyNotReady(t *testing.T) {
	app, eng, gate := newTestApp(t)
	gate.result = readiness.Result{Verdict: readiness.VerdictExhausted, Code: domain.CodeESNotReady}
	gate.err = &domain.ReadinessExhaustedError{Dependency: "analytics", Code: domain.CodeESNotReady, Attempts: 5}

	status, body := do(t, app, http.MethodPost, "/api/v1/simulation/start", `{"target_type":"nginx","attacker_type":"kali-novnc"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "ES_NOT_READY", body["error"].(map[string]any)["code"])
	assert.Empty(t, eng.CallsTo("CreateAndStart"))
}

func TestStartSimulationHandoffWarning(t *testing.T) {
	app, _, gate := newTestApp(t)
	gate.result.HandoffErr = &domain.HandoffError{File: "packetbeat.yml", Err: errors.New("read-only file system")}

	status, body := do(t, app, http.MethodPost, "/api/v1/simulation/start", `{"target_type":"nginx","attacker_type":"kali-novnc"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "warning", body["status"])
	assert.Equal(t, "PACKETBEAT_CONFIG_FAILED", body["error"].(map[string]any)["code"])
}

func TestGroupActionAlreadyRunning(t *testing.T) {
	app, eng, _ := newTestApp(t)
	eng.AddContainer(domain.ContainerRecord{Name: "elk-es01-1", Status: domain.StatusRunning})

	status, body := do(t, app, http.MethodPost, "/api/v1/groups/analytics/start", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "warning", body["status"])
	assert.Equal(t, "analytics is already running", body["message"])
}

func TestGroupActionErrors(t *testing.T) {
	app, _, _ := newTestApp(t)

	status, _ := do(t, app, http.MethodPost, "/api/v1/groups/analytics/explode", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := do(t, app, http.MethodPost, "/api/v1/groups/blue/stop", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "UNKNOWN_GROUP", body["error"].(map[string]any)["code"])
}

func TestTeardownPartialFailure(t *testing.T) {
	app, eng, _ := newTestApp(t)
	eng.AddContainer(domain.ContainerRecord{Name: "target-a", Status: domain.StatusRunning})
	eng.AddContainer(domain.ContainerRecord{Name: "target-b", Status: domain.StatusRunning})
	eng.Fail["Remove:target-b"] = errors.New("busy")

	status, body := do(t, app, http.MethodPost, "/api/v1/teardown", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "PARTIAL_CLEANUP", body["error"].(map[string]any)["code"])

	_, ok := eng.Container("target-a")
	assert.False(t, ok)
}

func TestStopContainerAndLogs(t *testing.T) {
	app, eng, _ := newTestApp(t)
	eng.AddContainer(domain.ContainerRecord{Name: "target-nginx", Status: domain.StatusRunning})

	status, _ := do(t, app, http.MethodPost, "/api/v1/containers/target-nginx/stop", "")
	assert.Equal(t, http.StatusOK, status)
	rec, _ := eng.Container("target-nginx")
	assert.Equal(t, domain.StatusStopped, rec.Status)

	status, _ = do(t, app, http.MethodPost, "/api/v1/containers/missing/stop", "")
	assert.Equal(t, http.StatusNotFound, status)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/containers/target-nginx/logs", nil))
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "log line from target-nginx\n", string(raw))
}

func TestReadinessEndpoint(t *testing.T) {
	app, _, gate := newTestApp(t)

	status, body := do(t, app, http.MethodGet, "/api/v1/readiness", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])

	gate.result = readiness.Result{Verdict: readiness.VerdictExhausted, Code: domain.CodeKibanaIPNotFound, Attempts: 5}
	gate.err = gate.result.Err()
	status, body = do(t, app, http.MethodGet, "/api/v1/readiness?group=analytics", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "KIBANA_IP_NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestEngineUnreachable(t *testing.T) {
	app, eng, _ := newTestApp(t)
	eng.Unreachable = true

	status, body := do(t, app, http.MethodGet, "/api/v1/networks", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "ENGINE_UNREACHABLE", body["error"].(map[string]any)["code"])
}

func TestMetricsEndpoint(t *testing.T) {
	app, _, _ := newTestApp(t)
	_, _ = do(t, app, http.MethodPost, "/api/v1/groups/analytics/stop", "")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "range_sweep_failures_total")
}

func TestProxySubdomain(t *testing.T) {
	p := NewProxyHandler(nil, "localhost")
	assert.Equal(t, "elk-kibana-1", p.subdomain("elk-kibana-1.localhost"))
	assert.Equal(t, "", p.subdomain("localhost"))
	assert.Equal(t, "", p.subdomain("example.com"))
	assert.Equal(t, "", p.subdomain("a.b.localhost"))
}

func TestProxyUnknownContainer(t *testing.T) {
	app, _, _ := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "elk-kibana-1.localhost"

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
