package http

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rs/zerolog/log"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
)

// ProxyHandler forwards <container>.<domain> requests to the dashboard of a
// classified, running container.
type ProxyHandler struct {
	inventory Inventory
	domain    string
	transport http.RoundTripper
}

// NewProxyHandler proxies subdomains of baseDomain (e.g. "localhost").
func NewProxyHandler(inventory Inventory, baseDomain string) *ProxyHandler {
	return &ProxyHandler{
		inventory: inventory,
		domain:    strings.ToLower(strings.Trim(baseDomain, ".")),
		transport: &http.Transport{
			// the search engine serves a self-signed certificate
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		},
	}
}

// subdomain returns the container name addressed by host, if any.
func (h *ProxyHandler) subdomain(host string) string {
	host = strings.ToLower(host)
	if h.domain == "" || !strings.HasSuffix(host, "."+h.domain) {
		return ""
	}
	name := strings.TrimSuffix(host, "."+h.domain)
	if name == "" || name == "www" || strings.Contains(name, ".") {
		return ""
	}
	return name
}

// ProxyRequest passes through requests that do not address a container.
func (h *ProxyHandler) ProxyRequest(c *fiber.Ctx) error {
	name := h.subdomain(c.Hostname())
	if name == "" {
		return c.Next()
	}

	view, ok, err := h.inventory.Lookup(c.Context(), name)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).SendString("Failed to list containers")
	}
	if !ok || view.Status != domain.StatusRunning || view.Connection == nil {
		return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("Container '%s' not found, not running or not reachable", name))
	}

	remote, err := url.Parse(view.Connection.URL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Invalid target URL")
	}
	target := &url.URL{Scheme: remote.Scheme, Host: remote.Host}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = h.transport

	// the container expects its own address as Host
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = target.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn().Err(err).Str("container", name).Str("target", target.String()).Msg("proxy request failed")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = fmt.Fprintf(w, "proxy: target=%s error=%v", target, err)
	}

	return adaptor.HTTPHandler(proxy)(c)
}
