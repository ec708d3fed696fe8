package http

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
	"github.com/guan4tou2/Lnadlse/internal/core/lifecycle"
	"github.com/guan4tou2/Lnadlse/internal/core/ports"
	"github.com/guan4tou2/Lnadlse/internal/core/readiness"
)

// Inventory answers read-only container and network queries.
type Inventory interface {
	ListContainers(ctx context.Context) ([]domain.ContainerView, error)
	ListNetworks(ctx context.Context) ([]domain.NetworkView, error)
	Lookup(ctx context.Context, name string) (domain.ContainerView, bool, error)
}

// Lifecycle applies group operations.
type Lifecycle interface {
	Apply(ctx context.Context, group string, action domain.Action, services ...string) (lifecycle.Result, error)
	Install(ctx context.Context, group string, services ...string) (lifecycle.Result, error)
	Teardown(ctx context.Context, groups ...string) (lifecycle.Result, error)
}

// ReadinessChecker runs a one-off readiness check of a group.
type ReadinessChecker interface {
	Check(ctx context.Context, group string) (readiness.Result, error)
}

// Engine is the slice of the engine the handlers touch directly.
type Engine interface {
	Stop(ctx context.Context, name string) error
	ports.LogReader
}

type Handler struct {
	inventory Inventory
	lifecycle Lifecycle
	checker   ReadinessChecker
	engine    Engine
	lab       *domain.Lab
	// simulation start requests address this group and its dependency.
	simulationGroup string
	analyticsGroup  string
}

func NewHandler(inventory Inventory, lc Lifecycle, checker ReadinessChecker, engine Engine, lab *domain.Lab) *Handler {
	return &Handler{
		inventory:       inventory,
		lifecycle:       lc,
		checker:         checker,
		engine:          engine,
		lab:             lab,
		simulationGroup: "simulation",
		analyticsGroup:  "analytics",
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func respondError(c *fiber.Ctx, err error) error {
	status, body := classify(err)
	log.Warn().Err(err).Str("path", c.Path()).Int("status", status).Msg("request failed")
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": body.Message,
		"error":   body,
	})
}

func classify(err error) (int, errorBody) {
	var (
		exhausted *domain.ReadinessExhaustedError
		invalid   *domain.InvalidSelectionError
		unknown   *domain.UnknownGroupError
		partial   *domain.PartialCleanupError
		build     *domain.BuildError
		arch      *domain.UnsupportedArchitectureError
	)
	switch {
	case errors.As(err, &exhausted):
		return fiber.StatusBadRequest, errorBody{Code: string(exhausted.Code), Message: fmt.Sprintf("%s is not ready", exhausted.Dependency), Details: exhausted.Detail}
	case errors.As(err, &invalid):
		return fiber.StatusBadRequest, errorBody{Code: string(domain.CodeInvalidSelection), Message: err.Error(), Details: invalid.Allowed}
	case errors.As(err, &unknown):
		return fiber.StatusNotFound, errorBody{Code: "UNKNOWN_GROUP", Message: err.Error()}
	case errors.As(err, &partial):
		return fiber.StatusInternalServerError, errorBody{Code: "PARTIAL_CLEANUP", Message: "some containers could not be cleaned up", Details: partial.Failures}
	case errors.As(err, &build):
		return fiber.StatusInternalServerError, errorBody{Code: "BUILD_FAILED", Message: err.Error(), Details: build.Stderr}
	case errors.As(err, &arch):
		return fiber.StatusInternalServerError, errorBody{Code: "UNSUPPORTED_ARCHITECTURE", Message: err.Error()}
	case errors.Is(err, domain.ErrEngineUnreachable):
		return fiber.StatusServiceUnavailable, errorBody{Code: string(domain.CodeEngineUnavailable), Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: err.Error()}
	default:
		return fiber.StatusInternalServerError, errorBody{Code: "ENGINE_ERROR", Message: err.Error()}
	}
}

func respondResult(c *fiber.Ctx, res lifecycle.Result, message string) error {
	status := "success"
	body := fiber.Map{"data": res}
	switch {
	case res.HandoffErr != nil:
		status = "warning"
		message += "; " + res.HandoffErr.Error()
		body["error"] = errorBody{Code: string(domain.CodeHandoffFailed), Message: res.HandoffErr.Error()}
	case res.Mode == lifecycle.ModeAlreadyRunning:
		status = "warning"
		message = fmt.Sprintf("%s is already running", res.Group)
	}
	body["status"] = status
	body["message"] = message
	return c.JSON(body)
}

func (h *Handler) ListContainers(c *fiber.Ctx) error {
	containers, err := h.inventory.ListContainers(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(containers)
}

func (h *Handler) ListNetworks(c *fiber.Ctx) error {
	networks, err := h.inventory.ListNetworks(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(networks)
}

type groupRequest struct {
	Services []string `json:"services"`
}

// ApplyGroupAction handles POST /groups/:group/:action.
func (h *Handler) ApplyGroupAction(c *fiber.Ctx) error {
	action, err := domain.ParseAction(c.Params("action"))
	if err != nil {
		return respondError(c, err)
	}
	var req groupRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Invalid request body"})
		}
	}

	res, err := h.lifecycle.Apply(c.Context(), c.Params("group"), action, req.Services...)
	if err != nil {
		return respondError(c, err)
	}
	return respondResult(c, res, fmt.Sprintf("%s %s: %s", res.Group, res.Action, res.Mode))
}

// InstallGroup handles POST /groups/:group/install.
func (h *Handler) InstallGroup(c *fiber.Ctx) error {
	var req groupRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Invalid request body"})
		}
	}
	res, err := h.lifecycle.Install(c.Context(), c.Params("group"), req.Services...)
	if err != nil {
		return respondError(c, err)
	}
	return respondResult(c, res, fmt.Sprintf("%s images ready", res.Group))
}

type simulationRequest struct {
	TargetType   string `json:"target_type"`
	AttackerType string `json:"attacker_type"`
}

// StartSimulation starts one target and one attacker once analytics is ready.
func (h *Handler) StartSimulation(c *fiber.Ctx) error {
	var req simulationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Invalid request body"})
	}
	if req.TargetType == "" || req.AttackerType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Required parameters missing",
			"error": errorBody{
				Code:    "MISSING_PARAMETERS",
				Message: "Required parameters missing",
				Details: "Both target_type and attacker_type are required",
			},
		})
	}

	grp, err := h.lab.Group(h.simulationGroup)
	if err != nil {
		return respondError(c, err)
	}
	services, err := grp.SelectPair(req.TargetType, req.AttackerType)
	if err != nil {
		return respondError(c, err)
	}

	res, err := h.lifecycle.Apply(c.Context(), h.simulationGroup, domain.ActionStart, services...)
	if err != nil {
		return respondError(c, err)
	}
	return respondResult(c, res, fmt.Sprintf("Simulation environment started with target: %s, attacker: %s", req.TargetType, req.AttackerType))
}

type teardownRequest struct {
	Groups []string `json:"groups"`
}

// Teardown removes the requested groups (all when none) and sweeps leftovers.
func (h *Handler) Teardown(c *fiber.Ctx) error {
	var req teardownRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Invalid request body"})
		}
	}
	res, err := h.lifecycle.Teardown(c.Context(), req.Groups...)
	if err != nil {
		return respondError(c, err)
	}
	return respondResult(c, res, "All services stopped successfully")
}

// Readiness runs a single readiness check of ?group= (analytics by default).
func (h *Handler) Readiness(c *fiber.Ctx) error {
	group := c.Query("group", h.analyticsGroup)
	res, err := h.checker.Check(c.Context(), group)
	if err != nil {
		var exhausted *domain.ReadinessExhaustedError
		if errors.As(err, &exhausted) {
			status, body := classify(err)
			return c.Status(status).JSON(fiber.Map{"status": "error", "message": body.Message, "error": body, "data": res})
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "success", "message": group + " is ready", "data": res})
}

func (h *Handler) StopContainer(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Container ID is required"})
	}
	if err := h.engine.Stop(c.Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "success", "message": "container " + id + " stopped"})
}

func (h *Handler) GetContainerLogs(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Container ID is required"})
	}
	logs, err := h.engine.ContainerLogs(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	c.Set("Content-Type", "text/plain")
	return c.SendStream(logs)
}
