// Package api serves the panel's HTTP JSON surface.
package api

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pr-poehali-dev/heated-roof-strips-system/core"
	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/logging"
	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/state"
	"github.com/pr-poehali-dev/heated-roof-strips-system/model"
)

// Handler serves the panel API against one state owner.
type Handler struct {
	panel   *state.Panel
	log     logging.Logger
	version string
}

// NewHandler creates the API handler set.
func NewHandler(panel *state.Panel, log logging.Logger, version string) *Handler {
	if log == nil {
		log = logging.Noop()
	}
	if version == "" {
		version = "dev"
	}
	return &Handler{panel: panel, log: log, version: version}
}

// systemDocument is the full read model: the entity tree plus alerts,
// settings and session metadata. The export endpoint serializes the same
// document.
type systemDocument struct {
	SessionID string         `json:"sessionId"`
	StartedAt time.Time      `json:"startedAt"`
	Now       time.Time      `json:"now"`
	Settings  model.Settings `json:"settings"`
	Tapes     []model.Tape   `json:"tapes"`
	Alerts    []model.Alert  `json:"alerts"`
}

// mutationResponse reports a command outcome together with the resulting
// system. Rejections keep status 200: a guarded no-op is not a client error.
type mutationResponse struct {
	Applied bool          `json:"applied"`
	Reason  string        `json:"reason,omitempty"`
	System  *model.System `json:"system"`
}

func (h *Handler) currentDocument() systemDocument {
	sys, alerts := h.panel.Export()
	return systemDocument{
		SessionID: h.panel.SessionID(),
		StartedAt: h.panel.StartedAt(),
		Now:       h.panel.DisplayTime(),
		Settings:  sys.Settings,
		Tapes:     sys.Tapes,
		Alerts:    alerts,
	}
}

func (h *Handler) respondOutcome(c echo.Context, out core.Outcome) error {
	return c.JSON(http.StatusOK, mutationResponse{
		Applied: out.Applied,
		Reason:  string(out.Reason),
		System:  h.panel.SystemSnapshot(),
	})
}

// requestLog prefers the request-scoped logger installed by RequestContext,
// falling back to the handler's own.
func (h *Handler) requestLog(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return h.log
}

func intParam(c echo.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, NewValidationError(name)
	}
	return v, nil
}

// HandleHealth reports liveness plus the session identity.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"version":   h.version,
		"sessionId": h.panel.SessionID(),
	})
}

// HandleGetSystem returns the full system document.
func (h *Handler) HandleGetSystem(c echo.Context) error {
	return c.JSON(http.StatusOK, h.currentDocument())
}

// HandleExportSystem returns the system document msgpack-encoded. Field names
// follow the JSON tags so both encodings expose the same keys.
func (h *Handler) HandleExportSystem(c echo.Context) error {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(h.currentDocument()); err != nil {
		ctx := c.Request().Context()
		h.requestLog(ctx).Error(ctx, "msgpack export failed", logging.Err(err))
		return NewInternalError("failed to encode export", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", buf.Bytes())
}

// HandleGetSummary returns the derived aggregates, computed on demand.
func (h *Handler) HandleGetSummary(c echo.Context) error {
	return c.JSON(http.StatusOK, h.panel.Summary())
}

// HandleGetLogs returns the session log feed.
func (h *Handler) HandleGetLogs(c echo.Context) error {
	return c.JSON(http.StatusOK, h.panel.Logs())
}

// HandleGetAlerts returns the alert list.
func (h *Handler) HandleGetAlerts(c echo.Context) error {
	return c.JSON(http.StatusOK, h.panel.Alerts())
}

// HandleAcknowledgeAlert marks one alert as acknowledged.
func (h *Handler) HandleAcknowledgeAlert(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return err
	}
	return h.respondOutcome(c, h.panel.AcknowledgeAlert(c.Request().Context(), id))
}

// HandleAddTape appends a new tape.
func (h *Handler) HandleAddTape(c echo.Context) error {
	return h.respondOutcome(c, h.panel.AddTape(c.Request().Context()))
}

// HandleRemoveTape deletes a tape.
func (h *Handler) HandleRemoveTape(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return err
	}
	return h.respondOutcome(c, h.panel.RemoveTape(c.Request().Context(), id))
}

// HandleToggleTape flips a tape's enabled flag.
func (h *Handler) HandleToggleTape(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return err
	}
	return h.respondOutcome(c, h.panel.ToggleTape(c.Request().Context(), id))
}

// HandleUpdateTapeField replaces one tape attribute.
func (h *Handler) HandleUpdateTapeField(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Field == "" {
		return NewValidationError("field")
	}
	return h.respondOutcome(c, h.panel.UpdateTapeField(c.Request().Context(), id, core.TapeField(req.Field), req.Value))
}

// HandleAddSegment appends a segment to a tape.
func (h *Handler) HandleAddSegment(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return err
	}
	return h.respondOutcome(c, h.panel.AddSegment(c.Request().Context(), id))
}

// HandleRemoveSegment deletes a segment from a tape.
func (h *Handler) HandleRemoveSegment(c echo.Context) error {
	tapeID, err := intParam(c, "id")
	if err != nil {
		return err
	}
	segmentID, err := intParam(c, "segmentId")
	if err != nil {
		return err
	}
	return h.respondOutcome(c, h.panel.RemoveSegment(c.Request().Context(), tapeID, segmentID))
}

// HandleToggleSegment flips a segment's enabled flag.
func (h *Handler) HandleToggleSegment(c echo.Context) error {
	tapeID, err := intParam(c, "id")
	if err != nil {
		return err
	}
	segmentID, err := intParam(c, "segmentId")
	if err != nil {
		return err
	}
	return h.respondOutcome(c, h.panel.ToggleSegment(c.Request().Context(), tapeID, segmentID))
}

// HandleSetSegmentPower sets a segment's power percentage.
func (h *Handler) HandleSetSegmentPower(c echo.Context) error {
	tapeID, err := intParam(c, "id")
	if err != nil {
		return err
	}
	segmentID, err := intParam(c, "segmentId")
	if err != nil {
		return err
	}
	var req struct {
		Power *int `json:"power"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Power == nil {
		return NewValidationError("power")
	}
	return h.respondOutcome(c, h.panel.SetSegmentPower(c.Request().Context(), tapeID, segmentID, *req.Power))
}

// HandleSetSegmentTargetTemp sets a segment's target temperature.
func (h *Handler) HandleSetSegmentTargetTemp(c echo.Context) error {
	tapeID, err := intParam(c, "id")
	if err != nil {
		return err
	}
	segmentID, err := intParam(c, "segmentId")
	if err != nil {
		return err
	}
	var req struct {
		TargetTempC *int `json:"targetTempC"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.TargetTempC == nil {
		return NewValidationError("targetTempC")
	}
	return h.respondOutcome(c, h.panel.SetSegmentTargetTemp(c.Request().Context(), tapeID, segmentID, *req.TargetTempC))
}

// HandleEnableAllSegments enables every segment of one tape.
func (h *Handler) HandleEnableAllSegments(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return err
	}
	return h.respondOutcome(c, h.panel.SetAllSegments(c.Request().Context(), id, true))
}

// HandleDisableAllSegments disables every segment of one tape.
func (h *Handler) HandleDisableAllSegments(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return err
	}
	return h.respondOutcome(c, h.panel.SetAllSegments(c.Request().Context(), id, false))
}

// HandleApplySettings merges a partial settings update.
func (h *Handler) HandleApplySettings(c echo.Context) error {
	var patch core.SettingsPatch
	if err := c.Bind(&patch); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	return h.respondOutcome(c, h.panel.ApplySettings(c.Request().Context(), patch))
}
