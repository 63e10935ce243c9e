package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/logging"
	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/state"
	"github.com/pr-poehali-dev/heated-roof-strips-system/model"
)

func testNow() time.Time {
	return time.Date(2024, 11, 12, 8, 0, 0, 0, time.UTC)
}

// newTestHandler builds a handler over a real panel with a fixed seed and
// clock, so test assertions about generated state are stable.
func newTestHandler(t *testing.T) (*Handler, *state.Panel) {
	t.Helper()
	panel, err := state.New(context.Background(), logging.Noop(),
		state.WithRand(rand.New(rand.NewSource(1))),
		state.WithClock(testNow),
	)
	if err != nil {
		t.Fatalf("state.New: %v", err)
	}
	return NewHandler(panel, logging.Noop(), "test"), panel
}

func decodeOutcome(t *testing.T, rec *httptest.ResponseRecorder) mutationResponse {
	t.Helper()
	var out mutationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	e := echo.New()
	h, p := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if assert.NoError(t, h.HandleHealth(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
		assert.Contains(t, rec.Body.String(), p.SessionID())
	}
}

func TestHandleGetSystem(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if !assert.NoError(t, h.HandleGetSystem(c)) {
		return
	}
	assert.Equal(t, http.StatusOK, rec.Code)

	var doc systemDocument
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.NotEmpty(t, doc.SessionID)
	assert.True(t, doc.Now.Equal(testNow()))
	assert.Equal(t, model.DefaultSettings(), doc.Settings)
	if assert.Len(t, doc.Tapes, 2) {
		assert.Equal(t, "Tape 1", doc.Tapes[0].Name)
		assert.Len(t, doc.Tapes[0].Segments, 6)
		assert.Len(t, doc.Tapes[1].Segments, 6)
	}
	assert.Len(t, doc.Alerts, 4)
}

func TestHandleExportSystem(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/export", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if !assert.NoError(t, h.HandleExportSystem(c)) {
		return
	}
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

	dec := msgpack.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
	dec.SetCustomStructTag("json")
	var doc systemDocument
	if !assert.NoError(t, dec.Decode(&doc)) {
		return
	}

	// The export carries the same document the JSON endpoint serves.
	want := h.currentDocument()
	assert.Equal(t, want.SessionID, doc.SessionID)
	assert.Equal(t, want.Settings, doc.Settings)
	assert.True(t, doc.Now.Equal(want.Now))
	if assert.Len(t, doc.Tapes, len(want.Tapes)) {
		assert.Equal(t, want.Tapes[0].Name, doc.Tapes[0].Name)
		assert.Equal(t, want.Tapes[1].Segments[0].Power, doc.Tapes[1].Segments[0].Power)
		assert.Equal(t, want.Tapes[1].Segments[3].Sensors[0].SerialNumber, doc.Tapes[1].Segments[3].Sensors[0].SerialNumber)
	}
	if assert.Len(t, doc.Alerts, len(want.Alerts)) {
		assert.Equal(t, want.Alerts[0].Message, doc.Alerts[0].Message)
	}
}

func TestHandleAddTape(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tapes", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if !assert.NoError(t, h.HandleAddTape(c)) {
		return
	}
	assert.Equal(t, http.StatusOK, rec.Code)

	out := decodeOutcome(t, rec)
	assert.True(t, out.Applied)
	assert.Empty(t, out.Reason)
	if !assert.Len(t, out.System.Tapes, 3) {
		return
	}

	// The default system uses tape ids 1-2 and segment ids 1-12, so the new
	// tape continues from there.
	added := out.System.Tapes[2]
	assert.Equal(t, 3, added.ID)
	assert.Equal(t, "Tape 3", added.Name)
	assert.True(t, added.Enabled)
	if assert.Len(t, added.Segments, 4) {
		for i, seg := range added.Segments {
			assert.Equal(t, 13+i, seg.ID)
		}
		assert.True(t, added.Segments[0].Enabled)
		assert.True(t, added.Segments[1].Enabled)
		assert.True(t, added.Segments[2].Enabled)
		assert.False(t, added.Segments[3].Enabled)
	}
}

func TestHandleRemoveTapeGuardsLastTape(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	remove := func(id string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/tapes/"+id, nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(id)
		return rec, h.HandleRemoveTape(c)
	}

	rec, err := remove("1")
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.True(t, out.Applied)
		assert.Len(t, out.System.Tapes, 1)
	}

	// The last remaining tape stays: the rejection is a 200 outcome, not an
	// HTTP error.
	rec, err = remove("2")
	if assert.NoError(t, err) {
		assert.Equal(t, http.StatusOK, rec.Code)
		out := decodeOutcome(t, rec)
		assert.False(t, out.Applied)
		assert.Equal(t, "last tape", out.Reason)
		assert.Len(t, out.System.Tapes, 1)
	}

	rec, err = remove("99")
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.False(t, out.Applied)
		assert.Equal(t, "last tape", out.Reason)
	}
}

func TestHandleUpdateTapeField(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	patch := func(body string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/tapes/1", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("1")
		return rec, h.HandleUpdateTapeField(c)
	}

	rec, err := patch(`{"field":"name","value":"North roof"}`)
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.True(t, out.Applied)
		assert.Equal(t, "North roof", out.System.Tapes[0].Name)
	}

	rec, err = patch(`{"field":"coordinates","value":"55.7558, 37.6173"}`)
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.True(t, out.Applied)
		assert.Equal(t, "55.7558, 37.6173", out.System.Tapes[0].Coordinates)
	}

	// Clearing a free-form field is a legal update.
	rec, err = patch(`{"field":"coordinates","value":""}`)
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.True(t, out.Applied)
		assert.Equal(t, "", out.System.Tapes[0].Coordinates)
	}

	// An unrecognized field name rejects through the outcome envelope.
	rec, err = patch(`{"field":"bogus","value":"x"}`)
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.False(t, out.Applied)
		assert.Equal(t, "unknown field", out.Reason)
	}

	// A missing field name is a malformed request, not a rejection.
	_, err = patch(`{"value":"x"}`)
	var apiErr *APIError
	if assert.ErrorAs(t, err, &apiErr) {
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	}
}

func TestHandleSetSegmentPowerClamps(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	send := func(body string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/tapes/1/segments/1/power", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id", "segmentId")
		c.SetParamValues("1", "1")
		return rec, h.HandleSetSegmentPower(c)
	}

	rec, err := send(`{"power":150}`)
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.True(t, out.Applied)
		assert.Equal(t, 100, out.System.Tapes[0].Segments[0].Power)
	}

	rec, err = send(`{"power":-20}`)
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.True(t, out.Applied)
		assert.Equal(t, 0, out.System.Tapes[0].Segments[0].Power)
	}

	// Zero is a valid power level, so the field must be present explicitly.
	_, err = send(`{}`)
	var apiErr *APIError
	if assert.ErrorAs(t, err, &apiErr) {
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	}
}

func TestHandleSetSegmentTargetTemp(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	send := func(body string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/tapes/2/segments/7/target-temp", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id", "segmentId")
		c.SetParamValues("2", "7")
		return rec, h.HandleSetSegmentTargetTemp(c)
	}

	rec, err := send(`{"targetTempC":50}`)
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.True(t, out.Applied)
		assert.Equal(t, 30, out.System.Tapes[1].Segments[0].TargetTempC)
	}

	rec, err = send(`{"targetTempC":-40}`)
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.True(t, out.Applied)
		assert.Equal(t, -10, out.System.Tapes[1].Segments[0].TargetTempC)
	}

	_, err = send(`{}`)
	var apiErr *APIError
	if assert.ErrorAs(t, err, &apiErr) {
		assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	}
}

func TestIntParamRejectsGarbage(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tapes/abc/toggle", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("abc")

	err := h.HandleToggleTape(c)
	var apiErr *APIError
	if assert.ErrorAs(t, err, &apiErr) {
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	}
	assert.Empty(t, rec.Body.String())
}

func TestHandleSegmentLifecycle(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	do := func(method, target string, handler echo.HandlerFunc, names, values []string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(method, target, nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames(names...)
		c.SetParamValues(values...)
		return rec, handler(c)
	}

	// Add a segment to tape 1: segment ids are global, so it gets 13.
	rec, err := do(http.MethodPost, "/api/v1/tapes/1/segments", h.HandleAddSegment, []string{"id"}, []string{"1"})
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.True(t, out.Applied)
		if assert.Len(t, out.System.Tapes[0].Segments, 7) {
			added := out.System.Tapes[0].Segments[6]
			assert.Equal(t, 13, added.ID)
			assert.Equal(t, "Segment 13", added.Name)
		}
	}

	rec, err = do(http.MethodPost, "/api/v1/tapes/1/segments/13/toggle", h.HandleToggleSegment, []string{"id", "segmentId"}, []string{"1", "13"})
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.True(t, out.Applied)
	}

	rec, err = do(http.MethodDelete, "/api/v1/tapes/1/segments/13", h.HandleRemoveSegment, []string{"id", "segmentId"}, []string{"1", "13"})
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.True(t, out.Applied)
		assert.Len(t, out.System.Tapes[0].Segments, 6)
	}

	// Disable-all then enable-all on tape 2.
	rec, err = do(http.MethodPost, "/api/v1/tapes/2/segments/disable-all", h.HandleDisableAllSegments, []string{"id"}, []string{"2"})
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.True(t, out.Applied)
		for _, seg := range out.System.Tapes[1].Segments {
			assert.False(t, seg.Enabled)
		}
	}

	rec, err = do(http.MethodPost, "/api/v1/tapes/2/segments/enable-all", h.HandleEnableAllSegments, []string{"id"}, []string{"2"})
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.True(t, out.Applied)
		for _, seg := range out.System.Tapes[1].Segments {
			assert.True(t, seg.Enabled)
		}
	}

	// Removing from a missing tape rejects with the reason.
	rec, err = do(http.MethodDelete, "/api/v1/tapes/9/segments/1", h.HandleRemoveSegment, []string{"id", "segmentId"}, []string{"9", "1"})
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.False(t, out.Applied)
		assert.Equal(t, "tape not found", out.Reason)
	}
}

func TestHandleApplySettings(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	send := func(body string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/settings", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		return rec, h.HandleApplySettings(c)
	}

	// A poll interval outside the accepted set rejects the whole patch.
	rec, err := send(`{"pollInterval":"7","systemOn":false}`)
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.False(t, out.Applied)
		assert.Equal(t, "invalid value", out.Reason)
		assert.Equal(t, model.DefaultSettings(), out.System.Settings)
	}

	rec, err = send(`{"pollInterval":"10","systemOn":false}`)
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.True(t, out.Applied)
		assert.Equal(t, "10", out.System.Settings.PollInterval)
		assert.False(t, out.System.Settings.SystemOn)
		assert.Equal(t, "3", out.System.Settings.ThresholdTemp)
	}
}

func TestHandleAcknowledgeAlert(t *testing.T) {
	e := echo.New()
	h, p := newTestHandler(t)

	ack := func(id string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/"+id+"/ack", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(id)
		return rec, h.HandleAcknowledgeAlert(c)
	}

	rec, err := ack("2")
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.True(t, out.Applied)
	}
	for _, a := range p.Alerts() {
		assert.Equal(t, a.ID == 2, a.Acknowledged)
	}

	// Acknowledging again is a no-op that still applies.
	rec, err = ack("2")
	if assert.NoError(t, err) {
		assert.True(t, decodeOutcome(t, rec).Applied)
	}

	rec, err = ack("99")
	if assert.NoError(t, err) {
		out := decodeOutcome(t, rec)
		assert.False(t, out.Applied)
		assert.Equal(t, "alert not found", out.Reason)
	}
}

func TestHandleGetSummary(t *testing.T) {
	e := echo.New()
	h, p := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if assert.NoError(t, h.HandleGetSummary(c)) {
		var got model.Summary
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, p.Summary(), got)
		assert.NotNil(t, got.AverageTemperature)
	}
}

func TestHandleGetLogsAndAlerts(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if assert.NoError(t, h.HandleGetLogs(c)) {
		var logs []model.LogEntry
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
		if assert.Len(t, logs, 10) {
			assert.Equal(t, 1, logs[0].ID)
			assert.True(t, logs[0].Timestamp.Equal(testNow()))
			assert.True(t, logs[1].Timestamp.Before(logs[0].Timestamp))
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if assert.NoError(t, h.HandleGetAlerts(c)) {
		var alerts []model.Alert
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
		if assert.Len(t, alerts, 4) {
			for _, a := range alerts {
				assert.False(t, a.Acknowledged)
			}
		}
	}
}

// TestRoutes exercises the wired router end to end: middleware, error
// envelope, and route registration.
func TestRoutes(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)
	SetupMiddleware(e, logging.Noop(), nil)
	RegisterRoutes(e, h, nil)

	do := func(method, target, body string) *httptest.ResponseRecorder {
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, target, r)
		if body != "" {
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = do(http.MethodPost, "/api/v1/tapes/1/toggle", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	out := decodeOutcome(t, rec)
	assert.True(t, out.Applied)
	assert.False(t, out.System.Tapes[0].Enabled)

	rec = do(http.MethodPatch, "/api/v1/settings", `{"alertSound":"false"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeOutcome(t, rec).Applied)

	// Unknown routes render through the same error envelope.
	rec = do(http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var apiErr APIError
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "HTTP_ERROR", apiErr.Code)

	// Bad path parameters surface as the validation envelope.
	rec = do(http.MethodPost, "/api/v1/tapes/abc/toggle", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)

	// Without a hub the stream route is not exposed.
	rec = do(http.MethodGet, "/api/v1/ws", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
