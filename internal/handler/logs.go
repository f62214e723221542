package handler

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/activity"
	"github.com/iliyamo/cinema-booking/internal/service"
)

// LogHandler serves the admin activity-log endpoints.
type LogHandler struct {
	Activity   *activity.Logger
	Aggregator *activity.Aggregator
	// OnClear runs after logs were purged, to drop cached statistics.
	OnClear func(ctx context.Context)
}

func NewLogHandler(l *activity.Logger, a *activity.Aggregator) *LogHandler {
	return &LogHandler{Activity: l, Aggregator: a}
}

// parseLogFilter reads the filter shared by listing and export. A non-nil
// FieldError names the first bad parameter.
func parseLogFilter(c echo.Context) (activity.Filter, *service.FieldError) {
	f := activity.Filter{
		UserID:   strings.TrimSpace(c.QueryParam("user_id")),
		Action:   strings.TrimSpace(c.QueryParam("action")),
		Resource: strings.TrimSpace(c.QueryParam("resource")),
	}
	if lv := c.QueryParam("level"); lv != "" {
		level, ok := activity.ParseLevel(lv)
		if !ok {
			return f, &service.FieldError{Field: "level", Message: "must be one of: DEBUG INFO WARN ERROR"}
		}
		f.Level = level
	}
	var err error
	if f.From, err = queryTime(c, "from"); err != nil {
		return f, &service.FieldError{Field: "from", Message: "must be RFC3339 or YYYY-MM-DD"}
	}
	if f.To, err = queryTime(c, "to"); err != nil {
		return f, &service.FieldError{Field: "to", Message: "must be RFC3339 or YYYY-MM-DD"}
	}
	return f, nil
}

func adminActor(c echo.Context) activity.Actor {
	return activity.Actor{UserID: strconv.FormatUint(actorFrom(c).UserID, 10)}
}

// List: GET /v1/admin/logs
func (h *LogHandler) List(c echo.Context) error {
	f, fe := parseLogFilter(c)
	if fe != nil {
		return badRequest(c, fe.Field, fe.Message)
	}
	page, err := h.Activity.Query(c.Request().Context(), f, queryInt(c, "page"), queryInt(c, "page_size"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// Stats: GET /v1/admin/logs/stats?days=7
func (h *LogHandler) Stats(c echo.Context) error {
	st, err := h.Aggregator.GetStats(c.Request().Context(), queryInt(c, "days"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Export: GET /v1/admin/logs/export?format=json|csv
func (h *LogHandler) Export(c echo.Context) error {
	format, err := activity.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return respondError(c, err)
	}
	f, fe := parseLogFilter(c)
	if fe != nil {
		return badRequest(c, fe.Field, fe.Message)
	}

	var buf bytes.Buffer
	if err := h.Aggregator.Export(c.Request().Context(), format, f, &buf); err != nil {
		return respondError(c, err)
	}
	h.Activity.LogCRUD(activity.ActionLogsExport, adminActor(c),
		"activity_logs", "", nil, map[string]any{"format": format, "bytes": buf.Len()})

	contentType := echo.MIMEApplicationJSONCharsetUTF8
	if format == "csv" {
		contentType = "text/csv; charset=utf-8"
	}
	name := "activity-logs-" + time.Now().UTC().Format("20060102-150405") + "." + format
	c.Response().Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	return c.Blob(http.StatusOK, contentType, buf.Bytes())
}

type clearReq struct {
	Days int `json:"days"`
}

// Clear: DELETE /v1/admin/logs/clear with body {"days": N}
func (h *LogHandler) Clear(c echo.Context) error {
	var req clearReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid body"})
	}
	n, err := h.Activity.Clear(c.Request().Context(), req.Days)
	if err != nil {
		return respondError(c, err)
	}
	if h.OnClear != nil {
		h.OnClear(c.Request().Context())
	}
	h.Activity.LogCRUD(activity.ActionLogsClear, adminActor(c),
		"activity_logs", "", nil, map[string]any{"olderThanDays": req.Days, "deleted": n})
	return c.JSON(http.StatusOK, echo.Map{"deleted": n, "older_than_days": req.Days})
}
