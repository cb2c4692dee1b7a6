package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"weatherbar/internal/models"
	"weatherbar/pkg/logging"
	"weatherbar/pkg/metrics"
)

// StatusRunner resolves the status for one invocation.
type StatusRunner interface {
	Run(ctx context.Context, advance bool) (*models.Status, error)
}

// StatusHandler renders a status and writes it as one JSON line.
type StatusHandler struct {
	runner    StatusRunner
	presenter *Presenter
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(runner StatusRunner, presenter *Presenter, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StatusHandler {
	return &StatusHandler{
		runner:    runner,
		presenter: presenter,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// Handle runs one invocation and writes the result to w. An error means state
// could not be persisted; nothing is written to w in that case.
func (h *StatusHandler) Handle(ctx context.Context, advance bool, w io.Writer) error {
	status, err := h.runner.Run(ctx, advance)
	if err != nil {
		return err
	}

	result := h.presenter.Render(status)

	if status.Err != nil || status.Weather == nil {
		h.metrics.RecordRender("error")
		h.logger.Warn(ctx, "[RENDER_ERROR] Rendering error tile", logging.Fields{
			"city":  status.City.DisplayName,
			"error": fmt.Sprint(status.Err),
		})
	} else {
		h.metrics.RecordRender("ok")
		summary := Summarize(status.Weather.Payload)
		h.logger.Debug(ctx, "[RENDER_OK] Rendered weather", logging.Fields{
			"city":        status.City.DisplayName,
			"country":     summary.Country,
			"temperature": summary.Temperature,
			"condition":   summary.Description,
		})
	}

	return WriteJSON(w, result)
}

// WriteJSON encodes result as a single line. HTML escaping is off so the
// Pango markup reaches Waybar as written.
func WriteJSON(w io.Writer, result models.RenderResult) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	return nil
}
