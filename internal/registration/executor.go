package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"portal-admin/internal/apiclient"
	"portal-admin/internal/observability"
)

const ExportFileName = "registrations.csv"

type Mutator interface {
	SendTicket(ctx context.Context, id string) error
	SendTicketsBulk(ctx context.Context, ids []string) (int, error)
	ToggleCheckIn(ctx context.Context, id string) (Record, error)
	ExportCSV(ctx context.Context) ([]byte, error)
	Analytics(ctx context.Context) (apiclient.Analytics, error)
}

type Refresher interface {
	Refresh(ctx context.Context) error
}

type ExportSink interface {
	Save(ctx context.Context, name string, payload []byte) (string, error)
}

type BulkResult struct {
	Requested int
	Updated   int
}

type CheckInResult struct {
	Record   Record
	Artifact *CheckInArtifact
}

// Executor runs mutations against the service. It never edits the cached
// page itself; every successful mutation is followed by a refetch.
type Executor struct {
	api       Mutator
	view      Refresher
	selection *Selection
	session   Session
	logger    *observability.Logger
	metrics   *observability.Metrics
}

func NewExecutor(api Mutator, view Refresher, selection *Selection, session Session, logger *observability.Logger, metrics *observability.Metrics) *Executor {
	return &Executor{
		api:       api,
		view:      view,
		selection: selection,
		session:   session,
		logger:    logger,
		metrics:   metrics,
	}
}

func (e *Executor) SendTicket(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &apiclient.ValidationError{Field: "id", Message: "is required"}
	}

	token := e.session.Token()
	if err := e.api.SendTicket(ctx, id); err != nil {
		return e.failed(ctx, "send ticket", token, err)
	}

	e.metrics.TicketsSent(1)
	e.logger.Info("ticket_sent", map[string]any{"registration_id": id})
	e.refresh(ctx)
	return nil
}

// SendTicketsBulk issues one request for all ids. The selection is cleared
// whatever the outcome; the result only carries the aggregate count.
func (e *Executor) SendTicketsBulk(ctx context.Context, ids []string) (BulkResult, error) {
	ids = normalizeIDs(ids)
	if len(ids) == 0 {
		return BulkResult{}, &apiclient.ValidationError{Field: "ids", Message: "select at least one registration"}
	}

	result := BulkResult{Requested: len(ids)}
	token := e.session.Token()
	updated, err := e.api.SendTicketsBulk(ctx, ids)
	e.selection.Clear()

	if err != nil {
		err = e.failed(ctx, "send tickets bulk", token, err)
		if !errors.Is(err, apiclient.ErrUnauthorized) {
			e.refresh(ctx)
		}
		return result, err
	}

	result.Updated = updated
	e.metrics.TicketsSent(updated)
	e.logger.Info("tickets_sent", map[string]any{
		"requested": result.Requested,
		"updated":   result.Updated,
	})
	e.refresh(ctx)
	return result, nil
}

func (e *Executor) SendSelected(ctx context.Context) (BulkResult, error) {
	return e.SendTicketsBulk(ctx, e.selection.IDs())
}

func (e *Executor) ToggleCheckIn(ctx context.Context, id string) (CheckInResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return CheckInResult{}, &apiclient.ValidationError{Field: "id", Message: "is required"}
	}

	token := e.session.Token()
	record, err := e.api.ToggleCheckIn(ctx, id)
	if err != nil {
		return CheckInResult{}, e.failed(ctx, "toggle check-in", token, err)
	}

	result := CheckInResult{Record: record}
	if record.CheckedIn {
		artifact := NewCheckInArtifact(record)
		result.Artifact = &artifact
	}

	e.logger.Info("checkin_toggled", map[string]any{
		"registration_id": record.ID,
		"checked_in":      record.CheckedIn,
	})
	e.refresh(ctx)
	return result, nil
}

// ExportCSV downloads the export and hands the bytes to sink unchanged.
func (e *Executor) ExportCSV(ctx context.Context, sink ExportSink) (string, error) {
	if sink == nil {
		return "", errors.New("export sink is required")
	}

	token := e.session.Token()
	payload, err := e.api.ExportCSV(ctx)
	if err != nil {
		return "", e.failed(ctx, "export registrations", token, err)
	}

	location, err := sink.Save(ctx, ExportFileName, payload)
	if err != nil {
		observability.CaptureError(err)
		return "", fmt.Errorf("save export: %w", err)
	}

	e.logger.Info("registrations_exported", map[string]any{
		"bytes":    len(payload),
		"location": location,
	})
	return location, nil
}

func (e *Executor) Analytics(ctx context.Context) (apiclient.Analytics, error) {
	token := e.session.Token()
	analytics, err := e.api.Analytics(ctx)
	if err != nil {
		return apiclient.Analytics{}, e.failed(ctx, "load analytics", token, err)
	}
	return analytics, nil
}

func (e *Executor) refresh(ctx context.Context) {
	if err := e.view.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrClosed) {
		e.logger.Warn("registrations_refresh_failed", map[string]any{"error": err.Error()})
	}
}

func (e *Executor) failed(ctx context.Context, op, token string, err error) error {
	if errors.Is(err, apiclient.ErrUnauthorized) {
		if invalidateErr := e.session.InvalidateToken(context.WithoutCancel(ctx), token); invalidateErr != nil {
			e.logger.Error("session_invalidate_failed", map[string]any{"error": invalidateErr.Error()})
		}
		e.logger.Warn("session_expired", map[string]any{"op": op})
		return err
	}

	if errors.Is(err, context.Canceled) {
		e.logger.Info("mutation_cancelled", map[string]any{"op": op})
		return err
	}

	observability.CaptureError(err)
	e.logger.Error("mutation_failed", map[string]any{
		"op":    op,
		"error": err.Error(),
	})
	return err
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
