// Package audit writes and reads the append-only security audit trail.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/seccore/internal/clock"
	"github.com/telhawk-systems/seccore/internal/httputil"
	"github.com/telhawk-systems/seccore/internal/metrics"
	"github.com/telhawk-systems/seccore/internal/models"
	"github.com/telhawk-systems/seccore/internal/repository"
)

const defaultPageLimit = 50

// Service records security events and serves filtered retrieval and export.
//
// Log is deliberately best-effort: a failed audit write must not abort the
// primary request, so persistence errors are reported on the operational
// log and a metric instead of being returned. This is the one sanctioned
// exception to the fail-loud policy; Query and Export propagate store
// errors normally since their result is the point of the call.
type Service struct {
	store  repository.AuditStore
	signer *EventSigner
	clock  clock.Clock
	logger *slog.Logger
}

func NewService(store repository.AuditStore, signer *EventSigner, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, signer: signer, clock: clk, logger: logger}
}

// Log validates, signs, and persists an event. It never returns an error.
func (s *Service) Log(ctx context.Context, event *models.AuditEvent) {
	if event.UserID == "" || event.Action == "" {
		s.logger.Warn("dropping audit event with missing user_id or action",
			slog.String("action", string(event.Action)))
		metrics.AuditWriteFailures.Inc()
		return
	}

	if event.ID == "" {
		id, _ := uuid.NewV7()
		event.ID = id.String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.clock.Now().UTC()
	}
	if s.signer != nil {
		event.Signature = s.signer.Sign(event.ID, event.CreatedAt, event.UserID, string(event.Action), event.Success)
	}

	// Use Background context so audit writes complete even if the parent
	// request was cancelled.
	if err := s.store.InsertAuditEvent(context.Background(), event); err != nil {
		s.logger.Error("failed to persist audit event",
			slog.String("event_id", event.ID),
			slog.String("action", string(event.Action)),
			slog.String("error", err.Error()))
		metrics.AuditWriteFailures.Inc()
		return
	}

	metrics.AuditEventsTotal.WithLabelValues(string(event.Action)).Inc()
}

// LogAuthEvent records a login/logout/login_failed outcome, pulling client
// IP and user agent from the request context when present.
func (s *Service) LogAuthEvent(ctx context.Context, userID string, action models.Action, success bool, errMsg string) {
	event := &models.AuditEvent{
		UserID:  userID,
		Action:  action,
		Success: success,
		Error:   errMsg,
	}
	if rc := httputil.GetRequestContext(ctx); rc != nil {
		event.IPAddress = rc.IPAddress
		event.UserAgent = rc.UserAgent
	}
	s.Log(ctx, event)
}

// Verify checks an event's tamper-evidence signature.
func (s *Service) Verify(event *models.AuditEvent) bool {
	if s.signer == nil {
		return false
	}
	return s.signer.Verify(event.ID, event.CreatedAt, event.UserID, string(event.Action), event.Success, event.Signature)
}

// Query returns one page of matching events, newest first. Pagination is
// offset-based against the live store: concurrent inserts can shift rows
// between page reads.
func (s *Service) Query(ctx context.Context, filter *models.AuditFilter) (*models.AuditPage, error) {
	f := *filter
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageLimit
	}

	events, total, err := s.store.QueryAuditEvents(ctx, &f)
	if err != nil {
		return nil, err
	}

	return &models.AuditPage{
		Events:     events,
		TotalCount: total,
		Page:       f.Page,
		TotalPages: (total + f.Limit - 1) / f.Limit,
	}, nil
}

// Export serializes every event matching the filter (pagination fields are
// ignored) as pretty-printed JSON or CSV.
func (s *Service) Export(ctx context.Context, filter *models.AuditFilter, format models.ExportFormat) (string, error) {
	f := *filter
	f.Page = 0
	f.Limit = 0

	events, _, err := s.store.QueryAuditEvents(ctx, &f)
	if err != nil {
		return "", err
	}

	switch format {
	case models.ExportJSON:
		data, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal events: %w", err)
		}
		return string(data), nil
	case models.ExportCSV:
		return exportCSV(events)
	default:
		return "", fmt.Errorf("unsupported export format: %q", format)
	}
}

// exportCSV emits a fixed header and one row per event. Every cell is
// wrapped in double quotes with embedded quotes doubled (RFC 4180);
// encoding/csv is not used because it quotes only when necessary.
func exportCSV(events []*models.AuditEvent) (string, error) {
	var b strings.Builder
	b.WriteString("ID,User ID,Action,Success,IP,User Agent,Created At,Details\n")

	for _, event := range events {
		details := ""
		if event.Details != nil {
			data, err := json.Marshal(event.Details)
			if err != nil {
				return "", fmt.Errorf("failed to marshal details: %w", err)
			}
			details = string(data)
		}

		cells := []string{
			event.ID,
			event.UserID,
			string(event.Action),
			strconv.FormatBool(event.Success),
			event.IPAddress,
			event.UserAgent,
			event.CreatedAt.UTC().Format(time.RFC3339),
			details,
		}
		for i, cell := range cells {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
			b.WriteByte('"')
		}
		b.WriteByte('\n')
	}

	return b.String(), nil
}
