// Package ledger mirrors appointment state into an external spreadsheet.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	"github.com/wolfman30/clinic-scheduler/internal/events"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// DefaultRange is the sheet tab rows are appended to.
const DefaultRange = "Appointments!A1"

// Header lists the mirrored columns in order.
var Header = []string{
	"appointment_id", "clinic_id", "version", "status", "date", "start", "end",
	"phone", "service", "areas", "discount_percent", "discount_reason",
	"original_price_cents", "discounted_price_cents", "updated_at",
}

// SheetsSyncer appends one row per appointment version to a Google sheet.
// Each row is a full snapshot so the latest row per appointment wins.
type SheetsSyncer struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
	writeRange    string
	logger        *logging.Logger
}

// NewSheetsSyncer builds a syncer. Pass option.WithCredentialsFile in
// production; tests point option.WithEndpoint at a local server.
func NewSheetsSyncer(ctx context.Context, spreadsheetID string, logger *logging.Logger, opts ...option.ClientOption) (*SheetsSyncer, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("ledger: spreadsheet id is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ledger: create sheets client: %w", err)
	}
	return &SheetsSyncer{
		values:        srv.Spreadsheets.Values,
		spreadsheetID: spreadsheetID,
		writeRange:    DefaultRange,
		logger:        logger,
	}, nil
}

// WithRange overrides the target range.
func (s *SheetsSyncer) WithRange(r string) *SheetsSyncer {
	if r != "" {
		s.writeRange = r
	}
	return s
}

// Row renders a snapshot as sheet cells.
func Row(snap events.AppointmentSnapshot) []interface{} {
	return []interface{}{
		snap.AppointmentID,
		snap.ClinicID,
		snap.Version,
		snap.Status,
		clinic.DisplayDate(snap.Date),
		snap.Start,
		snap.End,
		snap.Phone,
		snap.ServiceName,
		strings.Join(snap.AreaIDs, ","),
		snap.DiscountPercent,
		snap.DiscountReason,
		snap.OriginalPriceCents,
		snap.DiscountedPriceCents,
		snap.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Handle implements events.Handler for ledger sync intents.
func (s *SheetsSyncer) Handle(ctx context.Context, env events.Envelope) error {
	var evt events.LedgerSyncRequestedV1
	if err := env.Decode(&evt); err != nil {
		return err
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{Row(evt.Appointment)}}
	resp, err := s.values.Append(s.spreadsheetID, s.writeRange, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("ledger: append row: %w", err)
	}

	updated := ""
	if resp.Updates != nil {
		updated = resp.Updates.UpdatedRange
	}
	s.logger.Info("ledger: appointment synced",
		"appointment_id", evt.Appointment.AppointmentID,
		"version", evt.Appointment.Version,
		"range", updated,
	)
	return nil
}

// Register wires the syncer into an intent dispatcher.
func (s *SheetsSyncer) Register(d *events.Dispatcher) {
	d.Register(events.TypeLedgerSync, s)
}
