// Package sheets implements the Google Sheets audit mirror adapter.
//
// The mirror is a best-effort side channel for manual review. Rows are
// appended with the service account credentials configured at startup; a
// failed append is reported as a typed mirror error and lost permanently —
// the dedup store stays the source of truth and there is no retry queue.
package sheets

import (
	"context"
	"fmt"
	"os"
	"time"

	"lcsec_server/core/domain"
	"lcsec_server/core/port/out"
	"lcsec_server/pkg/httputil"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Mirror implements out.AuditMirror using the Google Sheets API.
type Mirror struct {
	service       *sheets.Service
	spreadsheetID string
	worksheet     string
	log           zerolog.Logger
}

// Config holds mirror sink configuration.
type Config struct {
	CredentialsFile string
	SpreadsheetID   string
	Worksheet       string
}

// NewMirror creates a new Sheets mirror from service account credentials.
func NewMirror(ctx context.Context, cfg *Config, log zerolog.Logger) (*Mirror, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheets credentials: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sheets credentials: %w", err)
	}

	// Token refresh goes through the pooled client; appends fail fast
	authCtx := context.WithValue(ctx, oauth2.HTTPClient, httputil.SheetsClient())
	service, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(authCtx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Mirror{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		worksheet:     cfg.Worksheet,
		log:           log.With().Str("component", "sheets-mirror").Logger(),
	}, nil
}

// Append writes one ordered row [message, label, confidence, model,
// timestamp] to the configured worksheet.
func (m *Mirror) Append(ctx context.Context, prediction *domain.Prediction) error {
	row := &sheets.ValueRange{
		Values: [][]interface{}{{
			prediction.Message,
			string(prediction.Label),
			prediction.Confidence,
			string(prediction.Model),
			prediction.Timestamp.UTC().Format(time.RFC3339),
		}},
	}

	_, err := m.service.Spreadsheets.Values.
		Append(m.spreadsheetID, m.worksheet, row).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		m.log.Warn().Err(err).Str("model", string(prediction.Model)).Msg("sheet append failed")
		return &out.MirrorError{Sink: "google-sheets", Err: err}
	}

	m.log.Debug().Str("model", string(prediction.Model)).Msg("mirrored prediction row")
	return nil
}

// Interface compliance
var _ out.AuditMirror = (*Mirror)(nil)
