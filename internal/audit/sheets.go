package audit

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"ahorrove/internal/logger"
)

const (
	sheetsBaseURL = "https://sheets.googleapis.com/"
	sheetsRange   = "A:N"

	defaultSheetTitle = "Sheet1"
)

// SheetsConfig identifies the spreadsheet and the service account that
// appends to it. BaseURL, TokenURL and HTTPClient are optional.
type SheetsConfig struct {
	SpreadsheetID string
	Email         string
	PrivateKey    []byte
	BaseURL       string
	TokenURL      string
	HTTPClient    *http.Client
}

// SheetsConfigFromEnv decodes a base64 PEM private key as stored in the
// GOOGLE_PRIVATE_KEY_BASE64 variable.
func SheetsConfigFromEnv(spreadsheetID, email, keyBase64 string) (SheetsConfig, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(keyBase64))
	if err != nil {
		return SheetsConfig{}, fmt.Errorf("sheets: decode private key: %w", err)
	}
	if !bytes.Contains(key, []byte("PRIVATE KEY")) {
		return SheetsConfig{}, errors.New("sheets: private key is not PEM encoded")
	}
	return SheetsConfig{SpreadsheetID: spreadsheetID, Email: email, PrivateKey: key}, nil
}

// SheetsSink appends each record as a row of the first worksheet.
type SheetsSink struct {
	id  string
	srv *sheets.Service

	mu    sync.Mutex
	title string
}

// NewSheetsSink builds a Sheets service authenticated with the service
// account credentials. No request is made until the first Write.
func NewSheetsSink(cfg SheetsConfig) (*SheetsSink, error) {
	if cfg.SpreadsheetID == "" || cfg.Email == "" || len(cfg.PrivateKey) == 0 {
		return nil, errors.New("sheets: spreadsheet id, email and private key are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = sheetsBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = google.JWTTokenURL
	}
	jc := &jwt.Config{
		Email:      cfg.Email,
		PrivateKey: cfg.PrivateKey,
		Scopes:     []string{sheets.SpreadsheetsScope},
		TokenURL:   cfg.TokenURL,
	}
	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	srv, err := sheets.NewService(ctx,
		option.WithHTTPClient(jc.Client(ctx)),
		option.WithEndpoint(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("sheets: service: %w", err)
	}
	return &SheetsSink{id: cfg.SpreadsheetID, srv: srv}, nil
}

func (s *SheetsSink) Name() string { return "sheets" }

func (s *SheetsSink) Write(ctx context.Context, r Record) error {
	rng := fmt.Sprintf("'%s'!%s", s.sheetTitle(ctx), sheetsRange)
	vr := &sheets.ValueRange{Values: [][]interface{}{r.Row()}}
	_, err := s.srv.Spreadsheets.Values.Append(s.id, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets: append: %w", err)
	}
	return nil
}

// sheetTitle resolves and caches the title of the first worksheet. It falls
// back to Sheet1 when the spreadsheet reports none or the lookup fails; a
// failed lookup is retried on the next write.
func (s *SheetsSink) sheetTitle(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.title != "" {
		return s.title
	}

	meta, err := s.srv.Spreadsheets.Get(s.id).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		logger.Warn("sheets: title lookup failed, using default", map[string]interface{}{
			"error": err.Error(), "title": defaultSheetTitle,
		})
		return defaultSheetTitle
	}
	s.title = defaultSheetTitle
	if len(meta.Sheets) > 0 && meta.Sheets[0].Properties != nil && meta.Sheets[0].Properties.Title != "" {
		s.title = meta.Sheets[0].Properties.Title
	}
	return s.title
}
