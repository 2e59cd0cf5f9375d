package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"

	"sikdae/internal/core"
	ports "sikdae/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var (
	ErrMissingSpreadsheetID = errors.New("missing spreadsheet id")
	ErrMissingCredentials   = errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	ErrServiceNotReady      = errors.New("sheets service not initialized")
)

// DefaultSheetName is the tab read when none is configured.
const DefaultSheetName = "법인카드"

// Options configures a Client.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// fetchFunc reads a values range of a spreadsheet.
type fetchFunc func(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)

// Client reads card statements kept in Google Sheets.
type Client struct {
	fetch         fetchFunc
	breaker       *gobreaker.CircuitBreaker
	spreadsheetID string
	sheetName     string
}

var (
	_ ports.RowReader   = (*Client)(nil)
	_ ports.SheetOpener = (*Client)(nil)
)

// New creates a Sheets client authenticated with a service account.
// SpreadsheetID may be empty when the client is only used through Open.
// ctx is kept for token refreshes and must outlive the client.
func New(ctx context.Context, opts Options) (*Client, error) {
	svc, err := newSheetsService(ctx, opts.CredentialsJSON, opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	sheet := strings.TrimSpace(opts.SheetName)
	if sheet == "" {
		sheet = DefaultSheetName
	}
	return &Client{
		fetch:         serviceFetch(svc),
		breaker:       newBreaker("google-sheets"),
		spreadsheetID: strings.TrimSpace(opts.SpreadsheetID),
		sheetName:     sheet,
	}, nil
}

func serviceFetch(svc *gsheet.Service) fetchFunc {
	return func(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
		if svc == nil {
			return nil, ErrServiceNotReady
		}
		resp, err := svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return resp.Values, nil
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Inline JSON wins over a file path; GOOGLE_APPLICATION_CREDENTIALS is the fallback.
func newSheetsService(ctx context.Context, credentialsJSON, credentialsFile string) (*gsheet.Service, error) {
	credentialsJSON = strings.TrimSpace(credentialsJSON)
	credentialsFile = strings.TrimSpace(credentialsFile)
	if credentialsJSON == "" && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var creds []byte
	switch {
	case credentialsJSON != "":
		creds = []byte(credentialsJSON)
	case credentialsFile != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", credentialsFile)
		b, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		creds = b
	default:
		return nil, ErrMissingCredentials
	}

	client, err := authorizedClient(ctx, creds)
	if err != nil {
		return nil, err
	}
	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "scope", gsheet.SpreadsheetsReadonlyScope)
	return service, nil
}

// authorizedClient wraps the pooled transport with service account tokens.
// WithHTTPClient bypasses the option package's own credential handling, so
// authentication has to live in the client itself. Token refreshes use ctx.
func authorizedClient(ctx context.Context, credentialsJSON []byte) (*http.Client, error) {
	creds, err := googleoauth.CredentialsFromJSON(ctx, credentialsJSON, gsheet.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	base := newHTTPClientWithPooling()
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), creds.TokenSource)
	client.Timeout = base.Timeout
	return client, nil
}

// newHTTPClientWithPooling creates an HTTP client with connection pooling
// and the timeouts used for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// ReadRows reads the configured sheet.
func (c *Client) ReadRows(ctx context.Context) ([]core.ExpenseRecord, ports.IngestStats, error) {
	return c.read(ctx, c.spreadsheetID, c.sheetName)
}

// Open returns a reader for another spreadsheet or tab using the same
// credentials and circuit breaker. Empty arguments fall back to the
// client's defaults.
func (c *Client) Open(spreadsheetID, sheetName string) ports.RowReader {
	if strings.TrimSpace(spreadsheetID) == "" {
		spreadsheetID = c.spreadsheetID
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = c.sheetName
	}
	return &sheetReader{client: c, spreadsheetID: spreadsheetID, sheetName: sheetName}
}

type sheetReader struct {
	client        *Client
	spreadsheetID string
	sheetName     string
}

func (r *sheetReader) ReadRows(ctx context.Context) ([]core.ExpenseRecord, ports.IngestStats, error) {
	return r.client.read(ctx, r.spreadsheetID, r.sheetName)
}

func (c *Client) read(ctx context.Context, spreadsheetID, sheetName string) ([]core.ExpenseRecord, ports.IngestStats, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, ports.IngestStats{}, ErrMissingSpreadsheetID
	}
	rng := sheetRange(sheetName)
	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, spreadsheetID, rng)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.WarnContext(ctx, "Sheets circuit breaker rejected read", "range", rng, "state", c.breaker.State().String())
		}
		return nil, ports.IngestStats{}, fmt.Errorf("read %s: %w", rng, err)
	}
	values, _ := out.([][]interface{})
	records, stats, err := parseValues(values)
	if err != nil {
		return nil, stats, fmt.Errorf("parse %s: %w", rng, err)
	}
	slog.InfoContext(ctx, "Read card statement from sheet",
		"range", rng,
		"rows", stats.Read,
		"accepted", stats.Accepted,
		"duration_ms", time.Since(start).Milliseconds())
	return records, stats, nil
}
