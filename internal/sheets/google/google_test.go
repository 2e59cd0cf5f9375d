package google

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/sony/gobreaker"
	"google.golang.org/api/googleapi"
)

type fakeFetcher struct {
	calls  int
	lastID string
	rng    string
	values [][]interface{}
	err    error
}

func (f *fakeFetcher) fetch(_ context.Context, id, rng string) ([][]interface{}, error) {
	f.calls++
	f.lastID = id
	f.rng = rng
	return f.values, f.err
}

func newTestClient(f *fakeFetcher) *Client {
	return &Client{
		fetch:         f.fetch,
		breaker:       newBreaker("test"),
		spreadsheetID: "sheet-1",
		sheetName:     DefaultSheetName,
	}
}

var statementValues = [][]interface{}{
	{"이용일자", "이용금액", "사용자", "사용용도"},
	{"2024-05-02", "15000", "Kim", "점심식비"},
}

func TestClientReadRows(t *testing.T) {
	f := &fakeFetcher{values: statementValues}
	c := newTestClient(f)

	records, stats, err := c.ReadRows(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || stats.Accepted != 1 {
		t.Fatalf("unexpected result: %+v %+v", records, stats)
	}
	if f.lastID != "sheet-1" || f.rng != "'법인카드'!A:Z" {
		t.Fatalf("unexpected request: id=%s range=%s", f.lastID, f.rng)
	}
}

func TestClientOpenOverridesAndDefaults(t *testing.T) {
	f := &fakeFetcher{values: statementValues}
	c := newTestClient(f)

	if _, _, err := c.Open("other", "June").ReadRows(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.lastID != "other" || f.rng != "'June'!A:Z" {
		t.Fatalf("override not applied: id=%s range=%s", f.lastID, f.rng)
	}

	if _, _, err := c.Open("", "").ReadRows(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.lastID != "sheet-1" || f.rng != "'법인카드'!A:Z" {
		t.Fatalf("defaults not applied: id=%s range=%s", f.lastID, f.rng)
	}
}

func TestClientRequiresSpreadsheetID(t *testing.T) {
	f := &fakeFetcher{}
	c := newTestClient(f)
	c.spreadsheetID = ""

	_, _, err := c.ReadRows(context.Background())
	if !errors.Is(err, ErrMissingSpreadsheetID) {
		t.Fatalf("expected ErrMissingSpreadsheetID, got %v", err)
	}
	if f.calls != 0 {
		t.Fatalf("fetch should not be called, got %d calls", f.calls)
	}
}

func TestClientWrapsFetchAndParseErrors(t *testing.T) {
	boom := errors.New("boom")
	c := newTestClient(&fakeFetcher{err: boom})
	if _, _, err := c.ReadRows(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}

	c = newTestClient(&fakeFetcher{values: [][]interface{}{{"foo", "bar"}}})
	_, _, err := c.ReadRows(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing required column") {
		t.Fatalf("expected header error, got %v", err)
	}
}

func TestClientBreakerOpensAfterFailures(t *testing.T) {
	f := &fakeFetcher{err: errors.New("quota exceeded")}
	c := newTestClient(f)

	for i := 0; i < 5; i++ {
		if _, _, err := c.ReadRows(context.Background()); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	_, _, err := c.ReadRows(context.Background())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if f.calls != 5 {
		t.Fatalf("expected 5 fetches, got %d", f.calls)
	}
}

func TestClientBreakerIgnoresPermanentErrors(t *testing.T) {
	f := &fakeFetcher{err: &googleapi.Error{Code: http.StatusNotFound, Message: "Requested entity was not found."}}
	c := newTestClient(f)

	for i := 0; i < 8; i++ {
		_, _, err := c.ReadRows(context.Background())
		if !IsPermanent(err) {
			t.Fatalf("call %d: expected permanent error, got %v", i, err)
		}
	}
	if f.calls != 8 {
		t.Fatalf("expected 8 fetches, got %d", f.calls)
	}
	if c.breaker.State() != gobreaker.StateClosed {
		t.Fatalf("expected closed breaker, got %s", c.breaker.State())
	}
}

func TestNewSheetsServiceMissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := newSheetsService(context.Background(), "", "")
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestNewSheetsServiceUnreadableFile(t *testing.T) {
	_, err := newSheetsService(context.Background(), "", t.TempDir()+"/missing.json")
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected file error, got %v", err)
	}
}

func TestServiceFetchWithoutService(t *testing.T) {
	if _, err := serviceFetch(nil)(context.Background(), "id", "A:Z"); !errors.Is(err, ErrServiceNotReady) {
		t.Fatalf("expected ErrServiceNotReady, got %v", err)
	}
}

func TestNewSheetsServiceInvalidJSON(t *testing.T) {
	_, err := newSheetsService(context.Background(), "{not json", "")
	if err == nil || !strings.Contains(err.Error(), "parse service account credentials") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestNewSheetsServiceWithServiceAccount(t *testing.T) {
	sa := `{"type":"service_account","client_email":"reader@example.iam.gserviceaccount.com",` +
		`"private_key_id":"k1","private_key":"unused","token_uri":"https://oauth2.googleapis.com/token"}`
	svc, err := newSheetsService(context.Background(), sa, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc == nil || svc.Spreadsheets == nil {
		t.Fatal("expected a usable service")
	}
}
