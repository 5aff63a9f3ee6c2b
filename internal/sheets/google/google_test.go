package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheetsAPI serves the three Values endpoints the client uses.
type fakeSheetsAPI struct {
	mu       sync.Mutex
	values   [][]interface{}
	appended []string
	cleared  []string
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		_ = json.NewEncoder(w).Encode(map[string]any{"values": f.values})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		if r.URL.Query().Get("valueInputOption") != "RAW" {
			http.Error(w, "expected RAW input", http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.appended = append(f.appended, string(body))
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		f.cleared = append(f.cleared, path)
		_, _ = w.Write([]byte(`{}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, api *fakeSheetsAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return NewWithService(svc, "sheet-id", "")
}

func TestReadRows(t *testing.T) {
	api := &fakeSheetsAPI{values: [][]interface{}{
		{"ID", "Date", "Type", "Category", "Title", "Amount", "UserID"},
		{"t1", "2025-06-01", "expense", "Food", " Lunch ", 12.5, "u1"},
		{},
	}}
	c := newTestClient(t, api)

	rows, err := c.ReadRows(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[1].Number != 2 || rows[1].Values[4] != "Lunch" || rows[1].Values[5] != "12.5" {
		t.Fatalf("unexpected row %+v", rows[1])
	}
	if !rows[2].Blank() {
		t.Fatal("empty row should be blank")
	}
}

func TestAppendAndClear(t *testing.T) {
	api := &fakeSheetsAPI{}
	c := newTestClient(t, api)

	if err := c.AppendRows(context.Background(), [][]string{{"t1", "2025-06-01", "expense", "Food", "=HYPERLINK()", "3.00", "u1"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(api.appended) != 1 || !strings.Contains(api.appended[0], "=HYPERLINK()") {
		t.Fatalf("unexpected append payload %v", api.appended)
	}

	if err := c.ClearRow(context.Background(), 4); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(api.cleared) != 1 || !strings.Contains(api.cleared[0], "Transactions!A4:G4") {
		t.Fatalf("unexpected clear path %v", api.cleared)
	}
}

func TestNewRequiresSpreadsheetAndCredentials(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	_, err := New(context.Background(), Config{SpreadsheetID: "x"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
	_, err = New(context.Background(), Config{SpreadsheetID: "x", CredentialsFile: t.TempDir() + "/missing.json"})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected file error, got %v", err)
	}
}
