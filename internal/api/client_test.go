package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tabx-cli/tabx/internal/auth"
	"github.com/tabx-cli/tabx/internal/export"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, auth.Static("test-token"), 5*time.Second, WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	return client, server
}

func TestAuthorizationHeader(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"tables": []string{"users"}})
	}))

	tables, err := client.ListTables(context.Background())
	if err != nil {
		t.Fatalf("ListTables() error: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want Bearer test-token", gotAuth)
	}
	if len(tables) != 1 || tables[0] != "users" {
		t.Errorf("tables = %v, want [users]", tables)
	}
}

func TestNoTokenMeansNoHeader(t *testing.T) {
	var hasAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		json.NewEncoder(w).Encode(map[string]any{"tables": []string{}})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, auth.Static(""), time.Second, WithMaxRetries(0))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.ListTables(context.Background()); err != nil {
		t.Fatalf("ListTables() error: %v", err)
	}
	if hasAuth {
		t.Error("request carried an Authorization header without a token")
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
	}{
		{"unauthorized", 401, `{"detail":"token expired"}`, ErrAuth},
		{"forbidden", 403, `{"detail":"no export permission"}`, ErrForbidden},
		{"bad request", 400, `{"detail":"unknown column"}`, ErrInvalidRequest},
		{"missing", 404, `{"detail":"no such job"}`, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))

			_, err := client.TableSchema(context.Background(), "users")
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("error = %v, want %v", err, tt.sentinel)
			}
		})
	}
}

func TestPreviewShapeNormalization(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"canonical", `{"rows":[{"id":1}],"total_count":7}`},
		{"legacy", `{"data":[{"id":1}],"total_rows":7}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))

			preview, err := client.TableData(context.Background(), "users", 10)
			if err != nil {
				t.Fatalf("TableData() error: %v", err)
			}
			if len(preview.Rows) != 1 {
				t.Errorf("rows = %v, want 1 row", preview.Rows)
			}
			if preview.TotalCount != 7 {
				t.Errorf("total = %d, want 7", preview.TotalCount)
			}
		})
	}
}

func TestCreateExport(t *testing.T) {
	var gotBody map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/v1/data/export/create" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-9"})
	}))

	req := &export.Request{
		Table:    "orders",
		Columns:  []string{"id", "total"},
		Format:   export.FormatCSV,
		RowLimit: 100,
	}
	jobID, err := client.CreateExport(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateExport() error: %v", err)
	}
	if jobID != "job-9" {
		t.Errorf("jobID = %q, want job-9", jobID)
	}
	if gotBody["table"] != "orders" || gotBody["format"] != "csv" {
		t.Errorf("serialized request = %v", gotBody)
	}
	if _, ok := gotBody["row_limit"]; !ok {
		t.Error("row_limit missing from serialized request")
	}
}

func TestCreateExportMissingJobID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}))

	req := &export.Request{Table: "t", Columns: []string{"a"}, Format: "csv"}
	if _, err := client.CreateExport(context.Background(), req); err == nil {
		t.Fatal("expected error for missing job_id")
	}
}

func TestExportStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/data/export/job-3/status" {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"status":"failed","error_message":"out of disk"}`)
	}))

	status, err := client.ExportStatus(context.Background(), "job-3")
	if err != nil {
		t.Fatalf("ExportStatus() error: %v", err)
	}
	if status.Status != export.StatusFailed || status.ErrorMessage != "out of disk" {
		t.Errorf("status = %+v", status)
	}
	if status.JobID != "job-3" {
		t.Errorf("JobID = %q, want backfilled job-3", status.JobID)
	}
}

func TestDownloadExport(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Error("download must be authenticated")
		}
		w.Header().Set("Content-Disposition", `attachment; filename="orders_2024.csv"`)
		io.WriteString(w, "id,total\n")
	}))

	dl, err := client.DownloadExport(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("DownloadExport() error: %v", err)
	}
	defer dl.Body.Close()

	if dl.Filename != "orders_2024.csv" {
		t.Errorf("filename = %q, want orders_2024.csv", dl.Filename)
	}
	data, _ := io.ReadAll(dl.Body)
	if string(data) != "id,total\n" {
		t.Errorf("body = %q", data)
	}
}

func TestDownloadExportAuthError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	if _, err := client.DownloadExport(context.Background(), "job-1"); !errors.Is(err, ErrAuth) {
		t.Errorf("error = %v, want ErrAuth", err)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"tables": []string{"users"}})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, auth.Static("t"), 5*time.Second, WithMaxRetries(1))
	if err != nil {
		t.Fatal(err)
	}

	tables, err := client.ListTables(context.Background())
	if err != nil {
		t.Fatalf("ListTables() error after retry: %v", err)
	}
	if len(tables) != 1 {
		t.Errorf("tables = %v", tables)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls.Load())
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("", auth.Static("t"), time.Second); err == nil {
		t.Error("empty base URL should fail")
	}
}
