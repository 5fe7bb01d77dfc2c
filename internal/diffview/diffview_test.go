package diffview

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUploadDisabled(t *testing.T) {
	c := New("")
	url, err := c.Upload(context.Background(), "main.go", "- a\n+ b")
	if err != nil || url != "" {
		t.Errorf("disabled upload = %q, %v", url, err)
	}
}

func TestUploadRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/diffs" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req uploadRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.FilePath != "main.go" || req.Diff == "" {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"url":"https://diffs.example/d/42"}`))
	}))
	defer srv.Close()

	url, err := New(srv.URL).Upload(context.Background(), "main.go", "- a\n+ b")
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://diffs.example/d/42" {
		t.Errorf("url = %q", url)
	}
}

func TestUploadErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "full", http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	if _, err := New(srv.URL).Upload(context.Background(), "f", "d"); err == nil {
		t.Fatal("non-2xx must error")
	}
}
