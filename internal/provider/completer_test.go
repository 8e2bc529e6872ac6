package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"concierge/internal/domain"
)

func completionBody(content string) string {
	return `{"choices":[{"message":{"role":"assistant","content":` + jsonString(content) + `},"finish_reason":"stop"}]}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestClient_Complete_FastModel(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		gotModel, _ = req["model"].(string)
		io.WriteString(w, completionBody("finance, todo"))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		APIBase:      srv.URL,
		FastModel:    "mini",
		QualityModel: "big",
		Logger:       testLogger(),
	})

	out, err := c.Complete(context.Background(), "classify", "gastei 50 reais", domain.ModeFast)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "finance, todo" {
		t.Fatalf("unexpected content: %q", out)
	}
	if gotModel != "mini" {
		t.Fatalf("expected fast model 'mini', got %q", gotModel)
	}
}

func TestClient_Complete_QualityModel(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		gotModel, _ = req["model"].(string)
		io.WriteString(w, completionBody("Pronto!"))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{APIBase: srv.URL, FastModel: "mini", QualityModel: "big", Logger: testLogger()})

	if _, err := c.Complete(context.Background(), "persona", "confirm", domain.ModeQuality); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if gotModel != "big" {
		t.Fatalf("expected quality model 'big', got %q", gotModel)
	}
}

func TestClient_Complete_JSONMode(t *testing.T) {
	var gotFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		if rf, ok := req["response_format"].(map[string]any); ok {
			gotFormat, _ = rf["type"].(string)
		}
		io.WriteString(w, completionBody(`{"amount": 50}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{APIBase: srv.URL, Logger: testLogger()})

	out, err := c.Complete(context.Background(), "extract", "gastei 50", domain.ModeJSON)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if gotFormat != "json_object" {
		t.Fatalf("expected json_object response format, got %q", gotFormat)
	}
	if out != `{"amount": 50}` {
		t.Fatalf("unexpected content: %q", out)
	}
}

func TestClient_Complete_RetriesOn500(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "transient", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, completionBody("ok"))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{APIBase: srv.URL, Logger: testLogger()})

	out, err := c.Complete(context.Background(), "", "hi", domain.ModeFast)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "ok" {
		t.Fatalf("unexpected content: %q", out)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls (1 retry), got %d", calls.Load())
	}
}

func TestClient_Complete_NonRetryableError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{APIBase: srv.URL, Logger: testLogger()})

	if _, err := c.Complete(context.Background(), "", "hi", domain.ModeFast); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if calls.Load() != 1 {
		t.Fatalf("400 must not be retried, got %d calls", calls.Load())
	}
}

func TestClient_Complete_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{APIBase: srv.URL, Logger: testLogger()})

	if _, err := c.Complete(context.Background(), "", "hi", domain.ModeFast); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
