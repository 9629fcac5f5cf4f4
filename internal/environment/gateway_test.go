package environment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchSnapshot(t *testing.T) {
	var currentQuery, astroQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/current.json":
			currentQuery = r.URL.RawQuery
			w.Write([]byte(`{"current":{"temp_c":18.0,"uv":3,"condition":{"text":"Clear"}}}`))
		case "/astronomy.json":
			astroQuery = r.URL.RawQuery
			w.Write([]byte(`{"astronomy":{"astro":{"sunrise":"6:02 AM","sunset":"8:45 PM"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	g := NewGateway(srv.Client(), "test-key", WithBaseURL(srv.URL))

	snap, err := g.Fetch(context.Background(), 53.35, -6.26)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snap.Condition != "Clear" {
		t.Errorf("condition = %q, want %q", snap.Condition, "Clear")
	}
	if snap.TemperatureC != 18.0 {
		t.Errorf("temperature = %v, want 18.0", snap.TemperatureC)
	}
	if snap.UVIndex != 3 {
		t.Errorf("uv = %v, want 3", snap.UVIndex)
	}
	if snap.Sunrise != "6:02 AM" || snap.Sunset != "8:45 PM" {
		t.Errorf("astro = %q/%q, want raw 12-hour values", snap.Sunrise, snap.Sunset)
	}

	for _, q := range []string{currentQuery, astroQuery} {
		if q == "" {
			t.Fatal("expected both upstream endpoints to be queried")
		}
	}
}

func TestFetchRequiresAPIKey(t *testing.T) {
	g := NewGateway(http.DefaultClient, "")

	if _, err := g.Fetch(context.Background(), 0, 0); err == nil {
		t.Fatal("expected an error without an API key")
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		switch r.URL.Path {
		case "/current.json":
			w.Write([]byte(`{"current":{"temp_c":10,"uv":1,"condition":{"text":"Mist"}}}`))
		case "/astronomy.json":
			w.Write([]byte(`{"astronomy":{"astro":{"sunrise":"7:00 AM","sunset":"5:00 PM"}}}`))
		}
	}))
	defer srv.Close()

	g := NewGateway(srv.Client(), "test-key", WithBaseURL(srv.URL))
	g.backoff.InitialInterval = time.Millisecond

	snap, err := g.Fetch(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Condition != "Mist" {
		t.Errorf("condition = %q, want %q", snap.Condition, "Mist")
	}
	if hits < 3 {
		t.Errorf("expected a retry after the 500, got %d hits", hits)
	}
}
