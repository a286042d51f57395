package description

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const testDeviceDoc = `<?xml version="1.0"?>
<root><device><friendlyName>Test</friendlyName></device></root>`

func newShortTimeoutFetcher() *Fetcher {
	return &Fetcher{Client: &http.Client{Timeout: 300 * time.Millisecond}}
}

func TestFetcher_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testDeviceDoc))
	}))
	defer server.Close()

	tree, err := NewFetcher().Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := tree.Child("root").Child("device").Text("friendlyName"); got != "Test" {
		t.Errorf("friendlyName = %q, want Test", got)
	}
}

func TestFetcher_RetriesOnceOnTimeout(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			// Stall past the client timeout; the fetcher must retry.
			time.Sleep(2 * time.Second)
			return
		}
		_, _ = w.Write([]byte(testDeviceDoc))
	}))
	defer server.Close()

	tree, err := newShortTimeoutFetcher().Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tree.Child("root") == nil {
		t.Error("retry did not return the document")
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("observed %d HTTP attempts, want exactly 2", got)
	}
}

func TestFetcher_SecondTimeoutIsFinal(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	_, err := newShortTimeoutFetcher().Get(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Get() succeeded, want timeout error")
	}
	if !IsFetchTimeout(err) {
		t.Errorf("error = %v, want FetchTimeout", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("observed %d HTTP attempts, want exactly 2", got)
	}
}

func TestFetcher_NoRetryOnStatusError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewFetcher().Get(context.Background(), server.URL)

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %T, want *FetchError", err)
	}
	if fetchErr.Kind != FetchStatus || fetchErr.StatusCode != http.StatusNotFound {
		t.Errorf("error = %+v, want Status 404", fetchErr)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("observed %d HTTP attempts, want 1 (no retry on status)", got)
	}
}

func TestFetcher_ParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not xml at all`))
	}))
	defer server.Close()

	_, err := NewFetcher().Get(context.Background(), server.URL)

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %T, want *FetchError", err)
	}
	if fetchErr.Kind != FetchParse {
		t.Errorf("Kind = %v, want Parse", fetchErr.Kind)
	}
}

func TestFetcher_TransportError(t *testing.T) {
	// A closed server gives connection refused.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewFetcher().Get(context.Background(), url)

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %T, want *FetchError", err)
	}
	if fetchErr.Kind != FetchTransport {
		t.Errorf("Kind = %v, want Transport", fetchErr.Kind)
	}
}
