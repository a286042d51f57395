package description

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tverberg/castpoint/internal/logging"
)

const (
	// FetchTimeoutPerAttempt is the per-attempt HTTP timeout for
	// description documents.
	FetchTimeoutPerAttempt = 30 * time.Second

	// maxDescriptionSize caps a description body. Real DDF/SCPD documents
	// are a few KiB; a megabyte means something is wrong on the far side.
	maxDescriptionSize = 1 << 20
)

// Fetcher retrieves DDF and SCPD documents over HTTP and parses them into
// generic trees. On timeout the request is retried exactly once with a
// fresh connection; any second failure is final.
type Fetcher struct {
	// Client is the underlying HTTP client. The default carries the
	// per-attempt timeout.
	Client *http.Client
}

// NewFetcher creates a fetcher with the default timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{
		Client: &http.Client{Timeout: FetchTimeoutPerAttempt},
	}
}

// Get fetches url and parses the body into a Tree. Errors are always
// *FetchError.
func (f *Fetcher) Get(ctx context.Context, url string) (Tree, error) {
	tree, err := f.attempt(ctx, url)
	if err == nil {
		return tree, nil
	}

	fetchErr, ok := err.(*FetchError)
	if !ok || fetchErr.Kind != FetchTimeout {
		return nil, err
	}

	// One retry, and only for timeouts. Drop idle connections first so
	// the retry does not reuse the stalled one.
	logging.Warn("Description fetch timed out, retrying", zap.String("url", url))
	f.Client.CloseIdleConnections()

	return f.attempt(ctx, url)
}

// attempt performs a single GET and parse.
func (f *Fetcher) attempt(ctx context.Context, url string) (Tree, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchTransport, URL: url, Err: err}
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		if isTimeoutError(err) {
			return nil, &FetchError{Kind: FetchTimeout, URL: url, Err: err}
		}
		return nil, &FetchError{Kind: FetchTransport, URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Kind: FetchStatus, URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptionSize))
	if err != nil {
		if isTimeoutError(err) {
			return nil, &FetchError{Kind: FetchTimeout, URL: url, Err: err}
		}
		return nil, &FetchError{Kind: FetchTransport, URL: url, Err: err}
	}

	tree, err := ParseXML(body)
	if err != nil {
		return nil, &FetchError{Kind: FetchParse, URL: url, Err: err}
	}

	logging.Debug("Description fetched",
		zap.String("url", url),
		zap.Int("bytes", len(body)),
	)
	return tree, nil
}
