// Package remote implements the thin HTTP chunk/manifest protocol described
// in spec.md §6: GET/PUT of content-addressed chunks and an ETag-checked
// manifest endpoint. Grounded on spec.md's "Remote chunk protocol
// (informative)" section; out of scope per the original spec's Non-goals is
// the full async remote-fetch server, not this client adapter.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/talaria-db/sequoia/hashid"
)

// ErrChunkHashMismatch is returned when a downloaded chunk's content hash
// does not match the hash that was requested.
var ErrChunkHashMismatch = errors.New("remote: downloaded chunk hash mismatch")

// Client is a thin HTTP client for the chunk/manifest protocol.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
	backoff func() backoff.BackOff
}

// New constructs a Client against baseURL (e.g. TALARIA_CHUNK_SERVER).
func New(baseURL string, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		log:     log,
		backoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4)
		},
	}
}

// FetchChunk downloads the chunk at hash and verifies Hash32.of(bytes) ==
// hash before returning, per spec.md §6's integrity requirement.
func (c *Client) FetchChunk(ctx context.Context, hash hashid.Hash32) ([]byte, error) {
	url := fmt.Sprintf("%s/chunks/%s", c.baseURL, hash.String())

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "remote: build request"))
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return errors.Wrap(err, "remote: fetch chunk")
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(errors.Errorf("remote: chunk %s not found", hash))
		}
		if resp.StatusCode != http.StatusOK {
			return errors.Errorf("remote: unexpected status %d fetching chunk %s", resp.StatusCode, hash)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "remote: read chunk body")
		}
		body = data
		return nil
	}

	if err := backoff.Retry(op, c.backoff()); err != nil {
		return nil, err
	}

	if hashid.Of(body) != hash {
		return nil, errors.Wrapf(ErrChunkHashMismatch, "requested %s", hash)
	}
	return body, nil
}

// PushChunk uploads data under its own content hash.
func (c *Client) PushChunk(ctx context.Context, data []byte) error {
	hash := hashid.Of(data)
	url := fmt.Sprintf("%s/chunks/%s", c.baseURL, hash.String())

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "remote: build request"))
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return errors.Wrap(err, "remote: push chunk")
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return errors.Errorf("remote: server error %d pushing chunk %s", resp.StatusCode, hash)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(errors.Errorf("remote: rejected push of chunk %s: status %d", hash, resp.StatusCode))
		}
		return nil
	}

	return backoff.Retry(op, c.backoff())
}

// ManifestStatus reports whether the remote manifest has changed relative
// to a previously-seen ETag.
type ManifestStatus struct {
	Changed bool
	ETag    string
	Body    []byte
}

// CheckManifest issues a conditional GET against the server's manifest
// endpoint with If-None-Match: knownETag. A 304 short-circuits the
// download per spec.md §4.10.
func (c *Client) CheckManifest(ctx context.Context, path, knownETag string) (ManifestStatus, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, path)

	var status ManifestStatus
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "remote: build request"))
		}
		if knownETag != "" {
			req.Header.Set("If-None-Match", knownETag)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return errors.Wrap(err, "remote: check manifest")
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusNotModified:
			status = ManifestStatus{Changed: false, ETag: knownETag}
			return nil
		case http.StatusOK:
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return errors.Wrap(err, "remote: read manifest body")
			}
			status = ManifestStatus{Changed: true, ETag: resp.Header.Get("ETag"), Body: data}
			return nil
		default:
			return errors.Errorf("remote: unexpected status %d checking manifest", resp.StatusCode)
		}
	}

	if err := backoff.Retry(op, c.backoff()); err != nil {
		return ManifestStatus{}, err
	}
	return status, nil
}
