package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Header names used on every outgoing exchange.
const (
	headerAPIKey      = "X-Flowdeck-Api-Key"
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	headerUserAgent   = "User-Agent"

	contentTypeJSON = "application/json"
)

// request describes one outgoing exchange. A fresh request value is built
// for every attempt; it is never mutated after construction.
type request struct {
	method  string
	path    string
	params  url.Values
	headers map[string]string
	body    []byte
	hasBody bool
	timeout time.Duration
}

// transport issues a single HTTP exchange against the Flowdeck API and
// classifies the outcome. It carries no retry logic.
type transport struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	userAgent string
	logger    zerolog.Logger
}

// execute performs one exchange and returns the decoded response body,
// or exactly one taxonomy error: *TransportError, *TimeoutError or
// *APIError.
func (t *transport) execute(ctx context.Context, req *request) (any, error) {
	fullURL, err := t.buildURL(req.path, req.params)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()

	var bodyReader io.Reader
	if req.hasBody {
		bodyReader = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.method, fullURL, bodyReader)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	t.setHeaders(httpReq, req)

	t.logger.Debug().
		Str("method", req.method).
		Str("path", req.path).
		Bool("has_body", req.hasBody).
		Msg("Dispatching request")

	resp, err := t.http.Do(httpReq)
	if err != nil {
		if isDeadlineExceeded(err, attemptCtx) {
			t.logger.Debug().
				Str("method", req.method).
				Str("path", req.path).
				Dur("timeout", req.timeout).
				Msg("Request deadline exceeded")
			return nil, &TimeoutError{Elapsed: req.timeout}
		}
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	t.logger.Debug().
		Str("method", req.method).
		Str("path", req.path).
		Int("status", resp.StatusCode).
		Msg("Received response")

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode >= 400 {
		return nil, t.classifyResponse(resp, raw)
	}

	return t.decodeSuccess(resp, raw, req), nil
}

// setHeaders applies the default headers and then the per-call overrides,
// so a per-call value always wins.
func (t *transport) setHeaders(httpReq *http.Request, req *request) {
	httpReq.Header.Set(headerAPIKey, t.apiKey)
	httpReq.Header.Set(headerAccept, contentTypeJSON)
	httpReq.Header.Set(headerUserAgent, t.userAgent)
	if req.hasBody {
		httpReq.Header.Set(headerContentType, contentTypeJSON)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
}

// buildURL joins the base URL with the request path and appends the
// URL-encoded query parameters. Parameters with no values are skipped.
func (t *transport) buildURL(path string, params url.Values) (string, error) {
	joined := strings.TrimSuffix(t.baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	u, err := url.Parse(joined)
	if err != nil {
		return "", fmt.Errorf("build url for %q: %w", path, err)
	}

	if len(params) > 0 {
		q := u.Query()
		for key, values := range params {
			for _, v := range values {
				if v == "" {
					continue
				}
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// classifyResponse converts a >= 400 response into an *APIError. The body
// is decoded best-effort: JSON if possible, otherwise carried as text.
func (t *transport) classifyResponse(resp *http.Response, raw []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    resp.Status,
	}

	var decoded any
	if len(raw) > 0 && json.Unmarshal(raw, &decoded) == nil {
		apiErr.Raw = decoded
		if obj, ok := decoded.(map[string]any); ok {
			if code, ok := obj["code"].(string); ok {
				apiErr.Code = code
			}
			if msg, ok := obj["message"].(string); ok && msg != "" {
				apiErr.Message = msg
			}
		}
	} else if len(raw) > 0 {
		apiErr.Raw = string(raw)
	}

	t.logger.Debug().
		Int("status", apiErr.StatusCode).
		Str("code", apiErr.Code).
		Str("kind", string(apiErr.Kind())).
		Bool("retryable", apiErr.Retryable()).
		Msg("Response classified as error")

	return apiErr
}

// decodeSuccess decodes a < 400 response body. A 204, an empty body or a
// non-JSON content type yields nil. A malformed JSON body on a success
// status also yields nil with a warning: the remote contract for the
// endpoint is otherwise satisfied, so this is not a hard failure.
func (t *transport) decodeSuccess(resp *http.Response, raw []byte, req *request) any {
	if resp.StatusCode == http.StatusNoContent || len(raw) == 0 {
		return nil
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get(headerContentType))
	if err != nil || mediaType != contentTypeJSON {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.logger.Warn().
			Str("method", req.method).
			Str("path", req.path).
			Int("status", resp.StatusCode).
			Msg("Malformed JSON body on success status - degrading to null")
		return nil
	}
	return decoded
}

// isDeadlineExceeded distinguishes the attempt deadline expiring from any
// other transport-level failure.
func isDeadlineExceeded(err error, ctx context.Context) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return ctx.Err() == context.DeadlineExceeded
}

// encodeBody serializes a structured body to JSON. Pre-encoded bodies
// ([]byte, json.RawMessage, string) pass through untouched.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		return data, nil
	}
}
