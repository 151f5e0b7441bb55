// Package pagination accumulates cursor-paginated Flowdeck collections
// into bounded local results. Pages for one fetch proceed strictly
// sequentially: a page's cursor is only known once the previous page has
// resolved.
package pagination

import (
	"context"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/flowdeck/flowdeck-go/pkg/logging"
)

// Default ceilings applied when Options leaves them unset.
const (
	// DefaultMaxPages bounds auto-pagination when no explicit cap is given.
	DefaultMaxPages = 100

	// DefaultLimit is the page size requested from the API.
	DefaultLimit = 100
)

// Getter is the single-call surface the paginator needs from the client.
type Getter interface {
	Get(ctx context.Context, path string, params url.Values) (any, error)
}

// Options customizes one FetchAll invocation.
type Options struct {
	// Limit is the page size requested from the API.
	Limit int

	// Cursor resumes iteration from a previous result's NextCursor.
	Cursor string

	// AutoPaginate follows cursors until exhaustion or a cap is hit.
	// When false (the default) exactly one page is fetched and its
	// cursor returned for the caller to follow.
	AutoPaginate bool

	// MaxPages caps the number of pages fetched in auto mode.
	MaxPages int

	// MaxItems caps the merged item count; the result is truncated to
	// exactly this many items. Zero means unbounded.
	MaxItems int

	// Params are extra query parameters sent with every page request.
	Params url.Values
}

// Result is the terminal value of one FetchAll invocation.
type Result struct {
	// Items are the merged items in server fetch order.
	Items []any

	// NextCursor is the cursor for the next page, or empty when the
	// collection was exhausted. Non-empty after auto mode means the
	// result was truncated by a cap.
	NextCursor string

	// ItemsFetched is the number of items in Items.
	ItemsFetched int

	// PagesFetched is the number of page requests performed.
	PagesFetched int
}

// Paginator fetches paginated collections through a client. It holds no
// mutable state across calls; each FetchAll owns its own accumulator.
type Paginator struct {
	client Getter
	logger zerolog.Logger
}

// New creates a paginator over the given client.
func New(client Getter) *Paginator {
	return &Paginator{
		client: client,
		logger: logging.NewLogger("pagination"),
	}
}

// FetchAll fetches one page, or in auto mode every page, of the
// collection at path and merges the items into a single result.
func (p *Paginator) FetchAll(ctx context.Context, path string, opts Options) (*Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	result := &Result{}
	cursor := opts.Cursor

	for {
		params := pageParams(opts.Params, limit, cursor)
		resp, err := p.client.Get(ctx, path, params)
		if err != nil {
			return nil, err
		}
		result.PagesFetched++

		items, nextCursor := p.normalizePage(path, resp)
		result.Items = append(result.Items, items...)
		result.NextCursor = nextCursor
		cursor = nextCursor

		// The item cap binds no matter which condition ends the loop,
		// including a cursorless final page that overshoots it.
		if opts.MaxItems > 0 && len(result.Items) >= opts.MaxItems {
			result.Items = result.Items[:opts.MaxItems]
			break
		}
		if !opts.AutoPaginate {
			break
		}
		if len(items) == 0 || nextCursor == "" {
			break
		}
		if result.PagesFetched >= maxPages {
			p.logger.Warn().
				Str("path", path).
				Int("pages_fetched", result.PagesFetched).
				Int("max_pages", maxPages).
				Msg("Pagination stopped at page cap - result truncated")
			break
		}
	}

	result.ItemsFetched = len(result.Items)
	return result, nil
}

// pageParams builds the query parameters for one page request.
func pageParams(base url.Values, limit int, cursor string) url.Values {
	params := url.Values{}
	for k, vs := range base {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	params.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	return params
}

// normalizePage extracts the item slice and next cursor from a page
// response. A bare array is one exhausted page. An object carries its
// items under "data" and an optional cursor under "nextCursor" or
// "cursor". Anything else yields an empty page with a warning; that is a
// defensive default, not a silent success.
func (p *Paginator) normalizePage(path string, resp any) ([]any, string) {
	switch page := resp.(type) {
	case []any:
		return page, ""
	case map[string]any:
		items, ok := page["data"].([]any)
		if !ok {
			p.logger.Warn().
				Str("path", path).
				Msg("Page object carries no data array - treating as empty page")
			return nil, ""
		}
		if cursor, ok := page["nextCursor"].(string); ok {
			return items, cursor
		}
		if cursor, ok := page["cursor"].(string); ok {
			return items, cursor
		}
		return items, ""
	default:
		p.logger.Warn().
			Str("path", path).
			Msg("Unrecognized page shape - treating as empty page")
		return nil, ""
	}
}
