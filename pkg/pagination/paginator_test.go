package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"testing"
)

// fakeClient serves canned pages keyed by cursor and records the
// requests it saw.
type fakeClient struct {
	pages    [][]any
	requests []url.Values
	err      error
}

func (f *fakeClient) Get(_ context.Context, _ string, params url.Values) (any, error) {
	f.requests = append(f.requests, params)
	if f.err != nil {
		return nil, f.err
	}

	idx := 0
	if cursor := params.Get("cursor"); cursor != "" {
		idx, _ = strconv.Atoi(cursor)
	}

	page := map[string]any{"data": f.pages[idx]}
	if idx+1 < len(f.pages) {
		page["nextCursor"] = strconv.Itoa(idx + 1)
	}
	return roundTrip(page), nil
}

// roundTrip forces the value through JSON so it matches what the real
// client hands back.
func roundTrip(v any) any {
	data, _ := json.Marshal(v)
	var out any
	_ = json.Unmarshal(data, &out)
	return out
}

func items(n, offset int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = fmt.Sprintf("item-%d", offset+i)
	}
	return out
}

func TestFetchAll_AutoPaginate(t *testing.T) {
	client := &fakeClient{pages: [][]any{items(2, 0), items(2, 2), items(1, 4)}}
	p := New(client)

	result, err := p.FetchAll(context.Background(), "/v1/workflows", Options{AutoPaginate: true})
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}

	if result.ItemsFetched != 5 {
		t.Errorf("ItemsFetched = %d, want 5", result.ItemsFetched)
	}
	if result.PagesFetched != 3 {
		t.Errorf("PagesFetched = %d, want 3", result.PagesFetched)
	}
	if result.NextCursor != "" {
		t.Errorf("NextCursor = %q, want empty (exhausted)", result.NextCursor)
	}

	// Items merge in fetch order with no re-sorting.
	for i := 0; i < 5; i++ {
		if result.Items[i] != fmt.Sprintf("item-%d", i) {
			t.Errorf("Items[%d] = %v, want item-%d", i, result.Items[i], i)
		}
	}
}

func TestFetchAll_MaxItemsTruncates(t *testing.T) {
	client := &fakeClient{pages: [][]any{items(2, 0), items(2, 2), items(1, 4)}}
	p := New(client)

	result, err := p.FetchAll(context.Background(), "/v1/workflows", Options{
		AutoPaginate: true,
		MaxItems:     3,
	})
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}

	if result.ItemsFetched != 3 {
		t.Errorf("ItemsFetched = %d, want exactly 3 (truncated)", result.ItemsFetched)
	}
	if result.PagesFetched != 2 {
		t.Errorf("PagesFetched = %d, want 2 (only pages consumed to reach the cap)", result.PagesFetched)
	}
	if result.NextCursor == "" {
		t.Error("NextCursor must be preserved so callers can detect truncation")
	}
}

func TestFetchAll_MaxItemsCrossedOnFinalPage(t *testing.T) {
	// The page that crosses the cap is also the last one, so the
	// exhaustion condition and the item cap fire on the same page.
	client := &fakeClient{pages: [][]any{items(2, 0), items(4, 2)}}
	p := New(client)

	result, err := p.FetchAll(context.Background(), "/v1/workflows", Options{
		AutoPaginate: true,
		MaxItems:     3,
	})
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}

	if result.ItemsFetched != 3 {
		t.Errorf("ItemsFetched = %d, want exactly 3 (truncated to MaxItems)", result.ItemsFetched)
	}
	if result.PagesFetched != 2 {
		t.Errorf("PagesFetched = %d, want 2", result.PagesFetched)
	}
	for i := 0; i < 3; i++ {
		if result.Items[i] != fmt.Sprintf("item-%d", i) {
			t.Errorf("Items[%d] = %v, want item-%d", i, result.Items[i], i)
		}
	}
	if result.NextCursor != "" {
		t.Errorf("NextCursor = %q, want empty (collection exhausted)", result.NextCursor)
	}
}

func TestFetchAll_MaxItemsSinglePage(t *testing.T) {
	client := &fakeClient{pages: [][]any{items(5, 0)}}
	p := New(client)

	result, err := p.FetchAll(context.Background(), "/v1/workflows", Options{MaxItems: 2})
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}

	if result.ItemsFetched != 2 {
		t.Errorf("ItemsFetched = %d, want 2 (cap binds in single-page mode too)", result.ItemsFetched)
	}
	if result.PagesFetched != 1 {
		t.Errorf("PagesFetched = %d, want 1", result.PagesFetched)
	}
}

func TestFetchAll_MaxPages(t *testing.T) {
	client := &fakeClient{pages: [][]any{items(2, 0), items(2, 2), items(2, 4)}}
	p := New(client)

	result, err := p.FetchAll(context.Background(), "/v1/workflows", Options{
		AutoPaginate: true,
		MaxPages:     2,
	})
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}

	if result.PagesFetched != 2 {
		t.Errorf("PagesFetched = %d, want 2", result.PagesFetched)
	}
	if result.ItemsFetched != 4 {
		t.Errorf("ItemsFetched = %d, want 4", result.ItemsFetched)
	}
	if result.NextCursor == "" {
		t.Error("NextCursor must be non-empty when iteration stopped at the page cap")
	}
}

func TestFetchAll_SinglePageMode(t *testing.T) {
	client := &fakeClient{pages: [][]any{items(2, 0), items(2, 2)}}
	p := New(client)

	// The same call repeated returns the same page and cursor.
	for i := 0; i < 3; i++ {
		result, err := p.FetchAll(context.Background(), "/v1/workflows", Options{})
		if err != nil {
			t.Fatalf("FetchAll failed: %v", err)
		}
		if result.PagesFetched != 1 {
			t.Errorf("PagesFetched = %d, want 1", result.PagesFetched)
		}
		if result.ItemsFetched != 2 {
			t.Errorf("ItemsFetched = %d, want 2", result.ItemsFetched)
		}
		if result.NextCursor != "1" {
			t.Errorf("NextCursor = %q, want 1 (not followed)", result.NextCursor)
		}
		if result.Items[0] != "item-0" {
			t.Errorf("Items[0] = %v, want item-0", result.Items[0])
		}
	}
}

func TestFetchAll_ResumesFromCursor(t *testing.T) {
	client := &fakeClient{pages: [][]any{items(2, 0), items(2, 2)}}
	p := New(client)

	result, err := p.FetchAll(context.Background(), "/v1/workflows", Options{Cursor: "1"})
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if result.Items[0] != "item-2" {
		t.Errorf("Items[0] = %v, want item-2", result.Items[0])
	}
	if result.NextCursor != "" {
		t.Errorf("NextCursor = %q, want empty", result.NextCursor)
	}
}

func TestFetchAll_LimitAndParamsForwarded(t *testing.T) {
	client := &fakeClient{pages: [][]any{items(1, 0)}}
	p := New(client)

	_, err := p.FetchAll(context.Background(), "/v1/workflows", Options{
		Limit:  25,
		Params: url.Values{"active": []string{"true"}},
	})
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}

	if len(client.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(client.requests))
	}
	params := client.requests[0]
	if params.Get("limit") != "25" {
		t.Errorf("limit = %q, want 25", params.Get("limit"))
	}
	if params.Get("active") != "true" {
		t.Errorf("active = %q, want true", params.Get("active"))
	}
	if params.Get("cursor") != "" {
		t.Errorf("cursor = %q, want unset on first page", params.Get("cursor"))
	}
}

func TestFetchAll_PropagatesClientError(t *testing.T) {
	clientErr := errors.New("unavailable")
	client := &fakeClient{err: clientErr}
	p := New(client)

	_, err := p.FetchAll(context.Background(), "/v1/workflows", Options{AutoPaginate: true})
	if !errors.Is(err, clientErr) {
		t.Errorf("error = %v, want the client error", err)
	}
}

// staticClient returns the same response for every request.
type staticClient struct {
	resp any
}

func (s *staticClient) Get(context.Context, string, url.Values) (any, error) {
	return s.resp, nil
}

func TestNormalizePage_Shapes(t *testing.T) {
	tests := []struct {
		name       string
		resp       any
		wantItems  int
		wantCursor string
	}{
		{"bare array is one exhausted page", roundTrip([]any{"a", "b"}), 2, ""},
		{"data with nextCursor", roundTrip(map[string]any{"data": []any{"a"}, "nextCursor": "tok"}), 1, "tok"},
		{"data with legacy cursor field", roundTrip(map[string]any{"data": []any{"a"}, "cursor": "tok2"}), 1, "tok2"},
		{"data without cursor", roundTrip(map[string]any{"data": []any{"a", "b", "c"}}), 3, ""},
		{"object without data array", roundTrip(map[string]any{"foo": 1}), 0, ""},
		{"scalar response", roundTrip(42), 0, ""},
		{"null response", nil, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(&staticClient{resp: tt.resp})
			result, err := p.FetchAll(context.Background(), "/v1/anything", Options{})
			if err != nil {
				t.Fatalf("FetchAll failed: %v", err)
			}
			if result.ItemsFetched != tt.wantItems {
				t.Errorf("ItemsFetched = %d, want %d", result.ItemsFetched, tt.wantItems)
			}
			if result.NextCursor != tt.wantCursor {
				t.Errorf("NextCursor = %q, want %q", result.NextCursor, tt.wantCursor)
			}
		})
	}
}
