package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// UpstreamError is an error-shaped payload returned where a list was expected.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string { return e.Message }

// PageFunc fetches one 1-based page.
type PageFunc[T any] func(ctx context.Context, page int) ([]T, error)

// Paginate fetches successive pages until one comes back empty, the limit is
// reached, or fetch fails. Items gathered before a failure are returned with
// the error.
func Paginate[T any](ctx context.Context, limit PageLimit, fetch PageFunc[T]) ([]T, error) {
	var items []T
	for page := 1; limit.Allows(page); page++ {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		batch, err := fetch(ctx, page)
		if err != nil {
			return items, err
		}
		if len(batch) == 0 {
			break
		}
		items = append(items, batch...)
	}
	return items, nil
}

// DecodeList decodes a JSON array; null is an empty list. Any other payload
// becomes an UpstreamError carrying its "message" field, or fallback when it
// has none.
func DecodeList[T any](body []byte, fallback string) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(trimmed, &payload); err != nil || payload.Message == "" {
			return nil, &UpstreamError{Message: fallback}
		}
		return nil, &UpstreamError{Message: payload.Message}
	}

	var items []T
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decoding list: %w", err)
	}
	return items, nil
}
