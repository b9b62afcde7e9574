package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

type rawBodyKey struct{}

// captureBody keeps the raw request body in the context so handlers can tell an absent
// field from an explicit null, which the decoded input hides.
func captureBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "unreadable body", nil))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), rawBodyKey{}, raw)))
	})
}

func bodyBytes(ctx context.Context) []byte {
	raw, _ := ctx.Value(rawBodyKey{}).([]byte)
	return raw
}

// rawBodyMap returns the top-level fields of a JSON object body, empty for anything else.
func rawBodyMap(ctx context.Context) map[string]json.RawMessage {
	fields := map[string]json.RawMessage{}
	if raw := bodyBytes(ctx); len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return map[string]json.RawMessage{}
		}
	}
	return fields
}

func isNullRaw(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
