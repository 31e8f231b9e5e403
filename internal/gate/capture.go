// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package gate

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

// errBodyTooLarge marks a body that blew through MaxBodyBytes. It is
// the one capture failure that maps to a straight 400 instead of the
// fail-open/fail-closed fault path.
var errBodyTooLarge = errors.New("request body exceeds the configured maximum")

// requestRoots holds the three structures one validation pass runs
// over, plus the buffered body bytes for downstream restoration.
type requestRoots struct {
	query  any
	params any
	body   any

	// raw is the buffered body; nil when the request had none.
	raw []byte

	// bodyDecoded is true when raw held JSON that decoded into the
	// body root. Only decoded bodies are re-serialized after
	// sanitization.
	bodyDecoded bool

	// per-root counts of string leaves the sanitizer rewrote; a
	// root with zero rewrites is not written back.
	queryRewrites int
	paramRewrites int
	bodyRewrites  int
}

// capture buffers the request roots. The body is read through
// MaxBytesReader and re-wrapped with a fresh reader so downstream
// handlers can read it regardless of the gate's verdict. Non-JSON and
// empty bodies validate as a nil body root and pass through untouched.
func (g *Gate) capture(w http.ResponseWriter, r *http.Request) (*requestRoots, error) {
	roots := &requestRoots{
		query:  queryRoot(r.URL.Query()),
		params: paramsRoot(r),
	}

	if r.Body == nil || r.Body == http.NoBody {
		return roots, nil
	}

	limited := http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes)
	raw, err := io.ReadAll(limited)
	if err != nil {
		r.Body = io.NopCloser(bytes.NewReader(nil))

		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errBodyTooLarge
		}
		return nil, err
	}

	roots.raw = raw
	r.Body = io.NopCloser(bytes.NewReader(raw))

	if len(raw) == 0 {
		return roots, nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		roots.body = decoded
		roots.bodyDecoded = true
	}

	return roots, nil
}

// writeBack pushes sanitized query and route-param values onto the
// request so downstream handlers observe escaped forms, mirroring the
// body re-serialization. Roots the sanitizer left untouched keep
// their original encoding.
func (roots *requestRoots) writeBack(r *http.Request) {
	if roots.queryRewrites > 0 {
		if m, ok := roots.query.(map[string]any); ok {
			values := make(url.Values, len(m))
			for key, v := range m {
				switch val := v.(type) {
				case string:
					values[key] = []string{val}
				case []string:
					values[key] = val
				}
			}
			r.URL.RawQuery = values.Encode()
		}
	}

	if roots.paramRewrites > 0 {
		if m, ok := roots.params.(map[string]string); ok {
			rctx := chi.RouteContext(r.Context())
			if rctx == nil {
				return
			}
			for i, key := range rctx.URLParams.Keys {
				if v, ok := m[key]; ok && i < len(rctx.URLParams.Values) {
					rctx.URLParams.Values[i] = v
				}
			}
		}
	}
}

// queryRoot converts query values to a walkable map. Single-valued
// keys become plain strings so finding paths read "query.q" rather
// than "query.q[0]".
func queryRoot(values url.Values) any {
	if len(values) == 0 {
		return nil
	}

	m := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 1 {
			m[key] = vals[0]
			continue
		}
		m[key] = append([]string(nil), vals...)
	}
	return m
}

// paramsRoot flattens chi route parameters. Returns nil when the gate
// runs before routing has resolved any, or when only the wildcard
// placeholder is present.
func paramsRoot(r *http.Request) any {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || len(rctx.URLParams.Keys) == 0 {
		return nil
	}

	m := make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		if key == "*" || i >= len(rctx.URLParams.Values) {
			continue
		}
		m[key] = rctx.URLParams.Values[i]
	}

	if len(m) == 0 {
		return nil
	}
	return m
}
