package client

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Request is one logical call against the backend. Query parameters with
// empty values are dropped before both key construction and transmission,
// so `{page: ""}` and no page at all are the same request.
type Request struct {
	Method string
	Path   string
	Query  map[string]string
	Header http.Header
	Body   any
}

// Get builds a read request.
func Get(path string, query map[string]string) Request {
	return Request{Method: http.MethodGet, Path: path, Query: query}
}

// Post builds a write request with a JSON body.
func Post(path string, body any) Request {
	return Request{Method: http.MethodPost, Path: path, Body: body}
}

// Put builds an update request with a JSON body.
func Put(path string, body any) Request {
	return Request{Method: http.MethodPut, Path: path, Body: body}
}

// Delete builds a deletion request.
func Delete(path string) Request {
	return Request{Method: http.MethodDelete, Path: path}
}

// cleanQuery returns the query parameters minus empty values, with keys
// sorted for deterministic encoding.
func (r Request) cleanQuery() []string {
	keys := make([]string, 0, len(r.Query))
	for k, v := range r.Query {
		if k == "" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// encodeQuery renders the cleaned parameters as a URL query string.
func (r Request) encodeQuery() string {
	values := url.Values{}
	for _, k := range r.cleanQuery() {
		values.Set(k, r.Query[k])
	}
	return values.Encode()
}

// cacheKey is the normalized identity of a GET: method, base URL, path and
// sorted non-empty parameters, digested with xxhash.
func (r Request) cacheKey(base string) string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte(' ')
	b.WriteString(base)
	b.WriteString(r.Path)
	b.WriteByte('?')
	b.WriteString(r.encodeQuery())
	return fmt.Sprintf("%016x", xxhash.Sum64String(b.String()))
}
