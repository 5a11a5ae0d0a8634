package client

import (
	"encoding/json"
	"net/http"

	"github.com/flowkeep/apiclient/apierr"
)

// Response is a materialized backend reply. Data holds the payload after
// envelope unwrapping: the backend answers either with a bare payload, or
// `{"data": <payload>}`, or `{"error": <body>}`.
type Response struct {
	Status int
	Header http.Header
	Data   json.RawMessage
}

// Decode unmarshals the payload into v.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return apierr.ErrMalformedBody
	}
	return json.Unmarshal(r.Data, v)
}

// clone returns a copy safe to hand to a caller. Cached entries are shared
// between callers, so mutations on a returned Response must never reach
// them; the payload bytes stay shared because callers treat Data as
// read-only input to Decode.
func (r *Response) clone() *Response {
	cp := *r
	cp.Header = r.Header.Clone()
	return &cp
}

type responseEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apierr.Body    `json:"error"`
}

// unwrap extracts the payload from a 2xx body.
func unwrap(body []byte) json.RawMessage {
	var env responseEnvelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 {
		return env.Data
	}
	return body
}

// errorFromBody builds the typed error for a failed response, keeping the
// best available information when the envelope is unrecognisable.
func errorFromBody(status int, body []byte) *apierr.Error {
	var env responseEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		return apierr.New(status, env.Error)
	}
	// Some endpoints return the error body without the envelope.
	var bare apierr.Body
	if err := json.Unmarshal(body, &bare); err == nil && bare.Code != "" {
		return apierr.New(status, &bare)
	}
	e := apierr.New(status, nil)
	if len(body) > 0 {
		e.Message = string(body)
	}
	return e
}
