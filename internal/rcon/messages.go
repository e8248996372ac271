package rcon

import (
	"encoding/json"
	"fmt"
)

// Request is one command sent to the server. The outer frame is always
// flat JSON with string fields; structured bodies are serialized into
// ContentBody beforehand.
type Request struct {
	AuthToken   string `json:"authToken"`
	Version     string `json:"version"`
	Name        string `json:"name"`
	ContentBody string `json:"contentBody"`
}

// NewRequest creates a request with a raw string body.
func NewRequest(name, contentBody string) Request {
	return Request{
		Version:     "2",
		Name:        name,
		ContentBody: contentBody,
	}
}

// NewRequestJSON creates a request whose body is the JSON encoding of v.
func NewRequestJSON(name string, v any) (Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Request{}, fmt.Errorf("encoding %s body: %w", name, err)
	}
	return NewRequest(name, string(body)), nil
}

// Response is the server's answer to one request.
type Response struct {
	StatusCode    int    `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
	Version       int    `json:"version"`
	Name          string `json:"name"`
	ContentBody   string `json:"contentBody"`
}

// ok returns nil when the status code is 200, otherwise failErr.
func (r Response) ok(failErr error) error {
	if r.StatusCode == 200 {
		return nil
	}
	return failErr
}

// decodeResponse parses a sanitized frame payload into a Response.
// A non-string contentBody is a protocol violation.
func decodeResponse(payload string) (Response, error) {
	var raw struct {
		StatusCode    int             `json:"statusCode"`
		StatusMessage string          `json:"statusMessage"`
		Version       int             `json:"version"`
		Name          string          `json:"name"`
		ContentBody   json.RawMessage `json:"contentBody"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Response{}, invalidData("response frame is not json: %v", err)
	}

	resp := Response{
		StatusCode:    raw.StatusCode,
		StatusMessage: raw.StatusMessage,
		Version:       raw.Version,
		Name:          raw.Name,
	}
	if len(raw.ContentBody) > 0 {
		if err := json.Unmarshal(raw.ContentBody, &resp.ContentBody); err != nil {
			return Response{}, invalidData("content body is not a string")
		}
	}
	return resp, nil
}
