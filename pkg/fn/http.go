package fn

import (
	"encoding/json"
	"fmt"
	"strings"
)

// HTTPRequest is the value bound to an "httpTrigger" parameter.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Params  map[string]string
	Query   map[string]string
	Body    []byte
}

// Header returns the value of the named header, ignoring case.
func (r *HTTPRequest) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// JSON decodes the request body into v.
func (r *HTTPRequest) JSON(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("request body is empty")
	}
	return json.Unmarshal(r.Body, v)
}

// HTTPResponse is returned through an "http" output binding.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// NewHTTPResponse creates a response with a text body.
func NewHTTPResponse(status int, body string) *HTTPResponse {
	return &HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{},
		Body:       []byte(body),
	}
}

// JSONResponse creates a response with v encoded as its JSON body.
func JSONResponse(status int, v any) (*HTTPResponse, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding response body: %w", err)
	}
	return &HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}, nil
}
