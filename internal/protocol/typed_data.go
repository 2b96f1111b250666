package protocol

import "encoding/json"

// TypedData is a value crossing the wire. Exactly one field is set.
type TypedData struct {
	String *string  `json:"string,omitempty"`
	JSON   *string  `json:"json,omitempty"`
	Bytes  []byte   `json:"bytes,omitempty"`
	Stream []byte   `json:"stream,omitempty"`
	HTTP   *RPCHTTP `json:"http,omitempty"`
	Int    *int64   `json:"int,omitempty"`
	Double *float64 `json:"double,omitempty"`
}

// typedDataJSON is the wire layout of TypedData. The byte arms are pointers
// so an empty but present value still encodes.
type typedDataJSON struct {
	String *string  `json:"string,omitempty"`
	JSON   *string  `json:"json,omitempty"`
	Bytes  *[]byte  `json:"bytes,omitempty"`
	Stream *[]byte  `json:"stream,omitempty"`
	HTTP   *RPCHTTP `json:"http,omitempty"`
	Int    *int64   `json:"int,omitempty"`
	Double *float64 `json:"double,omitempty"`
}

func (d TypedData) MarshalJSON() ([]byte, error) {
	w := typedDataJSON{
		String: d.String,
		JSON:   d.JSON,
		HTTP:   d.HTTP,
		Int:    d.Int,
		Double: d.Double,
	}
	if d.Bytes != nil {
		w.Bytes = &d.Bytes
	}
	if d.Stream != nil {
		w.Stream = &d.Stream
	}
	return json.Marshal(w)
}

func (d *TypedData) UnmarshalJSON(data []byte) error {
	var w typedDataJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = TypedData{
		String: w.String,
		JSON:   w.JSON,
		HTTP:   w.HTTP,
		Int:    w.Int,
		Double: w.Double,
	}
	if w.Bytes != nil {
		d.Bytes = present(*w.Bytes)
	}
	if w.Stream != nil {
		d.Stream = present(*w.Stream)
	}
	return nil
}

func present(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// RPCHTTP is the wire form of an HTTP request or response.
type RPCHTTP struct {
	Method     string            `json:"method,omitempty"`
	URL        string            `json:"url,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
	Query      map[string]string `json:"query,omitempty"`
	Body       *TypedData        `json:"body,omitempty"`
	StatusCode string            `json:"status_code,omitempty"`
}

// Kind names the field that is set, or "" for empty data.
func (d *TypedData) Kind() string {
	switch {
	case d == nil:
		return ""
	case d.String != nil:
		return "string"
	case d.JSON != nil:
		return "json"
	case d.Bytes != nil:
		return "bytes"
	case d.Stream != nil:
		return "stream"
	case d.HTTP != nil:
		return "http"
	case d.Int != nil:
		return "int"
	case d.Double != nil:
		return "double"
	default:
		return ""
	}
}

func StringData(s string) *TypedData { return &TypedData{String: &s} }

func JSONData(s string) *TypedData { return &TypedData{JSON: &s} }

func BytesData(b []byte) *TypedData { return &TypedData{Bytes: present(b)} }

func IntData(i int64) *TypedData { return &TypedData{Int: &i} }

func DoubleData(f float64) *TypedData { return &TypedData{Double: &f} }

func HTTPData(h *RPCHTTP) *TypedData { return &TypedData{HTTP: h} }
