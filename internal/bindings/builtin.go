package bindings

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/watzon/alyx-worker/internal/protocol"
	"github.com/watzon/alyx-worker/pkg/fn"
)

var (
	stringType       = reflect.TypeOf("")
	bytesType        = reflect.TypeOf([]byte(nil))
	httpRequestType  = reflect.TypeOf((*fn.HTTPRequest)(nil))
	httpResponseType = reflect.TypeOf((*fn.HTTPResponse)(nil))
	timerRequestType = reflect.TypeOf((*fn.TimerRequest)(nil))
	queueMessageType = reflect.TypeOf((*fn.QueueMessage)(nil))
	inputStreamType  = reflect.TypeOf((*fn.InputStream)(nil))
)

func genericBinding() Binding {
	return &Descriptor{
		Type:       GenericType,
		Inputs:     []reflect.Type{stringType, bytesType},
		Outputs:    []reflect.Type{stringType, bytesType},
		DecodeFunc: decodeGeneric,
		EncodeFunc: encodeGeneric,
	}
}

func httpTriggerBinding() Binding {
	return &Descriptor{
		Type:       "httpTrigger",
		Inputs:     []reflect.Type{httpRequestType},
		DecodeFunc: decodeHTTPRequest,
	}
}

func httpBinding() Binding {
	return &Descriptor{
		Type:       "http",
		Outputs:    []reflect.Type{httpResponseType, stringType},
		EncodeFunc: encodeHTTPResponse,
	}
}

func timerTriggerBinding() Binding {
	return &Descriptor{
		Type:       "timerTrigger",
		Inputs:     []reflect.Type{timerRequestType},
		DecodeFunc: decodeTimerRequest,
	}
}

func queueTriggerBinding() Binding {
	return &Descriptor{
		Type:       "queueTrigger",
		Inputs:     []reflect.Type{queueMessageType},
		DecodeFunc: decodeQueueMessage,
	}
}

func queueBinding() Binding {
	return &Descriptor{
		Type:       "queue",
		Outputs:    []reflect.Type{queueMessageType, stringType, bytesType},
		EncodeFunc: encodeQueueMessage,
	}
}

func blobTriggerBinding() Binding {
	return &Descriptor{
		Type:       "blobTrigger",
		Inputs:     []reflect.Type{inputStreamType},
		DecodeFunc: decodeInputStream,
	}
}

func blobBinding() Binding {
	return &Descriptor{
		Type:       "blob",
		Inputs:     []reflect.Type{inputStreamType},
		Outputs:    []reflect.Type{stringType, bytesType},
		DecodeFunc: decodeInputStream,
		EncodeFunc: encodeGeneric,
	}
}

func decodeGeneric(data *protocol.TypedData, _ map[string]*protocol.TypedData) (any, error) {
	switch data.Kind() {
	case "":
		return nil, nil
	case "string":
		return *data.String, nil
	case "json":
		return *data.JSON, nil
	case "bytes":
		return data.Bytes, nil
	case "stream":
		return data.Stream, nil
	case "int":
		return *data.Int, nil
	case "double":
		return *data.Double, nil
	default:
		return nil, fmt.Errorf("unsupported data kind %q", data.Kind())
	}
}

func encodeGeneric(v any) (*protocol.TypedData, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return protocol.StringData(v), nil
	case []byte:
		return protocol.BytesData(v), nil
	case json.RawMessage:
		return protocol.JSONData(string(v)), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return protocol.IntData(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return protocol.IntData(int64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return protocol.DoubleData(rv.Float()), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return protocol.JSONData(string(data)), nil
}

func decodeHTTPRequest(data *protocol.TypedData, _ map[string]*protocol.TypedData) (any, error) {
	if data.Kind() != "http" {
		return nil, fmt.Errorf("expected http data, got %q", data.Kind())
	}

	h := data.HTTP
	body, err := dataBytes(h.Body)
	if err != nil {
		return nil, fmt.Errorf("request body: %w", err)
	}

	return &fn.HTTPRequest{
		Method:  h.Method,
		URL:     h.URL,
		Headers: copyMap(h.Headers),
		Params:  copyMap(h.Params),
		Query:   copyMap(h.Query),
		Body:    body,
	}, nil
}

func encodeHTTPResponse(v any) (*protocol.TypedData, error) {
	switch r := v.(type) {
	case nil:
		return nil, nil
	case string:
		return protocol.StringData(r), nil
	case *fn.HTTPResponse:
		if r == nil {
			return nil, nil
		}
		status := r.StatusCode
		if status == 0 {
			status = 200
		}
		return protocol.HTTPData(&protocol.RPCHTTP{
			StatusCode: strconv.Itoa(status),
			Headers:    copyMap(r.Headers),
			Body:       protocol.BytesData(r.Body),
		}), nil
	default:
		return nil, fmt.Errorf("unexpected value of type %T", v)
	}
}

// timerPayload is the JSON document the host sends for timer triggers.
type timerPayload struct {
	IsPastDue bool `json:"IsPastDue"`
}

func decodeTimerRequest(data *protocol.TypedData, _ map[string]*protocol.TypedData) (any, error) {
	if data.Kind() != "json" {
		return nil, fmt.Errorf("expected json data, got %q", data.Kind())
	}

	var p timerPayload
	if err := json.Unmarshal([]byte(*data.JSON), &p); err != nil {
		return nil, err
	}
	return &fn.TimerRequest{PastDue: p.IsPastDue}, nil
}

func decodeQueueMessage(data *protocol.TypedData, meta map[string]*protocol.TypedData) (any, error) {
	body, err := dataBytes(data)
	if err != nil {
		return nil, err
	}

	msg := &fn.QueueMessage{
		ID:              metaString(meta, "Id"),
		Body:            body,
		PopReceipt:      metaString(meta, "PopReceipt"),
		DequeueCount:    metaInt(meta, "DequeueCount"),
		InsertionTime:   metaTime(meta, "InsertionTime"),
		ExpirationTime:  metaTime(meta, "ExpirationTime"),
		NextVisibleTime: metaTime(meta, "NextVisibleTime"),
	}
	return msg, nil
}

func encodeQueueMessage(v any) (*protocol.TypedData, error) {
	switch m := v.(type) {
	case *fn.QueueMessage:
		if m == nil {
			return nil, nil
		}
		return protocol.StringData(string(m.Body)), nil
	default:
		return encodeGeneric(v)
	}
}

func decodeInputStream(data *protocol.TypedData, meta map[string]*protocol.TypedData) (any, error) {
	body, err := dataBytes(data)
	if err != nil {
		return nil, err
	}
	return fn.NewInputStream(metaString(meta, "Name"), metaString(meta, "Uri"), body), nil
}

func dataBytes(data *protocol.TypedData) ([]byte, error) {
	switch data.Kind() {
	case "":
		return nil, nil
	case "string":
		return []byte(*data.String), nil
	case "json":
		return []byte(*data.JSON), nil
	case "bytes":
		return data.Bytes, nil
	case "stream":
		return data.Stream, nil
	default:
		return nil, fmt.Errorf("unsupported data kind %q", data.Kind())
	}
}

func metaString(meta map[string]*protocol.TypedData, key string) string {
	d := meta[key]
	switch d.Kind() {
	case "string":
		return *d.String
	case "json":
		var s string
		if err := json.Unmarshal([]byte(*d.JSON), &s); err == nil {
			return s
		}
		return *d.JSON
	}
	return ""
}

func metaInt(meta map[string]*protocol.TypedData, key string) int64 {
	d := meta[key]
	switch d.Kind() {
	case "int":
		return *d.Int
	case "string", "json":
		n, _ := strconv.ParseInt(metaString(meta, key), 10, 64)
		return n
	}
	return 0
}

func metaTime(meta map[string]*protocol.TypedData, key string) time.Time {
	s := metaString(meta, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
