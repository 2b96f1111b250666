package bindings

import (
	"context"
	"io"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/watzon/alyx-worker/internal/protocol"
	"github.com/watzon/alyx-worker/pkg/fn"
)

func TestDefault_Names(t *testing.T) {
	r := Default()
	require.Equal(t, []string{
		"blob", "blobTrigger", "generic", "http", "httpTrigger",
		"queue", "queueTrigger", "timerTrigger",
	}, r.Names())

	_, ok := r.Lookup("yolo")
	require.False(t, ok)
}

func TestRegistry_Register(t *testing.T) {
	r := Default()
	r.Register(&Descriptor{Type: "eventGridTrigger", Inputs: []reflect.Type{stringType}})

	b, ok := r.Lookup("eventGridTrigger")
	require.True(t, ok)
	require.True(t, b.CheckInput(stringType))
	require.False(t, b.CheckOutput(stringType))
}

func TestChecks(t *testing.T) {
	r := Default()
	intType := reflect.TypeOf(0)
	ctxType := reflect.TypeOf((*context.Context)(nil)).Elem()
	readerType := reflect.TypeOf((*io.Reader)(nil)).Elem()

	tests := []struct {
		binding string
		typ     reflect.Type
		input   bool
		output  bool
	}{
		{"httpTrigger", httpRequestType, true, false},
		{"httpTrigger", intType, false, false},
		{"http", httpResponseType, false, true},
		{"http", stringType, false, true},
		{"http", httpRequestType, false, false},
		{"generic", stringType, true, true},
		{"generic", bytesType, true, true},
		{"generic", intType, false, false},
		{"queueTrigger", queueMessageType, true, false},
		{"queue", queueMessageType, false, true},
		{"blobTrigger", inputStreamType, true, false},
		{"blobTrigger", readerType, true, false},
		{"blob", bytesType, false, true},
		{"timerTrigger", timerRequestType, true, false},
		{"timerTrigger", ctxType, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.binding+"/"+tt.typ.String(), func(t *testing.T) {
			b, ok := r.Lookup(tt.binding)
			require.True(t, ok)
			require.Equal(t, tt.input, b.CheckInput(tt.typ), "CheckInput")
			require.Equal(t, tt.output, b.CheckOutput(tt.typ), "CheckOutput")
		})
	}
}

func TestHTTPTrigger_Decode(t *testing.T) {
	b, _ := Default().Lookup("httpTrigger")

	data := protocol.HTTPData(&protocol.RPCHTTP{
		Method:  "POST",
		URL:     "http://localhost/api/hello",
		Headers: map[string]string{"Content-Type": "application/json"},
		Query:   map[string]string{"name": "world"},
		Body:    protocol.StringData(`{"a":1}`),
	})

	v, err := b.Decode(data, nil, httpRequestType)
	require.NoError(t, err)

	req := v.Interface().(*fn.HTTPRequest)
	require.Equal(t, "POST", req.Method)
	require.Equal(t, "world", req.Query["name"])
	require.Equal(t, `{"a":1}`, string(req.Body))

	_, err = b.Decode(protocol.StringData("nope"), nil, httpRequestType)
	require.Error(t, err)
}

func TestHTTP_Encode(t *testing.T) {
	b, _ := Default().Lookup("http")

	data, err := b.Encode("OK")
	require.NoError(t, err)
	require.Equal(t, "OK", *data.String)

	data, err = b.Encode(&fn.HTTPResponse{Body: []byte("FOO")})
	require.NoError(t, err)
	require.Equal(t, "200", data.HTTP.StatusCode)
	require.Equal(t, []byte("FOO"), data.HTTP.Body.Bytes)

	data, err = b.Encode(nil)
	require.NoError(t, err)
	require.Nil(t, data)

	_, err = b.Encode(42)
	require.Error(t, err)
}

func TestGeneric_RoundTrip(t *testing.T) {
	b, _ := Default().Lookup("generic")

	v, err := b.Decode(protocol.StringData("hello"), nil, bytesType)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), v.Interface())

	v, err = b.Decode(protocol.BytesData([]byte("raw")), nil, stringType)
	require.NoError(t, err)
	require.Equal(t, "raw", v.Interface())

	v, err = b.Decode(nil, nil, stringType)
	require.NoError(t, err)
	require.Equal(t, "", v.Interface())

	_, err = b.Decode(protocol.IntData(3), nil, stringType)
	require.Error(t, err)

	data, err := b.Encode(map[string]int{"a": 1})
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, *data.JSON)

	data, err = b.Encode(int32(7))
	require.NoError(t, err)
	require.Equal(t, int64(7), *data.Int)
}

func TestQueueTrigger_DecodeMetadata(t *testing.T) {
	b, _ := Default().Lookup("queueTrigger")

	meta := map[string]*protocol.TypedData{
		"Id":            protocol.StringData("msg-1"),
		"DequeueCount":  protocol.IntData(2),
		"InsertionTime": protocol.JSONData(`"2024-01-02T03:04:05Z"`),
	}

	v, err := b.Decode(protocol.StringData("payload"), meta, queueMessageType)
	require.NoError(t, err)

	msg := v.Interface().(*fn.QueueMessage)
	require.Equal(t, "msg-1", msg.ID)
	require.Equal(t, int64(2), msg.DequeueCount)
	require.Equal(t, "payload", string(msg.Body))
	require.Equal(t, 2024, msg.InsertionTime.Year())
}

func TestTimerTrigger_Decode(t *testing.T) {
	b, _ := Default().Lookup("timerTrigger")

	v, err := b.Decode(protocol.JSONData(`{"IsPastDue":true}`), nil, timerRequestType)
	require.NoError(t, err)
	require.True(t, v.Interface().(*fn.TimerRequest).PastDue)
}

func TestBlobTrigger_Decode(t *testing.T) {
	b, _ := Default().Lookup("blobTrigger")

	v, err := b.Decode(protocol.BytesData([]byte("blob data")), map[string]*protocol.TypedData{
		"Name": protocol.StringData("file.txt"),
	}, inputStreamType)
	require.NoError(t, err)

	s := v.Interface().(*fn.InputStream)
	require.Equal(t, "file.txt", s.Name)
	require.Equal(t, int64(9), s.Length)

	data, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Equal(t, "blob data", string(data))
}

func TestDescriptor_DirectionOnly(t *testing.T) {
	r := Default()

	out, _ := r.Lookup("http")
	_, err := out.Decode(protocol.StringData("x"), nil, stringType)
	require.Error(t, err)

	in, _ := r.Lookup("httpTrigger")
	_, err = in.Encode("x")
	require.Error(t, err)
}
