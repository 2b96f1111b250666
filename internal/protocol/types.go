// Package protocol defines the messages exchanged between the worker and its host.
package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType selects the payload carried by a Message.
type MessageType string

const (
	MessageTypeStartStream          MessageType = "start_stream"
	MessageTypeWorkerInitRequest    MessageType = "worker_init_request"
	MessageTypeWorkerInitResponse   MessageType = "worker_init_response"
	MessageTypeFunctionLoadRequest  MessageType = "function_load_request"
	MessageTypeFunctionLoadResponse MessageType = "function_load_response"
	MessageTypeInvocationRequest    MessageType = "invocation_request"
	MessageTypeInvocationResponse   MessageType = "invocation_response"
	MessageTypeRPCLog               MessageType = "rpc_log"
)

// Message is the envelope for every frame on the stream.
type Message struct {
	RequestID string          `json:"request_id,omitempty"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewMessage encodes payload into a Message of the given type.
func NewMessage(typ MessageType, requestID string, payload any) (*Message, error) {
	msg := &Message{RequestID: requestID, Type: typ}
	if payload == nil {
		return msg, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", typ, err)
	}
	msg.Payload = data
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", m.Type, err)
	}
	return nil
}

// StartStream is the first message the worker sends.
type StartStream struct {
	WorkerID string `json:"worker_id"`
}

// WorkerInitRequest is sent once by the host after the stream starts.
type WorkerInitRequest struct {
	HostVersion          string            `json:"host_version,omitempty"`
	Capabilities         map[string]string `json:"capabilities,omitempty"`
	FunctionAppDirectory string            `json:"function_app_directory,omitempty"`
}

// WorkerInitResponse acknowledges WorkerInitRequest.
type WorkerInitResponse struct {
	WorkerVersion string            `json:"worker_version"`
	Capabilities  map[string]string `json:"capabilities,omitempty"`
	Result        StatusResult      `json:"result"`
}

// BindingDirection is the wire form of a binding's direction.
type BindingDirection string

const (
	DirectionIn    BindingDirection = "in"
	DirectionOut   BindingDirection = "out"
	DirectionInOut BindingDirection = "inout"
)

// BindingInfo is one entry of a function's bindings list.
type BindingInfo struct {
	Name      string           `json:"name"`
	Type      string           `json:"type"`
	Direction BindingDirection `json:"direction"`
}

// FunctionMetadata describes a function as the host sees it.
type FunctionMetadata struct {
	Name       string        `json:"name"`
	Directory  string        `json:"directory"`
	ScriptFile string        `json:"script_file"`
	EntryPoint string        `json:"entry_point"`
	Bindings   []BindingInfo `json:"bindings"`
}

// FunctionLoadRequest asks the worker to load one function.
type FunctionLoadRequest struct {
	FunctionID string           `json:"function_id"`
	Metadata   FunctionMetadata `json:"metadata"`
}

// FunctionLoadResponse reports the outcome of a FunctionLoadRequest.
type FunctionLoadResponse struct {
	FunctionID string       `json:"function_id"`
	Result     StatusResult `json:"result"`
}

// ParameterBinding pairs a binding name with its data.
type ParameterBinding struct {
	Name string     `json:"name"`
	Data *TypedData `json:"data,omitempty"`
}

// InvocationRequest asks the worker to run a loaded function.
type InvocationRequest struct {
	InvocationID    string                `json:"invocation_id"`
	FunctionID      string                `json:"function_id"`
	InputData       []ParameterBinding    `json:"input_data,omitempty"`
	TriggerMetadata map[string]*TypedData `json:"trigger_metadata,omitempty"`
}

// InvocationResponse reports the outcome of an InvocationRequest.
type InvocationResponse struct {
	InvocationID string             `json:"invocation_id"`
	Result       StatusResult       `json:"result"`
	ReturnValue  *TypedData         `json:"return_value,omitempty"`
	OutputData   []ParameterBinding `json:"output_data,omitempty"`
}

// LogLevel is the severity of an RPCLog.
type LogLevel string

const (
	LogLevelTrace       LogLevel = "Trace"
	LogLevelDebug       LogLevel = "Debug"
	LogLevelInformation LogLevel = "Information"
	LogLevelWarning     LogLevel = "Warning"
	LogLevelError       LogLevel = "Error"
	LogLevelCritical    LogLevel = "Critical"
)

// LogCategory distinguishes user output from worker diagnostics.
type LogCategory string

const (
	LogCategoryUser   LogCategory = "User"
	LogCategorySystem LogCategory = "System"
)

// RPCLog carries one log record to the host.
type RPCLog struct {
	InvocationID string      `json:"invocation_id,omitempty"`
	Category     LogCategory `json:"category"`
	Level        LogLevel    `json:"level"`
	Message      string      `json:"message"`
	Sequence     int64       `json:"sequence,omitempty"`
}
