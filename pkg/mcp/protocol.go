package mcp

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC 2.0 wire types.

const jsonRPCVersion = "2.0"

// Request is a JSON-RPC 2.0 request. A request without an ID is a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error is set.
// A nil ID is serialized as null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// MarshalJSON emits "result" on every success response, null included, and
// omits it when Error is set.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      json.RawMessage `json:"id"`
			Error   *RPCError       `json:"error"`
		}{r.JSONRPC, r.ID, r.Error})
	}
	return json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  any             `json:"result"`
	}{r.JSONRPC, r.ID, r.Result})
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// NewResponse builds a success response.
func NewResponse(id json.RawMessage, result any) Response {
	return Response{JSONRPC: jsonRPCVersion, ID: id, Result: result}
}

// NewErrorResponse builds an error response. data may be nil.
func NewErrorResponse(id json.RawMessage, code int, message string, data any) Response {
	return Response{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	}
}

// ParseError reports a line that is not valid JSON. The id is always null.
func ParseError(data any) Response {
	return NewErrorResponse(nil, CodeParseError, "parse error", data)
}

// InvalidRequest reports valid JSON that is not a request object.
func InvalidRequest(id json.RawMessage, data any) Response {
	return NewErrorResponse(id, CodeInvalidRequest, "invalid request", data)
}

// MethodNotFound reports an unknown protocol method.
func MethodNotFound(id json.RawMessage, method string) Response {
	return NewErrorResponse(id, CodeMethodNotFound, fmt.Sprintf("method not found: %s", method), nil)
}

// InvalidParams reports malformed protocol-level parameters.
func InvalidParams(id json.RawMessage, message string) Response {
	return NewErrorResponse(id, CodeInvalidParams, message, nil)
}

// InternalError reports an unexpected server fault.
func InternalError(id json.RawMessage, message string) Response {
	return NewErrorResponse(id, CodeInternalError, message, nil)
}

// MCP protocol types.

// InitializeResult is the response to an initialize request.
type InitializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ServerInfo `json:"serverInfo"`
	Capabilities    any        `json:"capabilities"`
}

// ServerInfo identifies the MCP server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolDefinition describes a tool exposed via MCP.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// NewToolDefinition builds a tool definition.
func NewToolDefinition(name, description string, schema any) ToolDefinition {
	return ToolDefinition{Name: name, Description: description, InputSchema: schema}
}

// ToolsListResult is the response to tools/list.
type ToolsListResult struct {
	Tools []ToolDefinition `json:"tools"`
}

// ToolCallParams is the params for tools/call.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolCallResult is the response to tools/call. IsError is always serialized.
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

// ContentBlock is a text content block in a tool response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextResult wraps text into a successful tool result.
func TextResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

// ErrorResult wraps message into an error-flagged tool result.
func ErrorResult(message string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: message}},
		IsError: true,
	}
}
