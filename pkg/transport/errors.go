// Package transport holds the contract and request plumbing shared by the
// streaming HTTP and stateless JSON transports.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/spacegate/spacegate/pkg/logger"
)

// JSON-RPC error codes shared by every transport. The -32000 range is the
// implementation-defined server error space.
const (
	CodeInvalidParams      = -32602
	CodeMethodNotAllowed   = -32601
	CodeInternalError      = -32603
	CodeServerShuttingDown = -32000
	CodeSessionNotFound    = -32001
)

// Error messages paired with the codes above.
const (
	MsgInvalidParams      = "invalid_params"
	MsgMethodNotAllowed   = "method_not_allowed"
	MsgInternalError      = "internal_error"
	MsgServerShuttingDown = "server_shutting_down"
	MsgSessionNotFound    = "session_not_found"
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcErrorEnvelope struct {
	JSONRPC string   `json:"jsonrpc"`
	ID      any      `json:"id"`
	Error   rpcError `json:"error"`
}

// WriteError writes a JSON-RPC error envelope carrying the original request's
// id, or null when the request was a notification or unparseable.
func WriteError(w http.ResponseWriter, httpStatus, code int, message string, requestID any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	envelope := rpcErrorEnvelope{
		JSONRPC: "2.0",
		ID:      requestID,
		Error:   rpcError{Code: code, Message: message},
	}
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		logger.Debugf("failed to write error response: %v", err)
	}
}

// RequestID extracts the id field from a raw JSON-RPC request body so error
// envelopes can echo it. Returns nil for notifications and malformed bodies.
func RequestID(body []byte) any {
	var partial struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(body, &partial); err != nil {
		return nil
	}
	return partial.ID
}

// RequestMethod extracts the method field from a raw JSON-RPC request body.
func RequestMethod(body []byte) string {
	var partial struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &partial); err != nil {
		return ""
	}
	return partial.Method
}
