// Package rpc exposes the daemon over JSON-RPC 2.0 with Content-Length
// framing on a local socket.
package rpc

import (
	"encoding/json"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/dxta-dev/clankers/internal/logging"
	"github.com/dxta-dev/clankers/internal/storage"
)

// SchemaVersion is the only request schema the dispatcher accepts.
const SchemaVersion = "v1"

// Method names.
const (
	MethodHealth                = "health"
	MethodEnsureDB              = "ensureDb"
	MethodGetDBPath             = "getDbPath"
	MethodUpsertSession         = "upsertSession"
	MethodUpsertMessage         = "upsertMessage"
	MethodUpsertTool            = "upsertTool"
	MethodUpsertSessionError    = "upsertSessionError"
	MethodUpsertCompactionEvent = "upsertCompactionEvent"
	MethodLogWrite              = "log.write"
)

// codeInvalidPayload is the application-level code for a structurally
// valid request whose payload fails field validation. The error data
// names the offending field.
const codeInvalidPayload = 4001

// Error kind tags carried in the error data so clients can match without
// parsing messages.
const (
	KindStorageError    = "StorageError"
	KindQueryNotAllowed = "QueryNotAllowed"
)

// ClientInfo identifies the calling plugin or CLI.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RequestEnvelope is embedded in every method's params except health,
// ensureDb and getDbPath.
type RequestEnvelope struct {
	SchemaVersion string     `json:"schemaVersion"`
	Client        ClientInfo `json:"client"`
}

type HealthResult struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
}

type EnsureDBResult struct {
	DBPath  string `json:"dbPath"`
	Created bool   `json:"created"`
}

type GetDBPathResult struct {
	DBPath string `json:"dbPath"`
}

type OkResult struct {
	OK bool `json:"ok"`
}

type UpsertSessionParams struct {
	RequestEnvelope
	Session storage.Session `json:"session"`
}

type UpsertMessageParams struct {
	RequestEnvelope
	Message storage.Message `json:"message"`
}

type UpsertToolParams struct {
	RequestEnvelope
	Tool storage.Tool `json:"tool"`
}

type UpsertSessionErrorParams struct {
	RequestEnvelope
	SessionError storage.SessionError `json:"sessionError"`
}

type UpsertCompactionEventParams struct {
	RequestEnvelope
	CompactionEvent storage.CompactionEvent `json:"compactionEvent"`
}

type LogWriteParams struct {
	RequestEnvelope
	Entry logging.Entry `json:"entry"`
}

func errMissingParams() *jsonrpc2.Error {
	return &jsonrpc2.Error{
		Code:    jsonrpc2.CodeInvalidParams,
		Message: "missing params",
	}
}

func errInvalidParams(err error) *jsonrpc2.Error {
	return &jsonrpc2.Error{
		Code:    jsonrpc2.CodeInvalidParams,
		Message: "invalid params: " + err.Error(),
	}
}

func errUnknownSchemaVersion(got string) *jsonrpc2.Error {
	return &jsonrpc2.Error{
		Code:    jsonrpc2.CodeInvalidParams,
		Message: "unsupported schema version: " + got,
	}
}

func errInvalidPayload(payload, field string) *jsonrpc2.Error {
	data := json.RawMessage(`{"field": "` + field + `"}`)
	return &jsonrpc2.Error{
		Code:    codeInvalidPayload,
		Message: "invalid " + payload + " payload",
		Data:    &data,
	}
}

func errInternal(kind string, err error) *jsonrpc2.Error {
	data, _ := json.Marshal(map[string]string{"kind": kind})
	raw := json.RawMessage(data)
	return &jsonrpc2.Error{
		Code:    jsonrpc2.CodeInternalError,
		Message: err.Error(),
		Data:    &raw,
	}
}
