package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sourcegraph/jsonrpc2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dxta-dev/clankers/internal/logging"
	"github.com/dxta-dev/clankers/internal/paths"
	"github.com/dxta-dev/clankers/internal/storage"
	"github.com/dxta-dev/clankers/internal/telemetry"
)

// Handler dispatches the method catalog against the storage engine and
// the structured logger.
type Handler struct {
	store    *storage.Store
	logger   *logging.Logger
	version  string
	handlers map[string]func(context.Context, *json.RawMessage) (any, error)

	requests metric.Int64Counter
}

// NewHandler builds the dispatcher. version is reported by health.
func NewHandler(store *storage.Store, logger *logging.Logger, version string) *Handler {
	h := &Handler{store: store, logger: logger, version: version}
	h.requests, _ = telemetry.Meter("").Int64Counter(telemetry.MetricRPCRequests)
	h.handlers = map[string]func(context.Context, *json.RawMessage) (any, error){
		MethodHealth:                h.health,
		MethodEnsureDB:              h.ensureDB,
		MethodGetDBPath:             h.getDBPath,
		MethodUpsertSession:         h.upsertSession,
		MethodUpsertMessage:         h.upsertMessage,
		MethodUpsertTool:            h.upsertTool,
		MethodUpsertSessionError:    h.upsertSessionError,
		MethodUpsertCompactionEvent: h.upsertCompactionEvent,
		MethodLogWrite:              h.logWrite,
	}
	return h
}

// Handle implements jsonrpc2 dispatch. Storage failures map to the
// internal error code with a kind tag; payload failures carry the field
// that failed.
func (h *Handler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	if h.requests != nil {
		h.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("method", req.Method)))
	}

	fn, ok := h.handlers[req.Method]
	if !ok {
		return nil, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: "method not found: " + req.Method,
		}
	}

	result, err := fn(ctx, req.Params)
	if err != nil {
		var rpcErr *jsonrpc2.Error
		if errors.As(err, &rpcErr) {
			return nil, rpcErr
		}
		var gate *storage.QueryNotAllowedError
		if errors.As(err, &gate) {
			return nil, errInternal(KindQueryNotAllowed, err)
		}
		return nil, errInternal(KindStorageError, err)
	}
	return result, nil
}

func (h *Handler) health(context.Context, *json.RawMessage) (any, error) {
	return &HealthResult{OK: true, Version: h.version}, nil
}

func (h *Handler) ensureDB(context.Context, *json.RawMessage) (any, error) {
	dbPath := h.store.Path()
	created, err := storage.EnsureDB(dbPath)
	if err != nil {
		return nil, err
	}
	return &EnsureDBResult{DBPath: dbPath, Created: created}, nil
}

func (h *Handler) getDBPath(context.Context, *json.RawMessage) (any, error) {
	if h.store != nil {
		return &GetDBPathResult{DBPath: h.store.Path()}, nil
	}
	return &GetDBPathResult{DBPath: paths.DBPath()}, nil
}

// decodeEnvelope unmarshals params into dst and enforces the schema
// version. dst must embed RequestEnvelope.
func decodeEnvelope(params *json.RawMessage, dst any, envelope *RequestEnvelope) error {
	if params == nil {
		return errMissingParams()
	}
	if err := json.Unmarshal(*params, dst); err != nil {
		return errInvalidParams(err)
	}
	if envelope.SchemaVersion != SchemaVersion {
		return errUnknownSchemaVersion(envelope.SchemaVersion)
	}
	return nil
}

func (h *Handler) upsertSession(ctx context.Context, params *json.RawMessage) (any, error) {
	var p UpsertSessionParams
	if err := decodeEnvelope(params, &p, &p.RequestEnvelope); err != nil {
		return nil, err
	}
	if p.Session.ID == "" {
		return nil, errInvalidPayload("session", "id")
	}

	if err := h.store.UpsertSession(ctx, &p.Session); err != nil {
		return nil, err
	}
	return &OkResult{OK: true}, nil
}

func (h *Handler) upsertMessage(ctx context.Context, params *json.RawMessage) (any, error) {
	var p UpsertMessageParams
	if err := decodeEnvelope(params, &p, &p.RequestEnvelope); err != nil {
		return nil, err
	}
	if p.Message.ID == "" {
		return nil, errInvalidPayload("message", "id")
	}
	if p.Message.SessionID == "" {
		return nil, errInvalidPayload("message", "sessionId")
	}

	if err := h.store.UpsertMessage(ctx, &p.Message); err != nil {
		return nil, err
	}
	return &OkResult{OK: true}, nil
}

func (h *Handler) upsertTool(ctx context.Context, params *json.RawMessage) (any, error) {
	var p UpsertToolParams
	if err := decodeEnvelope(params, &p, &p.RequestEnvelope); err != nil {
		return nil, err
	}
	if p.Tool.ID == "" {
		return nil, errInvalidPayload("tool", "id")
	}
	if p.Tool.SessionID == "" {
		return nil, errInvalidPayload("tool", "sessionId")
	}
	if p.Tool.ToolName == "" {
		return nil, errInvalidPayload("tool", "toolName")
	}

	if err := h.store.UpsertTool(ctx, &p.Tool); err != nil {
		return nil, err
	}
	return &OkResult{OK: true}, nil
}

func (h *Handler) upsertSessionError(ctx context.Context, params *json.RawMessage) (any, error) {
	var p UpsertSessionErrorParams
	if err := decodeEnvelope(params, &p, &p.RequestEnvelope); err != nil {
		return nil, err
	}
	if p.SessionError.ID == "" {
		return nil, errInvalidPayload("session error", "id")
	}
	if p.SessionError.SessionID == "" {
		return nil, errInvalidPayload("session error", "sessionId")
	}

	if err := h.store.UpsertSessionError(ctx, &p.SessionError); err != nil {
		return nil, err
	}
	return &OkResult{OK: true}, nil
}

func (h *Handler) upsertCompactionEvent(ctx context.Context, params *json.RawMessage) (any, error) {
	var p UpsertCompactionEventParams
	if err := decodeEnvelope(params, &p, &p.RequestEnvelope); err != nil {
		return nil, err
	}
	if p.CompactionEvent.ID == "" {
		return nil, errInvalidPayload("compaction event", "id")
	}
	if p.CompactionEvent.SessionID == "" {
		return nil, errInvalidPayload("compaction event", "sessionId")
	}

	if err := h.store.UpsertCompactionEvent(ctx, &p.CompactionEvent); err != nil {
		return nil, err
	}
	return &OkResult{OK: true}, nil
}

// logWrite is canonically fire-and-forget, but still replies ok for
// clients that await. The level filter lives in the logger; no filtering
// happens here.
func (h *Handler) logWrite(_ context.Context, params *json.RawMessage) (any, error) {
	var p LogWriteParams
	if err := decodeEnvelope(params, &p, &p.RequestEnvelope); err != nil {
		return nil, err
	}

	if p.Entry.Component == "" {
		p.Entry.Component = p.Client.Name
	}

	// A daemon running without a log sink still acknowledges.
	if h.logger == nil {
		return &OkResult{OK: true}, nil
	}

	if err := h.logger.Write(p.Entry); err != nil {
		return nil, err
	}
	return &OkResult{OK: true}, nil
}
