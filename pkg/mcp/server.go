package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ksefmcp/ksef-mcp/pkg/ksef"
	"github.com/ksefmcp/ksef-mcp/pkg/models"
)

// ProtocolVersion is the MCP revision announced in initialize.
const ProtocolVersion = "2024-11-05"

const serverName = "ksef-mcp"

// Client is the subset of the KSeF API client the tools dispatch to.
type Client interface {
	SetSessionToken(token string)
	ClearSessionToken()
	HasSessionToken() bool
	ListSessions(ctx context.Context, pageSize int, continuationToken string) (string, error)
	CurrentSession(ctx context.Context) (string, error)
	TerminateSession(ctx context.Context, referenceNumber string) (string, error)
	GetInvoice(ctx context.Context, ksefNumber string) (string, error)
	QueryInvoiceMetadata(ctx context.Context, q ksef.InvoiceQuery) (string, error)
	CreateInvoiceExport(ctx context.Context, req ksef.ExportRequest) (string, error)
	ExportStatus(ctx context.Context, referenceNumber string) (string, error)
	CreateOnlineSession(ctx context.Context, req ksef.OnlineSessionRequest) (string, error)
	CloseOnlineSession(ctx context.Context, referenceNumber string) (string, error)
	SubmitInvoice(ctx context.Context, sessionReferenceNumber, document string) (string, error)
	PublicKeyCertificates(ctx context.Context) (string, error)
	RateLimits(ctx context.Context) (string, error)
	ListInvoicingSessions(ctx context.Context, pageSize int, continuationToken string) (string, error)
	SessionStatus(ctx context.Context, referenceNumber string) (string, error)
	SessionInvoices(ctx context.Context, referenceNumber, continuationToken string) (string, error)
	InvoiceUPOByKsefNumber(ctx context.Context, sessionReferenceNumber, ksefNumber string) (string, error)
	InvoiceUPOByReference(ctx context.Context, sessionReferenceNumber, invoiceReferenceNumber string) (string, error)
	SessionUPO(ctx context.Context, sessionReferenceNumber, upoReferenceNumber string) (string, error)
	CreateBatchSession(ctx context.Context, req ksef.BatchSessionRequest) (string, error)
	CloseBatchSession(ctx context.Context, referenceNumber string) (string, error)
	SubmitEncryptedInvoice(ctx context.Context, sessionReferenceNumber string, inv ksef.EncryptedInvoice) (string, error)
}

// Recorder journals tool calls. Implementations must not block for long; the
// loop waits for Log to return.
type Recorder interface {
	Log(ctx context.Context, entry models.AuditEntry) error
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
// Requests are handled strictly one at a time.
type Server struct {
	client   Client
	recorder Recorder
	log      logrus.FieldLogger
	version  string
}

// New creates a new MCP Server. recorder and logger may be nil.
func New(client Client, recorder Recorder, logger logrus.FieldLogger, version string) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		client:   client,
		recorder: recorder,
		log:      logger,
		version:  version,
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It returns nil at end of input, or ctx.Err() if ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, readErr := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if resp := s.handleLine(ctx, bytes.TrimSpace(line)); resp != nil {
				s.writeResponse(w, *resp)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return fmt.Errorf("read request: %w", readErr)
		}
	}
}

// handleLine parses and dispatches one frame. A nil response means nothing
// is written (notifications).
func (s *Server) handleLine(ctx context.Context, line []byte) (resp *Response) {
	if !json.Valid(line) {
		s.log.WithField("bytes", len(line)).Warn("mcp: unparseable request line")
		r := ParseError(nil)
		return &r
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		r := InvalidRequest(recoverID(line), err.Error())
		return &r
	}
	if len(req.ID) > 0 && !validID(req.ID) {
		r := InvalidRequest(nil, "id must be a string, number or null")
		return &r
	}
	if strings.TrimSpace(req.Method) == "" {
		r := InvalidRequest(req.ID, "missing method")
		return &r
	}

	defer func() {
		if p := recover(); p != nil {
			s.log.WithField("method", req.Method).Errorf("mcp: panic while handling request: %v", p)
			if req.IsNotification() {
				resp = nil
				return
			}
			r := InternalError(req.ID, fmt.Sprintf("internal error: %v", p))
			resp = &r
		}
	}()

	return s.dispatch(ctx, &req)
}

// recoverID extracts the id member of a JSON object that failed to decode as
// a Request, so the error can still be correlated.
func recoverID(line []byte) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(line, &obj); err != nil {
		return nil
	}
	id, ok := obj["id"]
	if !ok || !validID(id) {
		return nil
	}
	return id
}

// validID reports whether id is a string, a number or null.
func validID(id json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(id, &v); err != nil {
		return false
	}
	switch v.(type) {
	case string, float64, nil:
		return true
	}
	return false
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	if req.IsNotification() {
		s.handleNotification(req)
		return nil
	}

	var resp Response
	switch req.Method {
	case "initialize":
		resp = s.handleInitialize(req)
	case "ping":
		resp = NewResponse(req.ID, map[string]any{})
	case "tools/list":
		resp = s.handleToolsList(req)
	case "tools/call":
		resp = s.handleToolsCall(ctx, req)
	default:
		resp = MethodNotFound(req.ID, req.Method)
	}
	return &resp
}

func (s *Server) handleNotification(req *Request) {
	switch req.Method {
	case "notifications/initialized":
		s.log.Info("mcp: client initialized")
	default:
		s.log.WithField("method", req.Method).Debug("mcp: ignoring notification")
	}
}

func (s *Server) handleInitialize(req *Request) Response {
	return NewResponse(req.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      ServerInfo{Name: serverName, Version: s.version},
		Capabilities:    map[string]any{"tools": map[string]any{}},
	})
}

func (s *Server) handleToolsList(req *Request) Response {
	return NewResponse(req.ID, ToolsListResult{Tools: allTools})
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) Response {
	var params ToolCallParams
	if len(req.Params) == 0 {
		return InvalidParams(req.ID, "missing params")
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return InvalidParams(req.ID, "invalid params: "+err.Error())
	}
	if params.Name == "" {
		return InvalidParams(req.ID, "missing tool name")
	}
	args, err := decodeArguments(params.Arguments)
	if err != nil {
		return InvalidParams(req.ID, err.Error())
	}

	callID := uuid.NewString()
	logger := s.log.WithFields(logrus.Fields{"tool": params.Name, "call_id": callID})
	start := time.Now()

	result, toolErr := s.executeTool(ctx, params.Name, args)

	latency := time.Since(start)
	if toolErr != nil {
		logger.WithField("latency_ms", latency.Milliseconds()).WithError(toolErr).Warn("mcp: tool call failed")
	} else {
		logger.WithField("latency_ms", latency.Milliseconds()).Info("mcp: tool call")
	}
	s.record(ctx, models.AuditEntry{
		CallID:     callID,
		RequestID:  string(req.ID),
		Tool:       params.Name,
		IsError:    result.IsError,
		StatusCode: ksef.StatusCode(toolErr),
		ErrorText:  errorText(toolErr),
		LatencyMs:  latency.Milliseconds(),
		CreatedAt:  start.UTC(),
	})

	return NewResponse(req.ID, result)
}

func (s *Server) record(ctx context.Context, entry models.AuditEntry) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Log(ctx, entry); err != nil {
		s.log.WithError(err).Warn("mcp: audit write failed")
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (s *Server) writeResponse(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.WithError(err).Error("mcp: marshal error")
		data, _ = json.Marshal(InternalError(resp.ID, "failed to encode response"))
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.log.WithError(err).Error("mcp: write error")
		return
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			s.log.WithError(err).Error("mcp: flush error")
		}
	}
}
