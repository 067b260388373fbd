package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/ksefmcp/ksef-mcp/pkg/invoice"
	"github.com/ksefmcp/ksef-mcp/pkg/ksef"
)

// toolHandler runs a tool against validated arguments and returns the text
// payload of the result.
type toolHandler func(ctx context.Context, s *Server, args map[string]any) (string, error)

type tool struct {
	name        string
	description string
	remote      bool // calls KSeF
	schema      Schema
	handler     toolHandler
}

// Tool argument structs.

type pageArgs struct {
	PageSize          int    `json:"pageSize"`
	ContinuationToken string `json:"continuationToken"`
}

type referenceArgs struct {
	ReferenceNumber string `json:"referenceNumber"`
}

type invoiceNumberArgs struct {
	KsefNumber string `json:"ksefNumber"`
}

type submitArgs struct {
	SessionReferenceNumber string `json:"sessionReferenceNumber"`
	Invoice                string `json:"invoice"`
}

type sessionInvoicesArgs struct {
	ReferenceNumber   string `json:"referenceNumber"`
	ContinuationToken string `json:"continuationToken"`
}

type upoArgs struct {
	SessionReferenceNumber string `json:"sessionReferenceNumber"`
	KsefNumber             string `json:"ksefNumber"`
	InvoiceReferenceNumber string `json:"invoiceReferenceNumber"`
	UPOReferenceNumber     string `json:"upoReferenceNumber"`
}

type sealedSubmitArgs struct {
	invoice.Invoice
	SessionReferenceNumber string `json:"sessionReferenceNumber"`
	SymmetricKey           string `json:"symmetricKey"`
	InitializationVector   string `json:"initializationVector"`
}

type tokenArgs struct {
	Token string `json:"token"`
}

type noArgs struct{}

// handle adapts a typed tool function to a toolHandler.
func handle[T any](fn func(ctx context.Context, s *Server, args T) (string, error)) toolHandler {
	return func(ctx context.Context, s *Server, values map[string]any) (string, error) {
		args, err := bind[T](values)
		if err != nil {
			return "", err
		}
		return fn(ctx, s, args)
	}
}

// decodeSecret decodes a base64 argument that must be exactly size bytes.
func decodeSecret(field, value string, size int) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, &ParamError{Field: field, Reason: "must be base64"}
	}
	if len(b) != size {
		return nil, &ParamError{Field: field, Reason: fmt.Sprintf("must decode to %d bytes, got %d", size, len(b))}
	}
	return b, nil
}

var pageSizeField = Field{
	Name:        "pageSize",
	Type:        TypeInteger,
	Description: fmt.Sprintf("Number of results per page (%d-%d)", ksef.MinPageSize, ksef.MaxPageSize),
	Min:         intPtr(ksef.MinPageSize),
	Max:         intPtr(ksef.MaxPageSize),
	Default:     ksef.DefaultPageSize,
}

var sessionsPageSizeField = Field{
	Name:        "pageSize",
	Type:        TypeInteger,
	Description: fmt.Sprintf("Number of results per page (%d-%d)", ksef.MinPageSize, ksef.MaxSessionsPageSize),
	Min:         intPtr(ksef.MinPageSize),
	Max:         intPtr(ksef.MaxSessionsPageSize),
	Default:     ksef.DefaultPageSize,
}

var sessionReferenceField = Field{
	Name: "sessionReferenceNumber", Type: TypeString, Required: true, Description: "Reference number of the session",
}

var invoiceFields = Schema{
	{Name: "seller", Type: TypeObject, Required: true, Description: "Seller: {nip, name, address}"},
	{Name: "buyer", Type: TypeObject, Required: true, Description: "Buyer: {nip, name, address}"},
	{Name: "invoiceNumber", Type: TypeString, Required: true, Description: "Invoice number"},
	{Name: "invoiceDate", Type: TypeString, Required: true, Description: "Issue date (YYYY-MM-DD)"},
	{Name: "currency", Type: TypeString, Default: invoice.DefaultCurrency, Description: "ISO 4217 currency code"},
	{Name: "lineItems", Type: TypeArray, Required: true,
		Description: "Line items: {lineNumber, description, unit, quantity, unitPrice, netAmount, vatRate}"},
}

// registry is the ordered tool catalog.
var registry = []tool{
	{
		name:        "get_active_sessions",
		remote:      true,
		description: "Get list of active authentication sessions",
		schema: Schema{
			pageSizeField,
			{Name: "continuationToken", Type: TypeString, Description: "Token for getting next page of results"},
		},
		handler: handle(func(ctx context.Context, s *Server, a pageArgs) (string, error) {
			return s.client.ListSessions(ctx, a.PageSize, a.ContinuationToken)
		}),
	},
	{
		name:        "get_current_session",
		remote:      true,
		description: "Get information about the current authentication session",
		handler: handle(func(ctx context.Context, s *Server, _ noArgs) (string, error) {
			return s.client.CurrentSession(ctx)
		}),
	},
	{
		name:        "terminate_session",
		remote:      true,
		description: "Terminate a specific authentication session",
		schema: Schema{
			{Name: "referenceNumber", Type: TypeString, Required: true, Description: "Reference number of the session to terminate"},
		},
		handler: handle(func(ctx context.Context, s *Server, a referenceArgs) (string, error) {
			return s.client.TerminateSession(ctx, a.ReferenceNumber)
		}),
	},
	{
		name:        "get_invoice",
		remote:      true,
		description: "Get invoice by KSeF number",
		schema: Schema{
			{Name: "ksefNumber", Type: TypeString, Required: true, Description: "KSeF invoice number"},
		},
		handler: handle(func(ctx context.Context, s *Server, a invoiceNumberArgs) (string, error) {
			return s.client.GetInvoice(ctx, a.KsefNumber)
		}),
	},
	{
		name:        "query_invoice_metadata",
		remote:      true,
		description: "Query invoice metadata with filtering and pagination",
		schema: Schema{
			{Name: "subjectType", Type: TypeString, Required: true, Enum: ksef.SubjectTypes,
				Description: "Subject type: Subject1 (seller), Subject2 (buyer), Subject3, SubjectAuthorized"},
			{Name: "dateRange", Type: TypeObject, Description: "Date range filter: {dateType, from, to} (max 3 months)"},
			{Name: "ksefNumber", Type: TypeString, Description: "KSeF invoice number (exact match)"},
			{Name: "invoiceNumber", Type: TypeString, Description: "Invoice number from issuer (exact match)"},
			{Name: "sellerNip", Type: TypeString, Description: "Seller NIP (exact match)"},
			pageSizeField,
			{Name: "pageOffset", Type: TypeInteger, Min: intPtr(0), Description: "Page offset (0-based)"},
		},
		handler: handle(func(ctx context.Context, s *Server, q ksef.InvoiceQuery) (string, error) {
			return s.client.QueryInvoiceMetadata(ctx, q)
		}),
	},
	{
		name:        "create_invoice_export",
		remote:      true,
		description: "Create an asynchronous export of invoices",
		schema: Schema{
			{Name: "exportType", Type: TypeString, Required: true, Enum: ksef.SubjectTypes,
				Description: "Which party's invoices to export"},
			{Name: "parameters", Type: TypeObject, Description: "Export parameters (encryption, filters), forwarded as-is"},
		},
		handler: handle(func(ctx context.Context, s *Server, req ksef.ExportRequest) (string, error) {
			return s.client.CreateInvoiceExport(ctx, req)
		}),
	},
	{
		name:        "get_export_status",
		remote:      true,
		description: "Get status of an invoice export",
		schema: Schema{
			{Name: "referenceNumber", Type: TypeString, Required: true, Description: "Reference number of the export"},
		},
		handler: handle(func(ctx context.Context, s *Server, a referenceArgs) (string, error) {
			return s.client.ExportStatus(ctx, a.ReferenceNumber)
		}),
	},
	{
		name:        "create_online_session",
		remote:      true,
		description: "Create a new online session for invoice submission",
		schema: Schema{
			{Name: "sessionType", Type: TypeString, Description: "Session type"},
			{Name: "formCode", Type: TypeObject, Description: "Invoice schema: {systemCode, schemaVersion, value}"},
			{Name: "encryption", Type: TypeObject, Description: "Symmetric key info: {encryptedSymmetricKey, initializationVector}"},
		},
		handler: handle(func(ctx context.Context, s *Server, req ksef.OnlineSessionRequest) (string, error) {
			return s.client.CreateOnlineSession(ctx, req)
		}),
	},
	{
		name:        "close_online_session",
		remote:      true,
		description: "Close an online session",
		schema: Schema{
			{Name: "referenceNumber", Type: TypeString, Required: true, Description: "Reference number of the session to close"},
		},
		handler: handle(func(ctx context.Context, s *Server, a referenceArgs) (string, error) {
			return s.client.CloseOnlineSession(ctx, a.ReferenceNumber)
		}),
	},
	{
		name:        "submit_invoice",
		remote:      true,
		description: "Submit an invoice document to an online session",
		schema: Schema{
			{Name: "sessionReferenceNumber", Type: TypeString, Required: true, Description: "Reference number of the online session"},
			{Name: "invoice", Type: TypeString, Required: true, Description: "Invoice document (XML), sent verbatim"},
		},
		handler: handle(func(ctx context.Context, s *Server, a submitArgs) (string, error) {
			return s.client.SubmitInvoice(ctx, a.SessionReferenceNumber, a.Invoice)
		}),
	},
	{
		name:        "get_public_key_certificates",
		remote:      true,
		description: "Get Ministry of Finance public key certificates",
		handler: handle(func(ctx context.Context, s *Server, _ noArgs) (string, error) {
			return s.client.PublicKeyCertificates(ctx)
		}),
	},
	{
		name:        "get_rate_limits",
		description: "Get current API rate limits",
		remote:      true,
		handler: handle(func(ctx context.Context, s *Server, _ noArgs) (string, error) {
			return s.client.RateLimits(ctx)
		}),
	},
	{
		name:        "get_sessions",
		description: "Get list of online and batch invoicing sessions",
		remote:      true,
		schema: Schema{
			sessionsPageSizeField,
			{Name: "continuationToken", Type: TypeString, Description: "Token for getting next page of results"},
		},
		handler: handle(func(ctx context.Context, s *Server, a pageArgs) (string, error) {
			return s.client.ListInvoicingSessions(ctx, a.PageSize, a.ContinuationToken)
		}),
	},
	{
		name:        "get_session_status",
		description: "Get status of an invoicing session",
		remote:      true,
		schema: Schema{
			{Name: "referenceNumber", Type: TypeString, Required: true, Description: "Reference number of the session"},
		},
		handler: handle(func(ctx context.Context, s *Server, a referenceArgs) (string, error) {
			return s.client.SessionStatus(ctx, a.ReferenceNumber)
		}),
	},
	{
		name:        "get_session_invoices",
		description: "Get invoices submitted in a session",
		remote:      true,
		schema: Schema{
			{Name: "referenceNumber", Type: TypeString, Required: true, Description: "Reference number of the session"},
			{Name: "continuationToken", Type: TypeString, Description: "Token for getting next page of results"},
		},
		handler: handle(func(ctx context.Context, s *Server, a sessionInvoicesArgs) (string, error) {
			return s.client.SessionInvoices(ctx, a.ReferenceNumber, a.ContinuationToken)
		}),
	},
	{
		name:        "get_invoice_upo_by_ksef",
		description: "Get the UPO of an invoice by its KSeF number",
		remote:      true,
		schema: Schema{
			sessionReferenceField,
			{Name: "ksefNumber", Type: TypeString, Required: true, Description: "KSeF invoice number"},
		},
		handler: handle(func(ctx context.Context, s *Server, a upoArgs) (string, error) {
			return s.client.InvoiceUPOByKsefNumber(ctx, a.SessionReferenceNumber, a.KsefNumber)
		}),
	},
	{
		name:        "get_invoice_upo_by_reference",
		description: "Get the UPO of an invoice by its reference number",
		remote:      true,
		schema: Schema{
			sessionReferenceField,
			{Name: "invoiceReferenceNumber", Type: TypeString, Required: true, Description: "Reference number of the invoice"},
		},
		handler: handle(func(ctx context.Context, s *Server, a upoArgs) (string, error) {
			return s.client.InvoiceUPOByReference(ctx, a.SessionReferenceNumber, a.InvoiceReferenceNumber)
		}),
	},
	{
		name:        "get_session_upo",
		description: "Get the collective UPO of a session",
		remote:      true,
		schema: Schema{
			sessionReferenceField,
			{Name: "upoReferenceNumber", Type: TypeString, Required: true, Description: "Reference number of the UPO"},
		},
		handler: handle(func(ctx context.Context, s *Server, a upoArgs) (string, error) {
			return s.client.SessionUPO(ctx, a.SessionReferenceNumber, a.UPOReferenceNumber)
		}),
	},
	{
		name:        "create_batch_session",
		description: "Create a batch session for submitting invoice packages",
		remote:      true,
		schema: Schema{
			{Name: "formCode", Type: TypeObject, Required: true, Description: "Invoice schema: {systemCode, schemaVersion, value}"},
			{Name: "batchFile", Type: TypeObject, Required: true, Description: "Package description: {fileSize, fileHash, fileParts}"},
			{Name: "encryption", Type: TypeObject, Required: true, Description: "Symmetric key info: {encryptedSymmetricKey, initializationVector}"},
			{Name: "offlineMode", Type: TypeBoolean, Description: "Declare offline invoicing mode"},
		},
		handler: handle(func(ctx context.Context, s *Server, req ksef.BatchSessionRequest) (string, error) {
			return s.client.CreateBatchSession(ctx, req)
		}),
	},
	{
		name:        "close_batch_session",
		description: "Close a batch session and start processing",
		remote:      true,
		schema: Schema{
			{Name: "referenceNumber", Type: TypeString, Required: true, Description: "Reference number of the batch session"},
		},
		handler: handle(func(ctx context.Context, s *Server, a referenceArgs) (string, error) {
			return s.client.CloseBatchSession(ctx, a.ReferenceNumber)
		}),
	},
	{
		name:        "generate_and_submit_invoice",
		description: "Generate an FA(2) invoice, encrypt it with the session key and submit it to an online session",
		remote:      true,
		schema: append(Schema{
			sessionReferenceField,
			{Name: "symmetricKey", Type: TypeString, Required: true, Description: "Base64 AES-256 key of the session (32 bytes)"},
			{Name: "initializationVector", Type: TypeString, Required: true, Description: "Base64 initialization vector of the session (16 bytes)"},
		}, invoiceFields...),
		handler: handle(func(ctx context.Context, s *Server, a sealedSubmitArgs) (string, error) {
			if err := a.Invoice.Validate(); err != nil {
				return "", &ParamError{Field: "invoice", Reason: err.Error()}
			}
			key, err := decodeSecret("symmetricKey", a.SymmetricKey, ksef.SymmetricKeySize)
			if err != nil {
				return "", err
			}
			iv, err := decodeSecret("initializationVector", a.InitializationVector, ksef.IVSize)
			if err != nil {
				return "", err
			}
			doc, err := a.Invoice.XML()
			if err != nil {
				return "", err
			}
			sealed, err := ksef.EncryptInvoice([]byte(doc), key, iv)
			if err != nil {
				return "", err
			}
			return s.client.SubmitEncryptedInvoice(ctx, a.SessionReferenceNumber, sealed)
		}),
	},
	{
		name:        "set_session_token",
		description: "Install the session token used on authenticated KSeF calls",
		schema: Schema{
			{Name: "token", Type: TypeString, Required: true, Description: "KSeF access token (bearer)"},
		},
		handler: handle(func(_ context.Context, s *Server, a tokenArgs) (string, error) {
			s.client.SetSessionToken(a.Token)
			return "Session token set.", nil
		}),
	},
	{
		name:        "clear_session_token",
		description: "Remove the session token",
		handler: handle(func(_ context.Context, s *Server, _ noArgs) (string, error) {
			s.client.ClearSessionToken()
			return "Session token cleared.", nil
		}),
	},
	{
		name:        "get_authentication_status",
		description: "Report whether a session token is installed",
		handler: handle(func(_ context.Context, s *Server, _ noArgs) (string, error) {
			if s.client.HasSessionToken() {
				return "Authenticated: session token set.", nil
			}
			return "Not authenticated.", nil
		}),
	},
	{
		name:        "generate_invoice",
		description: "Generate an FA(2) invoice XML document (no network call)",
		schema:      invoiceFields,
		handler: handle(func(_ context.Context, s *Server, inv invoice.Invoice) (string, error) {
			if err := inv.Validate(); err != nil {
				return "", &ParamError{Field: "invoice", Reason: err.Error()}
			}
			return inv.XML()
		}),
	},
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools []ToolDefinition

// toolHandlers maps tool names to registry entries.
var toolHandlers map[string]*tool

func init() {
	allTools = make([]ToolDefinition, 0, len(registry))
	toolHandlers = make(map[string]*tool, len(registry))
	for i := range registry {
		t := &registry[i]
		if t.handler == nil {
			panic("mcp: tool without handler: " + t.name)
		}
		if _, dup := toolHandlers[t.name]; dup {
			panic("mcp: duplicate tool: " + t.name)
		}
		toolHandlers[t.name] = t
		allTools = append(allTools, NewToolDefinition(t.name, t.description, t.schema.JSONSchema()))
	}
}

// Definitions returns the tool catalog in registry order.
func Definitions() []ToolDefinition {
	return append([]ToolDefinition(nil), allTools...)
}

// executeTool validates args and runs the named tool. The returned error is
// the tool failure, if any; it is already reflected in the result.
func (s *Server) executeTool(ctx context.Context, name string, args map[string]any) (ToolCallResult, error) {
	t, ok := toolHandlers[name]
	if !ok {
		err := fmt.Errorf("unknown tool: %s", name)
		return ErrorResult(err.Error()), err
	}

	values, err := t.schema.Validate(args)
	if err != nil {
		return ErrorResult("invalid params: " + err.Error()), err
	}

	text, err := t.handler(ctx, s, values)
	if err != nil {
		var perr *ParamError
		if errors.As(err, &perr) {
			return ErrorResult("invalid params: " + perr.Error()), err
		}
		return ErrorResult(err.Error()), err
	}
	return TextResult(text), nil
}
