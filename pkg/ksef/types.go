package ksef

import "encoding/json"

// Subject types accepted by metadata queries and exports.
const (
	SubjectSeller     = "Subject1"
	SubjectBuyer      = "Subject2"
	SubjectThirdParty = "Subject3"
	SubjectAuthorized = "SubjectAuthorized"
)

// SubjectTypes lists every valid subject type.
var SubjectTypes = []string{SubjectSeller, SubjectBuyer, SubjectThirdParty, SubjectAuthorized}

// Page size bounds for listing endpoints.
const (
	MinPageSize     = 10
	MaxPageSize     = 100
	DefaultPageSize = 10

	// Invoicing session listings accept larger pages.
	MaxSessionsPageSize = 1000
)

// InvoiceQuery is the body of POST /invoices/query/metadata.
type InvoiceQuery struct {
	SubjectType   string          `json:"subjectType"`
	DateRange     json.RawMessage `json:"dateRange,omitempty"`
	KsefNumber    string          `json:"ksefNumber,omitempty"`
	InvoiceNumber string          `json:"invoiceNumber,omitempty"`
	SellerNIP     string          `json:"sellerNip,omitempty"`
	PageSize      int             `json:"pageSize,omitempty"`
	PageOffset    int             `json:"pageOffset,omitempty"`
}

// ExportRequest is the body of POST /invoices/exports.
type ExportRequest struct {
	ExportType string          `json:"exportType"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// OnlineSessionRequest is the optional body of POST /sessions/online.
type OnlineSessionRequest struct {
	SessionType string          `json:"sessionType,omitempty"`
	FormCode    json.RawMessage `json:"formCode,omitempty"`
	Encryption  json.RawMessage `json:"encryption,omitempty"`
}

// IsZero reports whether no field is set.
func (r OnlineSessionRequest) IsZero() bool {
	return r.SessionType == "" && len(r.FormCode) == 0 && len(r.Encryption) == 0
}

// BatchSessionRequest is the body of POST /sessions/batch.
type BatchSessionRequest struct {
	FormCode    json.RawMessage `json:"formCode"`
	BatchFile   json.RawMessage `json:"batchFile"`
	Encryption  json.RawMessage `json:"encryption"`
	OfflineMode bool            `json:"offlineMode,omitempty"`
}
