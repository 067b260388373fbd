package ksef

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the KSeF 2.0 test environment.
const DefaultBaseURL = "https://api-test.ksef.mf.gov.pl/v2"

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "ksef-mcp"

	continuationHeader = "x-continuation-token"
)

// Client is a thin relay over the KSeF HTTP API. Every endpoint method returns
// the raw response body; nothing is decoded.
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	log       logrus.FieldLogger

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the overall per-request timeout of the underlying client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a Client for the test environment with no session token.
func New(opts ...Option) *Client {
	return NewWithBaseURL(DefaultBaseURL, opts...)
}

// NewWithBaseURL creates a Client for an explicit API base URL.
func NewWithBaseURL(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: defaultTimeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: defaultUserAgent,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API base URL the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// SetSessionToken installs the bearer token used on authenticated calls.
func (c *Client) SetSessionToken(token string) {
	c.mu.Lock()
	c.token = strings.Clone(token)
	c.mu.Unlock()
}

// ClearSessionToken removes the session token. Clearing twice is a no-op.
func (c *Client) ClearSessionToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// HasSessionToken reports whether a session token is installed.
func (c *Client) HasSessionToken() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

func (c *Client) sessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// call describes a single endpoint invocation.
type call struct {
	method      string
	path        string
	query       url.Values
	header      http.Header
	body        []byte
	contentType string
	public      bool // never send the session token
}

func (c *Client) do(ctx context.Context, cl call) (string, error) {
	target := c.baseURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		body = bytes.NewReader(cl.body)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}
	for k, vals := range cl.header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if !cl.public {
		if tok := c.sessionToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Method: cl.method, Path: cl.path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Method: cl.method, Path: cl.path, Err: fmt.Errorf("read response: %w", err)}
	}

	c.log.WithFields(logrus.Fields{
		"method":     cl.method,
		"path":       cl.path,
		"status":     resp.StatusCode,
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("ksef api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return string(respBody), nil
}

func jsonCall(method, path string, v any) (call, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return call{}, fmt.Errorf("encode request body: %w", err)
	}
	return call{method: method, path: path, body: data, contentType: "application/json"}, nil
}

func escape(segment string) string {
	return url.PathEscape(segment)
}

// ListSessions lists active authentication sessions. continuationToken may be
// empty for the first page.
func (c *Client) ListSessions(ctx context.Context, pageSize int, continuationToken string) (string, error) {
	return c.do(ctx, paged(call{
		method: http.MethodGet,
		path:   "/auth/sessions",
		query:  url.Values{"pageSize": []string{strconv.Itoa(pageSize)}},
	}, continuationToken))
}

// paged attaches a continuation token to cl when one is given.
func paged(cl call, continuationToken string) call {
	if continuationToken != "" {
		cl.header = http.Header{}
		cl.header.Set(continuationHeader, continuationToken)
	}
	return cl
}

// CurrentSession returns the authentication session bound to the token.
func (c *Client) CurrentSession(ctx context.Context) (string, error) {
	return c.do(ctx, call{method: http.MethodGet, path: "/auth/sessions/current"})
}

// TerminateSession revokes the authentication session with the given reference number.
func (c *Client) TerminateSession(ctx context.Context, referenceNumber string) (string, error) {
	return c.do(ctx, call{method: http.MethodDelete, path: "/auth/sessions/" + escape(referenceNumber)})
}

// GetInvoice downloads an invoice by its KSeF number.
func (c *Client) GetInvoice(ctx context.Context, ksefNumber string) (string, error) {
	return c.do(ctx, call{method: http.MethodGet, path: "/invoices/ksef/" + escape(ksefNumber)})
}

// QueryInvoiceMetadata searches invoice metadata.
func (c *Client) QueryInvoiceMetadata(ctx context.Context, q InvoiceQuery) (string, error) {
	cl, err := jsonCall(http.MethodPost, "/invoices/query/metadata", q)
	if err != nil {
		return "", err
	}
	return c.do(ctx, cl)
}

// CreateInvoiceExport starts an asynchronous invoice export.
func (c *Client) CreateInvoiceExport(ctx context.Context, req ExportRequest) (string, error) {
	cl, err := jsonCall(http.MethodPost, "/invoices/exports", req)
	if err != nil {
		return "", err
	}
	return c.do(ctx, cl)
}

// ExportStatus returns the status of an export started by CreateInvoiceExport.
func (c *Client) ExportStatus(ctx context.Context, referenceNumber string) (string, error) {
	return c.do(ctx, call{method: http.MethodGet, path: "/invoices/exports/" + escape(referenceNumber)})
}

// CreateOnlineSession opens an interactive invoicing session. An empty request
// is sent without a body.
func (c *Client) CreateOnlineSession(ctx context.Context, req OnlineSessionRequest) (string, error) {
	if req.IsZero() {
		return c.do(ctx, call{method: http.MethodPost, path: "/sessions/online"})
	}
	cl, err := jsonCall(http.MethodPost, "/sessions/online", req)
	if err != nil {
		return "", err
	}
	return c.do(ctx, cl)
}

// CloseOnlineSession closes an interactive session.
func (c *Client) CloseOnlineSession(ctx context.Context, referenceNumber string) (string, error) {
	return c.do(ctx, call{method: http.MethodPost, path: "/sessions/online/" + escape(referenceNumber) + "/close"})
}

// SubmitInvoice sends an invoice document to an open online session. The
// document is forwarded byte for byte.
func (c *Client) SubmitInvoice(ctx context.Context, sessionReferenceNumber, document string) (string, error) {
	return c.do(ctx, call{
		method:      http.MethodPost,
		path:        "/sessions/online/" + escape(sessionReferenceNumber) + "/invoices",
		body:        []byte(document),
		contentType: "application/xml",
	})
}

// PublicKeyCertificates returns the Ministry of Finance public key
// certificates. No authentication is sent.
func (c *Client) PublicKeyCertificates(ctx context.Context) (string, error) {
	return c.do(ctx, call{method: http.MethodGet, path: "/security/public-key-certificates", public: true})
}

// RateLimits returns the API rate limits currently in force.
func (c *Client) RateLimits(ctx context.Context) (string, error) {
	return c.do(ctx, call{method: http.MethodGet, path: "/rate-limits"})
}

// ListInvoicingSessions lists online and batch invoicing sessions.
func (c *Client) ListInvoicingSessions(ctx context.Context, pageSize int, continuationToken string) (string, error) {
	return c.do(ctx, paged(call{
		method: http.MethodGet,
		path:   "/sessions",
		query:  url.Values{"pageSize": []string{strconv.Itoa(pageSize)}},
	}, continuationToken))
}

// SessionStatus returns the processing status of an invoicing session.
func (c *Client) SessionStatus(ctx context.Context, referenceNumber string) (string, error) {
	return c.do(ctx, call{method: http.MethodGet, path: "/sessions/" + escape(referenceNumber)})
}

// SessionInvoices lists the invoices submitted in a session.
func (c *Client) SessionInvoices(ctx context.Context, referenceNumber, continuationToken string) (string, error) {
	return c.do(ctx, paged(call{
		method: http.MethodGet,
		path:   "/sessions/" + escape(referenceNumber) + "/invoices",
	}, continuationToken))
}

// InvoiceUPOByKsefNumber downloads the UPO of an invoice identified by its KSeF number.
func (c *Client) InvoiceUPOByKsefNumber(ctx context.Context, sessionReferenceNumber, ksefNumber string) (string, error) {
	return c.do(ctx, call{
		method: http.MethodGet,
		path:   "/sessions/" + escape(sessionReferenceNumber) + "/invoices/ksef/" + escape(ksefNumber) + "/upo",
	})
}

// InvoiceUPOByReference downloads the UPO of an invoice identified by its
// reference number within the session.
func (c *Client) InvoiceUPOByReference(ctx context.Context, sessionReferenceNumber, invoiceReferenceNumber string) (string, error) {
	return c.do(ctx, call{
		method: http.MethodGet,
		path:   "/sessions/" + escape(sessionReferenceNumber) + "/invoices/" + escape(invoiceReferenceNumber) + "/upo",
	})
}

// SessionUPO downloads a collective UPO of a closed session.
func (c *Client) SessionUPO(ctx context.Context, sessionReferenceNumber, upoReferenceNumber string) (string, error) {
	return c.do(ctx, call{
		method: http.MethodGet,
		path:   "/sessions/" + escape(sessionReferenceNumber) + "/upo/" + escape(upoReferenceNumber),
	})
}

// CreateBatchSession opens a batch session for a set of pre-encrypted parts.
func (c *Client) CreateBatchSession(ctx context.Context, req BatchSessionRequest) (string, error) {
	cl, err := jsonCall(http.MethodPost, "/sessions/batch", req)
	if err != nil {
		return "", err
	}
	return c.do(ctx, cl)
}

// CloseBatchSession closes a batch session and starts processing.
func (c *Client) CloseBatchSession(ctx context.Context, referenceNumber string) (string, error) {
	return c.do(ctx, call{method: http.MethodPost, path: "/sessions/batch/" + escape(referenceNumber) + "/close"})
}

// SubmitEncryptedInvoice sends an encrypted invoice to an open online session.
func (c *Client) SubmitEncryptedInvoice(ctx context.Context, sessionReferenceNumber string, inv EncryptedInvoice) (string, error) {
	cl, err := jsonCall(http.MethodPost, "/sessions/online/"+escape(sessionReferenceNumber)+"/invoices", inv)
	if err != nil {
		return "", err
	}
	return c.do(ctx, cl)
}
