// Package invoice builds FA(2) structured VAT invoices for KSeF.
package invoice

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Namespace is the FA(2) schema namespace.
const Namespace = "http://crd.gov.pl/wzor/2023/06/29/12648/"

// DefaultCurrency is used when an invoice does not specify one.
const DefaultCurrency = "PLN"

const systemInfo = "ksef-mcp"

// VATRates lists the accepted VAT rates in percent.
var VATRates = []int{0, 5, 8, 23}

var nipPattern = regexp.MustCompile(`^[0-9]{10}$`)

// Party is a seller or buyer.
type Party struct {
	NIP     string `json:"nip"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// Line is one invoice row.
type Line struct {
	Number      int     `json:"lineNumber"`
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	NetAmount   float64 `json:"netAmount"` // computed from Quantity*UnitPrice when zero
	VATRate     int     `json:"vatRate"`
}

// Net returns the row's net amount.
func (l Line) Net() float64 {
	if l.NetAmount != 0 {
		return l.NetAmount
	}
	return round2(l.Quantity * l.UnitPrice)
}

// VAT returns the row's tax amount.
func (l Line) VAT() float64 {
	return round2(l.Net() * float64(l.VATRate) / 100)
}

// Invoice is a structured VAT invoice.
type Invoice struct {
	Seller      Party     `json:"seller"`
	Buyer       Party     `json:"buyer"`
	Number      string    `json:"invoiceNumber"`
	IssueDate   string    `json:"invoiceDate"`
	Currency    string    `json:"currency,omitempty"`
	Lines       []Line    `json:"lineItems"`
	GeneratedAt time.Time `json:"-"`
}

// New creates an invoice in the default currency.
func New(seller, buyer Party, number, issueDate string) *Invoice {
	return &Invoice{
		Seller:    seller,
		Buyer:     buyer,
		Number:    number,
		IssueDate: issueDate,
		Currency:  DefaultCurrency,
	}
}

// AddLine appends a row.
func (inv *Invoice) AddLine(l Line) {
	inv.Lines = append(inv.Lines, l)
}

// TotalNet is the sum of row net amounts.
func (inv *Invoice) TotalNet() float64 {
	var sum float64
	for _, l := range inv.Lines {
		sum += l.Net()
	}
	return round2(sum)
}

// TotalVAT is the sum of row tax amounts.
func (inv *Invoice) TotalVAT() float64 {
	var sum float64
	for _, l := range inv.Lines {
		sum += l.VAT()
	}
	return round2(sum)
}

// TotalGross is TotalNet plus TotalVAT.
func (inv *Invoice) TotalGross() float64 {
	return round2(inv.TotalNet() + inv.TotalVAT())
}

// Validate reports every problem found, joined.
func (inv *Invoice) Validate() error {
	var errs []error
	errs = append(errs, validateParty("seller", inv.Seller)...)
	errs = append(errs, validateParty("buyer", inv.Buyer)...)
	if strings.TrimSpace(inv.Number) == "" {
		errs = append(errs, errors.New("invoiceNumber is required"))
	}
	if _, err := time.Parse(time.DateOnly, inv.IssueDate); err != nil {
		errs = append(errs, fmt.Errorf("invoiceDate %q is not a YYYY-MM-DD date", inv.IssueDate))
	}
	if inv.Currency != "" && len(inv.Currency) != 3 {
		errs = append(errs, fmt.Errorf("currency %q is not a 3-letter code", inv.Currency))
	}
	if len(inv.Lines) == 0 {
		errs = append(errs, errors.New("at least one line item is required"))
	}
	for i, l := range inv.Lines {
		if strings.TrimSpace(l.Description) == "" {
			errs = append(errs, fmt.Errorf("lineItems[%d].description is required", i))
		}
		if l.Quantity <= 0 {
			errs = append(errs, fmt.Errorf("lineItems[%d].quantity must be positive", i))
		}
		if !slices.Contains(VATRates, l.VATRate) {
			errs = append(errs, fmt.Errorf("lineItems[%d].vatRate %d is not one of %v", i, l.VATRate, VATRates))
		}
	}
	return errors.Join(errs...)
}

func validateParty(role string, p Party) []error {
	var errs []error
	if !nipPattern.MatchString(p.NIP) {
		errs = append(errs, fmt.Errorf("%s.nip must be 10 digits", role))
	}
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, fmt.Errorf("%s.name is required", role))
	}
	return errs
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func amount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
