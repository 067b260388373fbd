package invoice

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"time"
)

type document struct {
	XMLName  xml.Name `xml:"Faktura"`
	Xmlns    string   `xml:"xmlns,attr"`
	XmlnsXsi string   `xml:"xmlns:xsi,attr"`
	XmlnsXsd string   `xml:"xmlns:xsd,attr"`
	Header   header   `xml:"Naglowek"`
	Seller   subject1 `xml:"Podmiot1"`
	Buyer    subject2 `xml:"Podmiot2"`
	Body     fa       `xml:"Fa"`
}

type header struct {
	FormCode   formCode `xml:"KodFormularza"`
	Variant    int      `xml:"WariantFormularza"`
	CreatedAt  string   `xml:"DataWytworzeniaFa"`
	SystemInfo string   `xml:"SystemInfo"`
}

type formCode struct {
	SystemCode    string `xml:"kodSystemowy,attr"`
	SchemaVersion string `xml:"wersjaSchemy,attr"`
	Value         string `xml:",chardata"`
}

type identity struct {
	NIP  string `xml:"NIP"`
	Name string `xml:"Nazwa"`
}

type address struct {
	CountryCode string `xml:"KodKraju"`
	Line1       string `xml:"AdresL1"`
}

type subject1 struct {
	Identity identity `xml:"DaneIdentyfikacyjne"`
	Address  *address `xml:"Adres,omitempty"`
}

type subject2 struct {
	Identity identity `xml:"DaneIdentyfikacyjne"`
	Address  *address `xml:"Adres,omitempty"`
	ClientNo int      `xml:"NrKlienta"`
	JST      int      `xml:"JST"`
	GV       int      `xml:"GV"`
}

type fa struct {
	Currency    string      `xml:"KodWaluty"`
	IssueDate   string      `xml:"P_1"`
	IssuePlace  string      `xml:"P_1M"`
	Number      string      `xml:"P_2"`
	TotalNet    string      `xml:"P_13_1"`
	TotalVAT    string      `xml:"P_14_1"`
	TotalGross  string      `xml:"P_15"`
	Annotations annotations `xml:"Adnotacje"`
	Kind        string      `xml:"RodzajFaktury"`
	Rows        []row       `xml:"FaWiersz"`
}

// annotations carries the fixed Adnotacje flags: 1 marks a negation
// element present, 2 means "no".
type annotations struct {
	P16     int `xml:"P_16"`
	P17     int `xml:"P_17"`
	P18     int `xml:"P_18"`
	P18A    int `xml:"P_18A"`
	P19N    int `xml:"Zwolnienie>P_19N"`
	P22N    int `xml:"NoweSrodkiTransportu>P_22N"`
	P23     int `xml:"P_23"`
	PMarzyN int `xml:"PMarzy>P_PMarzyN"`
}

type row struct {
	Number      int    `xml:"NrWierszaFa"`
	Description string `xml:"P_7"`
	Unit        string `xml:"P_8A"`
	Quantity    string `xml:"P_8B"`
	UnitPrice   string `xml:"P_9A"`
	NetAmount   string `xml:"P_11"`
	VATRate     int    `xml:"P_12"`
}

// XML renders the invoice as an FA(2) document with an XML declaration.
func (inv *Invoice) XML() (string, error) {
	generated := inv.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	currency := inv.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	doc := document{
		Xmlns:    Namespace,
		XmlnsXsi: "http://www.w3.org/2001/XMLSchema-instance",
		XmlnsXsd: "http://www.w3.org/2001/XMLSchema",
		Header: header{
			FormCode:   formCode{SystemCode: "FA (2)", SchemaVersion: "1-0E", Value: "FA"},
			Variant:    2,
			CreatedAt:  generated.Format(time.RFC3339),
			SystemInfo: systemInfo,
		},
		Seller: subject1{
			Identity: identity{NIP: inv.Seller.NIP, Name: inv.Seller.Name},
			Address:  partyAddress(inv.Seller),
		},
		Buyer: subject2{
			Identity: identity{NIP: inv.Buyer.NIP, Name: inv.Buyer.Name},
			Address:  partyAddress(inv.Buyer),
			ClientNo: 2,
			JST:      2,
			GV:       2,
		},
		Body: fa{
			Currency:   currency,
			IssueDate:  inv.IssueDate,
			IssuePlace: "dom",
			Number:     inv.Number,
			TotalNet:   amount(inv.TotalNet()),
			TotalVAT:   amount(inv.TotalVAT()),
			TotalGross: amount(inv.TotalGross()),
			Kind:       "VAT",
		},
	}

	doc.Body.Annotations = annotations{
		P16: 2, P17: 2, P18: 2, P18A: 2,
		P19N: 1, P22N: 1, P23: 2, PMarzyN: 1,
	}

	for i, l := range inv.Lines {
		n := l.Number
		if n == 0 {
			n = i + 1
		}
		doc.Body.Rows = append(doc.Body.Rows, row{
			Number:      n,
			Description: l.Description,
			Unit:        l.Unit,
			Quantity:    strconv.FormatFloat(l.Quantity, 'f', -1, 64),
			UnitPrice:   amount(l.UnitPrice),
			NetAmount:   amount(l.Net()),
			VATRate:     l.VATRate,
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal invoice: %w", err)
	}
	return xml.Header + string(out), nil
}

func partyAddress(p Party) *address {
	if p.Address == "" {
		return nil
	}
	return &address{CountryCode: "PL", Line1: p.Address}
}
