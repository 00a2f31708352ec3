// Package protocol implements the tag based wire format spoken by the
// card terminal over TCP. Requests are a single ASCII write with no
// delimiters or terminator; each field is introduced by a two letter
// tag and padded to a fixed width so the device can slice it apart.
package protocol

import (
	"fmt"
	"strings"
)

// Widths pins the fixed field widths of the request format. The device
// firmware slices by position, so changing any of these without a
// matching firmware change breaks every payment.
type Widths struct {
	Amount    int
	Terminal  int
	Merchant  int
	Order     int
	Customer  int
	PaymentID int
	BillID    int
}

// DefaultWidths matches the deployed terminal firmware.
func DefaultWidths() Widths {
	return Widths{
		Amount:    12,
		Terminal:  8,
		Merchant:  15,
		Order:     20,
		Customer:  50,
		PaymentID: 11,
		BillID:    20,
	}
}

// Request is one payment purchase to put on the wire. Amount is in the
// currency's minor unit. Order, CustomerName, PaymentID and BillID are
// optional; absent fields are left out of the encoded request entirely.
type Request struct {
	Amount       int64
	TerminalID   string
	MerchantID   string
	Order        string
	CustomerName string
	PaymentID    string
	BillID       string
}

// zfill left pads s with zeros to width, truncating from the left when
// s is longer. Numeric fields use it.
func zfill(s string, width int) string {
	if len(s) >= width {
		return s[len(s)-width:]
	}
	return strings.Repeat("0", width-len(s)) + s
}

// ljust right pads s with spaces to width, truncating from the right
// when s is longer. Text fields use it.
func ljust(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// Encode renders a purchase request. Tag order is fixed: PR AM TE ME
// then the optional SO CU PD BI in that order.
func Encode(r Request, w Widths) ([]byte, error) {
	if r.Amount <= 0 {
		return nil, fmt.Errorf("encode request: amount %d is not positive", r.Amount)
	}
	if r.TerminalID == "" {
		return nil, fmt.Errorf("encode request: terminal ID is empty")
	}
	if r.MerchantID == "" {
		return nil, fmt.Errorf("encode request: merchant ID is empty")
	}

	var b strings.Builder
	b.WriteString("PR")
	b.WriteString("00") // transaction type: purchase
	b.WriteString("AM")
	b.WriteString(zfill(fmt.Sprintf("%d", r.Amount), w.Amount))
	b.WriteString("TE")
	b.WriteString(zfill(r.TerminalID, w.Terminal))
	b.WriteString("ME")
	b.WriteString(zfill(r.MerchantID, w.Merchant))
	if r.Order != "" {
		b.WriteString("SO")
		b.WriteString(ljust(r.Order, w.Order))
	}
	if r.CustomerName != "" {
		b.WriteString("CU")
		b.WriteString(ljust(r.CustomerName, w.Customer))
	}
	if r.PaymentID != "" {
		b.WriteString("PD")
		id := r.PaymentID
		if len(id) > w.PaymentID {
			id = id[:w.PaymentID]
		}
		b.WriteString(zfill(id, w.PaymentID))
	}
	if r.BillID != "" {
		b.WriteString("BI")
		// Callers sometimes hand us a value already carrying the tag.
		id := strings.TrimPrefix(r.BillID, "BI")
		if len(id) > w.BillID {
			id = id[:w.BillID]
		}
		b.WriteString(zfill(id, w.BillID))
	}
	return []byte(b.String()), nil
}

// Response is everything worth extracting from a terminal reply. Code
// is always set when Parsed is true; the rest is opportunistic and
// empty when the device omitted the tag.
type Response struct {
	Parsed bool
	// Code is the two digit result: "00" on approval, the device's
	// decline code otherwise.
	Code            string
	Success         bool
	TransactionID   string
	ReferenceNumber string
	TerminalID      string
	MaskedPAN       string
	Date            string // YYMMDD
	Time            string // HHMM
	Amount          int64
	Order           string
	Raw             string
}

// errorMessages maps decline codes to operator facing English. Unknown
// codes get a generic message with the code embedded.
var errorMessages = map[string]string{
	"01": "invalid card",
	"02": "insufficient funds",
	"03": "incorrect PIN",
	"04": "expired card",
	"05": "communication error",
	"06": "system error",
	"81": "cancelled by user",
	"99": "unknown error",
}

// ErrorMessage renders a decline code for humans.
func ErrorMessage(code string) string {
	if m, ok := errorMessages[code]; ok {
		return m
	}
	return fmt.Sprintf("payment failed with code %s", code)
}

// CancelledCode is the device's code for a user pressing cancel.
const CancelledCode = "81"

// placeholders are values the vendor stack emits before a real reply
// lands. They carry no information and must never terminate a wait.
var placeholders = []string{
	"Intek.PcPosLibrary.Response",
	"PcPosLibrary.Response",
	"None",
}

// IsPlaceholder reports whether raw is a type name the vendor library
// leaks instead of actual response bytes.
func IsPlaceholder(raw string) bool {
	t := strings.TrimSpace(raw)
	for _, p := range placeholders {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// IsValidValue filters the junk the vendor stack produces for absent
// fields: bare separators, stringified nils and fragments too short to
// mean anything.
func IsValidValue(v string) bool {
	t := strings.TrimSpace(v)
	if t == "" || len(t) <= 2 {
		return false
	}
	switch t {
	case "=", "None", "RN =", "RN=":
		return false
	}
	if strings.HasSuffix(t, "=") && len(strings.TrimSpace(strings.TrimSuffix(t, "="))) <= 2 {
		return false
	}
	return true
}

// digitRun returns the run of consecutive digits starting at raw[i],
// capped at max.
func digitRun(raw string, i, max int) string {
	j := i
	for j < len(raw) && j-i < max && raw[j] >= '0' && raw[j] <= '9' {
		j++
	}
	return raw[i:j]
}

// panRun accepts digits and mask asterisks.
func panRun(raw string, i, max int) string {
	j := i
	for j < len(raw) && j-i < max {
		c := raw[j]
		if (c < '0' || c > '9') && c != '*' {
			break
		}
		j++
	}
	return raw[i:j]
}

// afterTag returns the index just past the first occurrence of tag, or
// -1 when the tag is absent.
func afterTag(raw, tag string) int {
	i := strings.Index(raw, tag)
	if i < 0 {
		return -1
	}
	return i + len(tag)
}

// Decode extracts the result code and whatever optional tags the reply
// carries. The code is mandatory: replies without a recognizable RS
// tag come back with Parsed=false so the caller keeps waiting.
func Decode(raw string, w Widths) Response {
	resp := Response{Raw: raw}
	if IsPlaceholder(raw) || strings.TrimSpace(raw) == "" {
		return resp
	}

	// RS013 and RS01 both mean approved. RS00 prefixes a decline code.
	// Check the longer marker first so RS013 never reads as RS01+"3".
	switch {
	case strings.Contains(raw, "RS013"), strings.Contains(raw, "RS01"):
		resp.Parsed = true
		resp.Code = "00"
		resp.Success = true
	case strings.Contains(raw, "RS00"):
		code := digitRun(raw, afterTag(raw, "RS00"), 2)
		if len(code) == 2 {
			resp.Parsed = true
			resp.Code = code
		}
	}
	if !resp.Parsed {
		return resp
	}

	if i := afterTag(raw, "SR"); i >= 0 {
		if v := digitRun(raw, i, 20); IsValidValue(v) {
			resp.TransactionID = v
		}
	}
	if i := afterTag(raw, "RN"); i >= 0 {
		if v := digitRun(raw, i, 20); IsValidValue(v) {
			resp.ReferenceNumber = v
		}
	}
	if i := afterTag(raw, "TI"); i >= 0 {
		if v := digitRun(raw, i, w.Terminal); len(v) == w.Terminal {
			resp.TerminalID = v
		}
	}
	if i := afterTag(raw, "PN"); i >= 0 {
		if v := panRun(raw, i, 19); IsValidValue(v) {
			resp.MaskedPAN = v
		}
	}
	if i := afterTag(raw, "DS"); i >= 0 {
		if v := digitRun(raw, i, 6); len(v) == 6 {
			resp.Date = v
		}
	}
	if i := afterTag(raw, "TM"); i >= 0 {
		if v := digitRun(raw, i, 4); len(v) == 4 {
			resp.Time = v
		}
	}
	if i := afterTag(raw, "AM"); i >= 0 {
		if v := digitRun(raw, i, w.Amount); len(v) == w.Amount {
			var n int64
			fmt.Sscanf(v, "%d", &n)
			resp.Amount = n
		}
	}
	if i := afterTag(raw, "SO"); i >= 0 && i+w.Order <= len(raw) {
		resp.Order = strings.TrimSpace(raw[i : i+w.Order])
	}
	return resp
}
