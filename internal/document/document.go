// Package document defines the vocabulary shared by every stage of the
// intake pipeline: how an item arrived, what format it turned out to be,
// what it is about, and the payload carrying its content.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// InputType records how an item arrived at the intake surface.
type InputType string

const (
	InputFile  InputType = "file"
	InputJSON  InputType = "json"
	InputEmail InputType = "email"
)

// Format is the content format detected by the classifier.
type Format string

const (
	FormatJSON    Format = "json"
	FormatEmail   Format = "email"
	FormatPDF     Format = "pdf"
	FormatUnknown Format = "unknown"
)

// Intent is the business category of a document.
type Intent string

const (
	IntentRFQ        Intent = "rfq"
	IntentInvoice    Intent = "invoice"
	IntentComplaint  Intent = "complaint"
	IntentRegulation Intent = "regulation"
	IntentInquiry    Intent = "inquiry"
	IntentOther      Intent = "other"
	IntentUnknown    Intent = "unknown"
)

// Kind tags which variant a Payload holds.
type Kind int

const (
	KindEmpty Kind = iota
	KindBytes
	KindText
	KindValue
)

// Payload is the raw content of an ingested item. Exactly one of the
// variants is set; use the constructors below.
type Payload struct {
	kind  Kind
	raw   []byte
	text  string
	value any
}

// FromBytes wraps raw bytes, as received from a file upload.
func FromBytes(b []byte) Payload { return Payload{kind: KindBytes, raw: b} }

// FromText wraps text, as received from a form field.
func FromText(s string) Payload { return Payload{kind: KindText, text: s} }

// FromValue wraps an already-decoded JSON value.
func FromValue(v any) Payload { return Payload{kind: KindValue, value: v} }

// Kind reports which variant p holds.
func (p Payload) Kind() Kind { return p.kind }

// Bytes returns the raw bytes of a KindBytes payload and nil otherwise.
func (p Payload) Bytes() []byte {
	if p.kind != KindBytes {
		return nil
	}
	return p.raw
}

// Value returns the decoded value of a KindValue payload.
func (p Payload) Value() (any, bool) {
	if p.kind != KindValue {
		return nil, false
	}
	return p.value, true
}

// Text renders the payload as text. Invalid UTF-8 in byte payloads is
// dropped; structured values are serialized as JSON.
func (p Payload) Text() string {
	switch p.kind {
	case KindBytes:
		return strings.ToValidUTF8(string(p.raw), "")
	case KindText:
		return p.text
	case KindValue:
		return MarshalText(p.value)
	default:
		return ""
	}
}

// ReplacedText renders the payload as text, substituting U+FFFD for
// invalid UTF-8 sequences instead of dropping them.
func (p Payload) ReplacedText() string {
	if p.kind == KindBytes {
		if utf8.Valid(p.raw) {
			return string(p.raw)
		}
		return strings.ToValidUTF8(string(p.raw), "�")
	}
	return p.Text()
}

// Len returns the size in bytes of the payload's content.
func (p Payload) Len() int {
	switch p.kind {
	case KindBytes:
		return len(p.raw)
	case KindText:
		return len(p.text)
	default:
		return len(p.Text())
	}
}

// MarshalText serializes v as compact JSON without HTML escaping. Values
// that cannot be encoded fall back to their fmt representation.
func MarshalText(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// TruncateRunes caps s at n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
