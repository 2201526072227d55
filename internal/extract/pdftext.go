package extract

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf16"
)

// textFromContentStream walks a decoded page content stream operator by
// operator. String operands of the text showing operators (Tj, TJ, ', ")
// are written out; Td and TD add a space and T* a line break.
func textFromContentStream(data []byte) string {
	var (
		sb       strings.Builder
		operands []string
	)
	show := func(newline bool) {
		text := strings.Join(operands, "")
		if text != "" {
			if newline {
				sb.WriteByte('\n')
			}
			sb.WriteString(text)
		}
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case isPDFSpace(c):
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '(':
			raw, next := literalString(data, i)
			operands = append(operands, decodePDFString(raw))
			i = next
		case c == '<' && i+1 < len(data) && data[i+1] == '<', c == '>' && i+1 < len(data) && data[i+1] == '>':
			i += 2
		case c == '<':
			raw, next := hexString(data, i)
			operands = append(operands, decodeHexString(raw))
			i = next
		case c == '[' || c == ']' || c == '{' || c == '}' || c == '>' || c == ')':
			i++
		case c == '/':
			i = tokenEnd(data, i+1)
		default:
			end := tokenEnd(data, i+1)
			tok := string(data[i:end])
			i = end
			if isPDFNumber(tok) {
				continue
			}
			switch tok {
			case "Tj", "TJ":
				show(false)
			case "'", `"`:
				show(true)
			case "Td", "TD":
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
			case "T*":
				sb.WriteByte('\n')
			case "ID":
				i = skipInlineImage(data, i)
			}
			operands = operands[:0]
		}
	}

	return cleanPDFText(sb.String())
}

// literalString returns the raw bytes of the (...) string starting at
// data[start] and the offset just past it. Balanced parentheses nest.
func literalString(data []byte, start int) ([]byte, int) {
	depth := 0
	for i := start; i < len(data); i++ {
		switch data[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return data[start+1 : i], i + 1
			}
		}
	}
	return data[start+1:], len(data)
}

// hexString returns the digits of the <...> string starting at data[start]
// and the offset just past it.
func hexString(data []byte, start int) ([]byte, int) {
	end := bytes.IndexByte(data[start:], '>')
	if end < 0 {
		return data[start+1:], len(data)
	}
	return data[start+1 : start+end], start + end + 1
}

// decodeHexString decodes hex digits, ignoring whitespace. An odd final
// digit is padded with 0. A UTF-16BE byte order mark selects UTF-16.
func decodeHexString(raw []byte) string {
	var (
		sb   strings.Builder
		hi   byte
		half bool
	)
	for _, c := range raw {
		v, ok := hexVal(c)
		if !ok {
			continue
		}
		if !half {
			hi, half = v, true
			continue
		}
		sb.WriteByte(hi<<4 | v)
		half = false
	}
	if half {
		sb.WriteByte(hi << 4)
	}
	out := sb.String()
	if len(out) >= 2 && out[0] == 0xfe && out[1] == 0xff {
		return decodeUTF16BE(out[2:])
	}
	return out
}

func decodeUTF16BE(s string) string {
	units := make([]uint16, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		units = append(units, uint16(s[i])<<8|uint16(s[i+1]))
	}
	return string(utf16.Decode(units))
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// skipInlineImage moves past the binary data of a BI ... ID ... EI block.
func skipInlineImage(data []byte, i int) int {
	for ; i+2 <= len(data); i++ {
		if data[i] == 'E' && data[i+1] == 'I' && i > 0 && isPDFSpace(data[i-1]) &&
			(i+2 == len(data) || isPDFSpace(data[i+2])) {
			return i + 2
		}
	}
	return len(data)
}

func tokenEnd(data []byte, i int) int {
	for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelimiter(data[i]) {
		i++
	}
	return i
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0:
		return true
	}
	return false
}

func isPDFDelimiter(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func isPDFNumber(tok string) bool {
	if tok == "" {
		return false
	}
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		if (c < '0' || c > '9') && c != '.' && c != '-' && c != '+' {
			return false
		}
	}
	return true
}

// decodePDFString handles PDF literal string escapes.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch c := raw[i]; c {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case '\\', '(', ')':
			sb.WriteByte(c)
		case '\n':
			// line continuation
		default:
			if c < '0' || c > '7' {
				sb.WriteByte(c)
				continue
			}
			// Up to three octal digits.
			val := int(c - '0')
			for n := 1; n < 3 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

// cleanPDFText collapses whitespace runs within a line, keeps line breaks
// and drops non-printable runes.
func cleanPDFText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r", "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		var sb strings.Builder
		prevSpace := false
		for _, r := range line {
			switch {
			case unicode.IsSpace(r):
				if !prevSpace && sb.Len() > 0 {
					sb.WriteByte(' ')
					prevSpace = true
				}
			case unicode.IsPrint(r):
				sb.WriteRune(r)
				prevSpace = false
			}
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n")
}
