package esm

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Serialize renders v as JavaScript literal source. Object keys that are valid
// identifiers are left unquoted.
func Serialize(v Value) string {
	var b strings.Builder
	write(&b, v, false)
	return b.String()
}

// JSON renders v as JSON text.
func JSON(v Value) string {
	var b strings.Builder
	write(&b, v, true)
	return b.String()
}

func write(b *strings.Builder, v Value, strict bool) {
	switch val := v.(type) {
	case String:
		b.WriteString(quote(string(val)))
	case Number:
		b.WriteString(formatNumber(float64(val)))
	case Bool:
		b.WriteString(strconv.FormatBool(bool(val)))
	case Array:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			write(b, item, strict)
		}
		b.WriteByte(']')
	case *Object:
		if val == nil {
			b.WriteString("null")
			return
		}
		b.WriteByte('{')
		for i, k := range val.keys {
			if i > 0 {
				b.WriteByte(',')
			}
			if !strict && identifierPattern.MatchString(k) {
				b.WriteString(k)
			} else {
				b.WriteString(quote(k))
			}
			b.WriteByte(':')
			write(b, val.values[k], strict)
		}
		b.WriteByte('}')
	default:
		b.WriteString("null")
	}
}

func formatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "null"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
