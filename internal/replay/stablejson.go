// ABOUTME: Deterministic JSON serializer that sorts object keys at every level.
// ABOUTME: Used to fingerprint payloads independent of key insertion order.

package replay

import (
	"bytes"
	"encoding/json"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// StableJSON serializes v with object keys sorted lexicographically at every
// nesting level. Arrays keep their order. Numbers take one canonical form
// whatever their spelling. nil and unencodable values (NaN, channels, ...)
// serialize as null.
func StableJSON(v any) string {
	var b strings.Builder
	writeStable(&b, v)
	return b.String()
}

func writeStable(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeScalar(b, k)
			b.WriteByte(':')
			writeStable(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeStable(b, item)
		}
		b.WriteByte(']')
	case json.Number:
		writeNumber(b, val)
	case string, bool,
		float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		writeScalar(b, val)
	default:
		// Structs, typed maps and slices: normalize through encoding/json
		// so they become map[string]any / []any and sort like everything else.
		data, err := json.Marshal(val)
		if err != nil {
			b.WriteString("null")
			return
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var generic any
		if err := dec.Decode(&generic); err != nil {
			b.WriteString("null")
			return
		}
		writeStable(b, generic)
	}
}

// writeNumber writes n in the form encoding/json uses for the equivalent Go
// integer or float64, so 1, 1.0 and 1e0 serialize alike. Integers too large
// for float64 keep every digit.
func writeNumber(b *strings.Builder, n json.Number) {
	s := string(n)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		b.WriteString(strconv.FormatInt(i, 10))
		return
	}
	if i, ok := new(big.Int).SetString(s, 10); ok {
		b.WriteString(i.String())
		return
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		writeScalar(b, s)
		return
	}
	writeScalar(b, f)
}

func writeScalar(b *strings.Builder, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		b.WriteString("null")
		return
	}
	b.Write(bytes.TrimRight(buf.Bytes(), "\n"))
}
