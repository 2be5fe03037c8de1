// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package jsonx extends the encoding/json package to encode JSON
// incrementally and without requiring reflection.
package jsonx

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"unicode/utf8"
)

var hex = "0123456789abcdef"

// AppendString escapes s and appends it to buf.
func AppendString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	start := 0
	for i := 0; i < len(s); {
		if b := s[i]; b < utf8.RuneSelf {
			if 0x20 <= b && b != '\\' && b != '"' && b != '<' && b != '>' && b != '&' {
				i++
				continue
			}
			if start < i {
				buf.WriteString(s[start:i])
			}
			switch b {
			case '\\', '"':
				buf.WriteByte('\\')
				buf.WriteByte(b)
			case '\n':
				buf.WriteByte('\\')
				buf.WriteByte('n')
			case '\r':
				buf.WriteByte('\\')
				buf.WriteByte('r')
			case '\t':
				buf.WriteByte('\\')
				buf.WriteByte('t')
			default:
				// This encodes bytes < 0x20 except for \n, \r, and \t,
				// as well as <, >, and &.
				buf.WriteString(`\u00`)
				buf.WriteByte(hex[b>>4])
				buf.WriteByte(hex[b&0xF])
			}
			i++
			start = i
			continue
		}
		c, size := utf8.DecodeRuneInString(s[i:])
		if c == utf8.RuneError && size == 1 {
			if start < i {
				buf.WriteString(s[start:i])
			}
			buf.WriteString(`\ufffd`)
			i += size
			start = i
			continue
		}
		// U+2028 is LINE SEPARATOR.
		// U+2029 is PARAGRAPH SEPARATOR.
		if c == '\u2028' || c == '\u2029' {
			if start < i {
				buf.WriteString(s[start:i])
			}
			buf.WriteString(`\u202`)
			buf.WriteByte(hex[c&0xF])
			i += size
			start = i
			continue
		}
		i += size
	}
	if start < len(s) {
		buf.WriteString(s[start:])
	}
	buf.WriteByte('"')
}

// AppendStringArray appends an array of string literals to buf.
func AppendStringArray(buf *bytes.Buffer, a ...string) {
	buf.WriteByte('[')
	for i, s := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		AppendString(buf, s)
	}
	buf.WriteByte(']')
}

// AppendFloat appends a numeric literal representing the value to buf.
// NaN and infinities are not representable in JSON and are written as 0.
func AppendFloat(buf *bytes.Buffer, x float64) {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		buf.WriteByte('0')
		return
	}
	var scratch [64]byte
	buf.Write(strconv.AppendFloat(scratch[:0], x, 'g', -1, 64))
}

// AppendFloatArray appends an array of numeric literals to buf.
func AppendFloatArray(buf *bytes.Buffer, a ...float64) {
	buf.WriteByte('[')
	for i, x := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		AppendFloat(buf, x)
	}
	buf.WriteByte(']')
}

// AppendInt appends a numeric literal representing the value to buf.
func AppendInt(buf *bytes.Buffer, x int64) {
	var scratch [64]byte
	buf.Write(strconv.AppendInt(scratch[:0], x, 10))
}

// AppendUint appends a numeric literal representing the value to buf.
func AppendUint(buf *bytes.Buffer, x uint64) {
	var scratch [64]byte
	buf.Write(strconv.AppendUint(scratch[:0], x, 10))
}

// AppendBool appends a boolean literal to buf.
func AppendBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
}

// AppendValue appends a JSON scalar.  Values which are not strings, numbers,
// or booleans are marshalled with encoding/json; values which cannot be
// marshalled are written as null.
func AppendValue(buf *bytes.Buffer, v interface{}) {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		AppendString(buf, val)
	case bool:
		AppendBool(buf, val)
	case int:
		AppendInt(buf, int64(val))
	case int8:
		AppendInt(buf, int64(val))
	case int16:
		AppendInt(buf, int64(val))
	case int32:
		AppendInt(buf, int64(val))
	case int64:
		AppendInt(buf, val)
	case uint:
		AppendUint(buf, uint64(val))
	case uint8:
		AppendUint(buf, uint64(val))
	case uint16:
		AppendUint(buf, uint64(val))
	case uint32:
		AppendUint(buf, uint64(val))
	case uint64:
		AppendUint(buf, val)
	case float32:
		AppendFloat(buf, float64(val))
	case float64:
		AppendFloat(buf, val)
	default:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
			AppendString(buf, rv.String())
			return
		}
		js, err := json.Marshal(v)
		if nil != err {
			buf.WriteString("null")
			return
		}
		buf.Write(js)
	}
}
