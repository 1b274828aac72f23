package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// KeySeparator defines the delimiter used between slot key segments.
const KeySeparator = "::"

// KeySerializer turns a normalized cache key into the string slot a table
// stores it under. Equal keys of different integer widths, and their decimal
// string form, must map to the same slot.
type KeySerializer interface {
	SerializeKey(key any) string
}

type defaultKeySerializer struct{}

// NewDefaultKeySerializer returns the serializer used by scopes unless one
// is configured.
func NewDefaultKeySerializer() KeySerializer {
	return defaultKeySerializer{}
}

func (s defaultKeySerializer) SerializeKey(key any) string {
	if key == nil {
		return "nil"
	}

	// scalar kinds go by value so a named id type with a String method
	// shares the slot of its underlying number or text
	rv := reflect.ValueOf(key)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.SerializeKey(rv.Elem().Interface())
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64)
	}

	if str, ok := key.(fmt.Stringer); ok {
		return str.String()
	}

	if k := rv.Kind(); (k == reflect.Array || k == reflect.Slice) && rv.Type().Elem().Kind() == reflect.Uint8 {
		return fmt.Sprintf("%x", bytesOf(rv))
	}

	return jsonFallback(key)
}

func bytesOf(rv reflect.Value) []byte {
	out := make([]byte, rv.Len())
	for i := range out {
		out[i] = byte(rv.Index(i).Uint())
	}
	return out
}

func jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("fallback:%T:%v", v, v)
	}
	return "json:" + string(data)
}

// JoinKey joins slot key segments with KeySeparator.
func JoinKey(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}
