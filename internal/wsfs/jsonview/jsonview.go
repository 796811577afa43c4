// Package jsonview provides a read-only view over a parsed JSON value,
// scoped to a single proxy call.
//
// It is a thin adapter over tidwall/gjson, which already does exactly the
// read-only, no-copy traversal this component needs.
package jsonview

import "github.com/tidwall/gjson"

// View borrows from an underlying JSON document. Its lifetime is bounded by
// the byte slice it was parsed from — callers must not retain a View past the
// point where that slice may be reused or discarded.
type View struct {
	result gjson.Result
}

// Parse builds a View over raw JSON bytes. If the bytes are not valid JSON,
// the returned View's Valid() reports false.
func Parse(raw []byte) View {
	if !gjson.ValidBytes(raw) {
		return View{}
	}
	return View{result: gjson.ParseBytes(raw)}
}

// Null returns a View representing JSON null.
func Null() View {
	return View{}
}

// Valid reports whether the view was parsed from well-formed JSON. It is
// false for Null() and for a path that did not resolve.
func (v View) Valid() bool {
	return v.result.Exists()
}

// IsObject reports whether the view holds a JSON object.
func (v View) IsObject() bool {
	return v.result.IsObject()
}

// IsArray reports whether the view holds a JSON array.
func (v View) IsArray() bool {
	return v.result.IsArray()
}

// Get returns the field at path (gjson dot/index syntax) as a View.
func (v View) Get(path string) View {
	return View{result: v.result.Get(path)}
}

// Index returns the i-th element of an array view.
func (v View) Index(i int) View {
	arr := v.result.Array()
	if i < 0 || i >= len(arr) {
		return View{}
	}
	return View{result: arr[i]}
}

// ArrayLen returns the number of elements in an array view, 0 otherwise.
func (v View) ArrayLen() int {
	if !v.result.IsArray() {
		return 0
	}
	return len(v.result.Array())
}

// String returns the string value, or "" if not a string.
func (v View) String() string {
	if v.result.Type != gjson.String {
		return ""
	}
	return v.result.String()
}

// IsString reports whether the view holds a JSON string.
func (v View) IsString() bool {
	return v.result.Type == gjson.String
}

// Int returns the integer value, truncating any fractional part.
func (v View) Int() int64 {
	return v.result.Int()
}

// IsNumber reports whether the view holds a JSON number.
func (v View) IsNumber() bool {
	return v.result.Type == gjson.Number
}

// Bool returns the boolean value.
func (v View) Bool() bool {
	return v.result.Bool()
}

// Exists reports whether the path resolved to a present value.
func (v View) Exists() bool {
	return v.result.Exists()
}

// Raw returns the raw JSON text backing this view.
func (v View) Raw() []byte {
	return []byte(v.result.Raw)
}
