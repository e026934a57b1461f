package identity

import (
	"reflect"

	"github.com/davecgh/go-spew/spew"
)

// renderer produces the canonical text of value identifiers. Map keys are
// sorted and addresses, capacities and user String methods are left out so
// equal values always render identically. Dumps quote strings and name the
// dynamic type of every element, so distinct values never share a rendering.
var renderer = spew.ConfigState{
	Indent:                  " ",
	SortKeys:                true,
	SpewKeys:                true,
	DisableMethods:          true,
	DisablePointerMethods:   true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// render returns the canonical text of v, compared for equality.
func render(v reflect.Value) string {
	if v.Kind() == reflect.String {
		return v.String()
	}
	return renderer.Sdump(v.Interface())
}

// display returns the compact form of v used in log output.
func display(v reflect.Value) string {
	if v.Kind() == reflect.String {
		return v.String()
	}
	return renderer.Sprint(v.Interface())
}
