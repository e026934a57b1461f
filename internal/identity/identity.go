// Package identity turns arbitrary subscriber identifiers into canonical,
// comparable keys.
//
// Pointers and channels resolve to reference keys: two reference keys are
// equal only when they were made from the same object, and the key holds the
// object weakly so the garbage collector can still reclaim it. Everything else
// resolves to a value key built from the dynamic type and a deterministic
// rendering of the value taken at resolve time.
package identity

import (
	"errors"
	"fmt"
	"reflect"
	"weak"
)

// ErrInvalidIdentifier is returned for nil identifiers, identifiers whose
// canonical form is empty, and identifier shapes that cannot be keyed.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// Kind discriminates reference keys from value keys.
type Kind uint8

const (
	// KindValue keys compare by type and canonical rendering.
	KindValue Kind = iota + 1

	// KindReference keys compare by object identity.
	KindReference
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindReference:
		return "reference"
	default:
		return "invalid"
	}
}

// Keyer is implemented by identifiers that supply their own canonical form.
// A Keyer always resolves to a value key, even when it is a pointer.
type Keyer interface {
	IdentityKey() string
}

// Key is the canonical identity of a subscriber. Keys are comparable and may
// be used as map keys.
type Key struct {
	kind Kind
	typ  reflect.Type
	text string
	ref  weak.Pointer[byte]

	// label is the log form of a value key; text alone decides equality.
	label string
}

// Resolve returns the key for id.
func Resolve(id any) (Key, error) {
	if id == nil {
		return Key{}, fmt.Errorf("%w: identifier is nil", ErrInvalidIdentifier)
	}
	return resolve(reflect.ValueOf(id))
}

func resolve(v reflect.Value) (Key, error) {
	if isNil(v) {
		return Key{}, fmt.Errorf("%w: %s identifier is nil", ErrInvalidIdentifier, v.Type())
	}

	if keyer, ok := v.Interface().(Keyer); ok {
		text := keyer.IdentityKey()
		return valueKey(v.Type(), text, text)
	}

	switch v.Kind() {
	case reflect.Interface:
		return resolve(v.Elem())
	case reflect.Pointer, reflect.Chan:
		return Key{
			kind: KindReference,
			typ:  v.Type(),
			ref:  weak.Make((*byte)(v.UnsafePointer())),
		}, nil
	case reflect.Func, reflect.UnsafePointer, reflect.Invalid:
		return Key{}, fmt.Errorf("%w: unrecognizable identifier of kind %s", ErrInvalidIdentifier, v.Kind())
	default:
		return valueKey(v.Type(), render(v), display(v))
	}
}

func valueKey(typ reflect.Type, text, label string) (Key, error) {
	if text == "" {
		return Key{}, fmt.Errorf("%w: %s identifier has an empty canonical form", ErrInvalidIdentifier, typ)
	}
	return Key{kind: KindValue, typ: typ, text: text, label: label}, nil
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.UnsafePointer:
		return v.IsNil()
	default:
		return false
	}
}

// Kind returns the key's kind.
func (k Key) Kind() Kind {
	return k.kind
}

// IsReference reports whether k tracks an object by identity.
func (k Key) IsReference() bool {
	return k.kind == KindReference
}

// Alive reports whether the identifier behind k still exists. Value keys are
// always alive; reference keys die once the garbage collector reclaims the
// object.
func (k Key) Alive() bool {
	switch k.kind {
	case KindValue:
		return true
	case KindReference:
		return k.ref.Value() != nil
	default:
		return false
	}
}

// String renders the key as "<type>-<value>" for value keys and
// "<type>-<address>" for reference keys.
func (k Key) String() string {
	switch k.kind {
	case KindValue:
		return k.typ.String() + "-" + k.label
	case KindReference:
		if p := k.ref.Value(); p != nil {
			return fmt.Sprintf("%s-%p", k.typ, p)
		}
		return k.typ.String() + "-<reclaimed>"
	default:
		return "<invalid>"
	}
}
