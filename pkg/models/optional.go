package models

import (
	"bytes"
	"encoding/json"
)

// Optional marks a field the upstream source may leave out. The zero
// value is absent.
type Optional[T any] struct {
	Value T
	Valid bool
}

// Some returns a present value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Valid: true}
}

// None returns an absent value.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Valid
}

// OrElse returns the value, or def when absent.
func (o Optional[T]) OrElse(def T) T {
	if !o.Valid {
		return def
	}
	return o.Value
}

// Or returns o when present and other otherwise.
func (o Optional[T]) Or(other Optional[T]) Optional[T] {
	if o.Valid {
		return o
	}
	return other
}

// MarshalJSON encodes an absent value as null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UnmarshalJSON treats null as absent.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// FromPtr converts a possibly nil pointer.
func FromPtr[T any](p *T) Optional[T] {
	if p == nil {
		return Optional[T]{}
	}
	return Some(*p)
}

// NonEmpty treats "" as absent.
func NonEmpty(s string) Optional[string] {
	if s == "" {
		return Optional[string]{}
	}
	return Some(s)
}
