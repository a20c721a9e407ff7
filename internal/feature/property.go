package feature

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the type discriminator for a property value. The set of kinds is
// closed; each carries a stable string tag for external serialization.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
)

var (
	// ErrBlankPropertyName is returned when a property is constructed with a
	// blank name.
	ErrBlankPropertyName = errors.New("property name must not be blank")

	// ErrValueNotAllowed is returned when a value is not a member of the
	// property's non-empty fixed-value set.
	ErrValueNotAllowed = errors.New("property value not in fixed values")

	// ErrReadOnlyProperty is returned when changing a read-only property.
	ErrReadOnlyProperty = errors.New("property is read-only")

	// ErrPropertyType is returned when a value does not match the property's
	// kind.
	ErrPropertyType = errors.New("property value type mismatch")
)

// Property is a named, typed value attached to a feature. Like [Feature] it
// is an immutable value: [Property.WithValue] returns a new copy.
type Property struct {
	name        string
	kind        Kind
	value       any
	description string
	fixedValues []any
	readOnly    bool
}

// PropertyOption configures a property under construction.
type PropertyOption func(*Property)

// WithPropertyDescription sets the property description.
func WithPropertyDescription(description string) PropertyOption {
	return func(p *Property) { p.description = description }
}

// ReadOnly marks the property as immutable after construction.
func ReadOnly() PropertyOption {
	return func(p *Property) { p.readOnly = true }
}

// WithFixedValues restricts the property to the given allow-list. Each value
// must match the property's kind and the current value must be a member.
func WithFixedValues(values ...any) PropertyOption {
	return func(p *Property) { p.fixedValues = values }
}

func newProperty(name string, kind Kind, value any, opts ...PropertyOption) (Property, error) {
	if strings.TrimSpace(name) == "" {
		return Property{}, ErrBlankPropertyName
	}
	p := Property{name: name, kind: kind, value: value}
	for _, opt := range opts {
		opt(&p)
	}
	for _, fixed := range p.fixedValues {
		if err := checkKind(kind, fixed); err != nil {
			return Property{}, fmt.Errorf("property %q fixed value: %w", name, err)
		}
	}
	if err := p.validateValue(value); err != nil {
		return Property{}, fmt.Errorf("property %q: %w", name, err)
	}
	return p, nil
}

// NewStringProperty creates a string-valued property.
func NewStringProperty(name, value string, opts ...PropertyOption) (Property, error) {
	return newProperty(name, KindString, value, opts...)
}

// NewIntProperty creates an int-valued property.
func NewIntProperty(name string, value int, opts ...PropertyOption) (Property, error) {
	return newProperty(name, KindInt, value, opts...)
}

// NewFloatProperty creates a float-valued property.
func NewFloatProperty(name string, value float64, opts ...PropertyOption) (Property, error) {
	return newProperty(name, KindFloat, value, opts...)
}

// NewBoolProperty creates a bool-valued property.
func NewBoolProperty(name string, value bool, opts ...PropertyOption) (Property, error) {
	return newProperty(name, KindBool, value, opts...)
}

// Name returns the property name.
func (p Property) Name() string { return p.name }

// Kind returns the property's type discriminator.
func (p Property) Kind() Kind { return p.kind }

// Value returns the raw value.
func (p Property) Value() any { return p.value }

// Description returns the optional description.
func (p Property) Description() string { return p.description }

// ReadOnly reports whether the property rejects value changes.
func (p Property) ReadOnly() bool { return p.readOnly }

// FixedValues returns a copy of the allow-list, nil when unrestricted.
func (p Property) FixedValues() []any {
	if p.fixedValues == nil {
		return nil
	}
	out := make([]any, len(p.fixedValues))
	copy(out, p.fixedValues)
	return out
}

// StringValue returns the value as a string.
func (p Property) StringValue() (string, error) {
	v, ok := p.value.(string)
	if !ok {
		return "", fmt.Errorf("%w: property %q is %s", ErrPropertyType, p.name, p.kind)
	}
	return v, nil
}

// IntValue returns the value as an int.
func (p Property) IntValue() (int, error) {
	v, ok := p.value.(int)
	if !ok {
		return 0, fmt.Errorf("%w: property %q is %s", ErrPropertyType, p.name, p.kind)
	}
	return v, nil
}

// FloatValue returns the value as a float64.
func (p Property) FloatValue() (float64, error) {
	v, ok := p.value.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: property %q is %s", ErrPropertyType, p.name, p.kind)
	}
	return v, nil
}

// BoolValue returns the value as a bool.
func (p Property) BoolValue() (bool, error) {
	v, ok := p.value.(bool)
	if !ok {
		return false, fmt.Errorf("%w: property %q is %s", ErrPropertyType, p.name, p.kind)
	}
	return v, nil
}

// WithValue returns a copy holding the new value. It fails on read-only
// properties, on kind mismatch, and on values outside a non-empty
// fixed-value set.
func (p Property) WithValue(value any) (Property, error) {
	if p.readOnly {
		return Property{}, fmt.Errorf("property %q: %w", p.name, ErrReadOnlyProperty)
	}
	if err := p.validateValue(value); err != nil {
		return Property{}, fmt.Errorf("property %q: %w", p.name, err)
	}
	next := p
	next.value = value
	return next, nil
}

func (p Property) validateValue(value any) error {
	if err := checkKind(p.kind, value); err != nil {
		return err
	}
	if len(p.fixedValues) == 0 {
		return nil
	}
	for _, allowed := range p.fixedValues {
		if allowed == value {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrValueNotAllowed, value)
}

func checkKind(kind Kind, value any) error {
	ok := false
	switch kind {
	case KindString:
		_, ok = value.(string)
	case KindInt:
		_, ok = value.(int)
	case KindFloat:
		_, ok = value.(float64)
	case KindBool:
		_, ok = value.(bool)
	}
	if !ok {
		return fmt.Errorf("%w: %T is not a %s", ErrPropertyType, value, kind)
	}
	return nil
}
