package feature

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrUnknownKind is returned when deserializing a property with an
// unrecognized type tag.
var ErrUnknownKind = errors.New("unknown property kind")

type propertyJSON struct {
	Name        string `json:"name"`
	Type        Kind   `json:"type"`
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
	FixedValues []any  `json:"fixed_values,omitempty"`
	ReadOnly    bool   `json:"read_only,omitempty"`
}

// MarshalJSON serializes the property with its type discriminator.
func (p Property) MarshalJSON() ([]byte, error) {
	return json.Marshal(propertyJSON{
		Name:        p.name,
		Type:        p.kind,
		Value:       p.value,
		Description: p.description,
		FixedValues: p.fixedValues,
		ReadOnly:    p.readOnly,
	})
}

// UnmarshalJSON rebuilds a property from its serialized form, re-running
// construction validation.
func (p *Property) UnmarshalJSON(data []byte) error {
	var raw propertyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	value, err := coerceJSONValue(raw.Type, raw.Value)
	if err != nil {
		return fmt.Errorf("property %q: %w", raw.Name, err)
	}

	opts := make([]PropertyOption, 0, 3)
	if raw.Description != "" {
		opts = append(opts, WithPropertyDescription(raw.Description))
	}
	if raw.ReadOnly {
		opts = append(opts, ReadOnly())
	}
	if len(raw.FixedValues) > 0 {
		fixed := make([]any, 0, len(raw.FixedValues))
		for _, fv := range raw.FixedValues {
			coerced, err := coerceJSONValue(raw.Type, fv)
			if err != nil {
				return fmt.Errorf("property %q fixed value: %w", raw.Name, err)
			}
			fixed = append(fixed, coerced)
		}
		opts = append(opts, WithFixedValues(fixed...))
	}

	built, err := newProperty(raw.Name, raw.Type, value, opts...)
	if err != nil {
		return err
	}
	*p = built
	return nil
}

// coerceJSONValue converts a decoded JSON value to the Go type the kind
// expects. JSON numbers arrive as float64 regardless of the declared kind.
func coerceJSONValue(kind Kind, raw any) (any, error) {
	switch kind {
	case KindString, KindBool, KindFloat:
		return raw, nil
	case KindInt:
		f, ok := raw.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not a %s", ErrPropertyType, raw, kind)
		}
		if math.Trunc(f) != f {
			return nil, fmt.Errorf("%w: %v is not a whole number", ErrPropertyType, f)
		}
		return int(f), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

type featureJSON struct {
	Uid         string              `json:"uid"`
	Enabled     bool                `json:"enabled"`
	Description string              `json:"description,omitempty"`
	Group       string              `json:"group,omitempty"`
	Permissions []string            `json:"permissions,omitempty"`
	Strategy    *StrategyDescriptor `json:"strategy,omitempty"`
	Properties  map[string]Property `json:"custom_properties,omitempty"`
}

// MarshalJSON serializes the feature, describing its strategy by type tag.
func (f *Feature) MarshalJSON() ([]byte, error) {
	out := featureJSON{
		Uid:         f.uid,
		Enabled:     f.enabled,
		Description: f.description,
		Group:       f.group,
		Strategy:    DescribeStrategy(f.strategy),
	}
	if len(f.permissions) > 0 {
		out.Permissions = f.Permissions()
	}
	if len(f.properties) > 0 {
		out.Properties = f.Properties()
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds a feature, reifying its strategy through the
// registered factories and re-running construction validation.
func (f *Feature) UnmarshalJSON(data []byte) error {
	var raw featureJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	opts := make([]Option, 0, 5)
	if raw.Enabled {
		opts = append(opts, Enabled())
	}
	if raw.Description != "" {
		opts = append(opts, WithDescription(raw.Description))
	}
	if raw.Group != "" {
		opts = append(opts, InGroup(raw.Group))
	}
	if len(raw.Permissions) > 0 {
		opts = append(opts, WithPermissions(raw.Permissions...))
	}
	if raw.Strategy != nil {
		strategy, err := NewStrategy(raw.Strategy.Type, raw.Strategy.InitParams)
		if err != nil {
			return err
		}
		opts = append(opts, WithStrategy(strategy))
	}
	if len(raw.Properties) > 0 {
		props := make([]Property, 0, len(raw.Properties))
		for _, p := range raw.Properties {
			props = append(props, p)
		}
		opts = append(opts, WithProperties(props...))
	}

	built, err := New(raw.Uid, opts...)
	if err != nil {
		return err
	}
	*f = *built
	return nil
}
