// Package featflip provides client interfaces and domain types for the
// featflip feature toggle service.
//
// Use the http sub-package to create a client:
//
//	import featflip "github.com/featflip/featflip/clients/go/http"
package featflip

import "context"

// FeatureManager covers CRUD operations on features.
type FeatureManager interface {
	CreateFeature(ctx context.Context, f Feature) (Feature, error)
	GetFeature(ctx context.Context, uid string) (Feature, error)
	ListFeatures(ctx context.Context) (map[string]Feature, error)
	UpdateFeature(ctx context.Context, f Feature) (Feature, error)
	DeleteFeature(ctx context.Context, uid string) error
}

// Toggler covers enablement and grouping operations.
type Toggler interface {
	Enable(ctx context.Context, uid string) error
	Disable(ctx context.Context, uid string) error
	Toggle(ctx context.Context, uid string) error
	EnableGroup(ctx context.Context, group string) error
	DisableGroup(ctx context.Context, group string) error
}

// Checker resolves the effective state of features.
type Checker interface {
	Check(ctx context.Context, uid string, evalCtx map[string]any) (bool, error)
	CheckBatch(ctx context.Context, reqs []CheckRequest) ([]CheckResult, error)
}

// Feature is the wire representation of a feature toggle.
type Feature struct {
	Uid         string              `json:"uid"`
	Enabled     bool                `json:"enabled"`
	Description string              `json:"description,omitempty"`
	Group       string              `json:"group,omitempty"`
	Permissions []string            `json:"permissions,omitempty"`
	Strategy    *Strategy           `json:"strategy,omitempty"`
	Properties  map[string]Property `json:"custom_properties,omitempty"`
}

// Strategy describes a server-side flipping strategy by its registered type.
type Strategy struct {
	Type       string            `json:"type"`
	InitParams map[string]string `json:"init_params,omitempty"`
}

// Property is a typed key/value attached to a feature.
type Property struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string" | "int" | "float" | "bool"
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
	FixedValues []any  `json:"fixed_values,omitempty"`
	ReadOnly    bool   `json:"read_only,omitempty"`
}

// CheckRequest is a single feature check.
type CheckRequest struct {
	Uid     string         `json:"uid"`
	Context map[string]any `json:"context,omitempty"`
}

// CheckResult is the outcome of a single feature check.
type CheckResult struct {
	Uid     string `json:"uid"`
	Enabled bool   `json:"enabled"`
}
