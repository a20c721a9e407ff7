package feature

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/featflip/featflip/internal/evalctx"
)

// ErrUnknownStrategy is returned when a strategy tag has no registered
// factory.
var ErrUnknownStrategy = errors.New("unknown strategy type")

// StoreReader is the narrow read-only store view handed to strategies, so an
// evaluation can inspect other features without gaining mutation access.
type StoreReader interface {
	Get(ctx context.Context, uid string) (*Feature, error)
	GetAll(ctx context.Context) (map[string]*Feature, error)
}

// Strategy decides whether an enabled feature is effectively on for a given
// evaluation. Implementations carry an immutable configuration captured at
// construction and a stable type tag used as the serialization discriminator.
type Strategy interface {
	// Tag returns the stable type discriminator for this strategy kind.
	Tag() string

	// InitParams returns the configuration captured at construction.
	InitParams() map[string]string

	// Evaluate decides enablement for uid. It may read other features
	// through reader and evaluation parameters through ec.
	Evaluate(ctx context.Context, uid string, reader StoreReader, ec *evalctx.Context) (bool, error)
}

// AlwaysOn is the default strategy: it reports every feature as enabled.
// Concrete decision strategies (percentage rollout, region, time window)
// plug in through [RegisterStrategy].
type AlwaysOn struct{}

// AlwaysOnTag is the type discriminator for [AlwaysOn].
const AlwaysOnTag = "always-on"

func (AlwaysOn) Tag() string { return AlwaysOnTag }

func (AlwaysOn) InitParams() map[string]string { return map[string]string{} }

func (AlwaysOn) Evaluate(context.Context, string, StoreReader, *evalctx.Context) (bool, error) {
	return true, nil
}

// StrategyFactory builds a strategy from its serialized init parameters.
type StrategyFactory func(initParams map[string]string) (Strategy, error)

var (
	strategyMu        sync.RWMutex
	strategyFactories = map[string]StrategyFactory{
		AlwaysOnTag: func(map[string]string) (Strategy, error) { return AlwaysOn{}, nil },
	}
)

// RegisterStrategy registers a factory for the given type tag, replacing any
// previous registration.
func RegisterStrategy(tag string, factory StrategyFactory) {
	strategyMu.Lock()
	defer strategyMu.Unlock()
	strategyFactories[tag] = factory
}

// NewStrategy builds a strategy from its type tag and init parameters.
func NewStrategy(tag string, initParams map[string]string) (Strategy, error) {
	strategyMu.RLock()
	factory, ok := strategyFactories[tag]
	strategyMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, tag)
	}
	return factory(initParams)
}

// StrategyDescriptor is the serialized form of a strategy: its type tag plus
// the init parameters needed to rebuild it.
type StrategyDescriptor struct {
	Type       string            `json:"type"`
	InitParams map[string]string `json:"init_params,omitempty"`
}

// DescribeStrategy returns the serializable descriptor for s, nil for nil.
func DescribeStrategy(s Strategy) *StrategyDescriptor {
	if s == nil {
		return nil
	}
	return &StrategyDescriptor{Type: s.Tag(), InitParams: s.InitParams()}
}
