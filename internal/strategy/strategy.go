// Package strategy defines the Strategy interface for signal-generation
// policies and a Registry that builds them from configuration.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"algotrader/internal/domain"
	"algotrader/internal/indicator"
	"algotrader/internal/marketdata"
)

// ErrUnknownStrategy is returned when a strategy name is not one of the known
// kinds.
var ErrUnknownStrategy = errors.New("strategy: unknown strategy")

// Kind identifies one of the closed set of strategy variants.
type Kind string

const (
	KindSMACrossover   Kind = "sma_crossover"
	KindRSI            Kind = "rsi"
	KindMACD           Kind = "macd"
	KindMultiIndicator Kind = "multi_indicator"
)

// Kinds lists every known strategy kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindSMACrossover, KindRSI, KindMACD, KindMultiIndicator}
}

// ParseKind resolves a strategy name. Matching is case-insensitive and
// accepts hyphens in place of underscores.
func ParseKind(name string) (Kind, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for _, k := range Kinds() {
		if string(k) == norm {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Config describes one strategy instance. RiskManagement is carried for
// callers that wire a risk manager; strategies do not read it.
type Config struct {
	Name           string         `json:"name" yaml:"name"`
	Symbol         string         `json:"symbol" yaml:"symbol"`
	Parameters     Params         `json:"parameters,omitempty" yaml:"parameters"`
	RiskManagement map[string]any `json:"risk_management,omitempty" yaml:"risk_management"`
}

// Strategy is the interface that all signal-generation policies implement.
type Strategy interface {
	// Name returns the configured name of this strategy.
	Name() string

	// Kind returns the variant this strategy implements.
	Kind() Kind

	// Symbol returns the symbol this strategy trades.
	Symbol() string

	// Init loads the warm-up history that precedes asOf.
	Init(ctx context.Context, asOf time.Time) error

	// RequiredIndicators lists the indicator families the strategy reads.
	RequiredIndicators() []string

	// GenerateSignals evaluates the strategy at the last bar of bars, which
	// must be the chronological prefix of the run ending at the current step.
	// It returns zero or one signal.
	GenerateSignals(ctx context.Context, bars []domain.Bar) ([]domain.Signal, error)

	// Calculator returns the calculator used for the most recent evaluation,
	// or one over the warm-up history before the first evaluation.
	Calculator() *indicator.Calculator
}

// Deps are the collaborators handed to every strategy factory.
type Deps struct {
	Provider marketdata.Provider
	Logger   *slog.Logger
}

// Factory builds a strategy from its configuration.
type Factory func(cfg Config, deps Deps) (Strategy, error)

// Registry maps strategy kinds to factories.
type Registry struct {
	factories map[Kind]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// Register adds a factory for kind, replacing any previous one.
func (r *Registry) Register(kind Kind, f Factory) {
	r.factories[kind] = f
}

// New builds the strategy named by cfg.Name.
func (r *Registry) New(cfg Config, deps Deps) (Strategy, error) {
	kind, err := ParseKind(cfg.Name)
	if err != nil {
		return nil, err
	}
	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not registered", ErrUnknownStrategy, cfg.Name)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return f(cfg, deps)
}

// Has reports whether a factory is registered for name.
func (r *Registry) Has(name string) bool {
	kind, err := ParseKind(name)
	if err != nil {
		return false
	}
	_, ok := r.factories[kind]
	return ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for k := range r.factories {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return names
}
