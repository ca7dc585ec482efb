package forecast

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrUnknownModel       = errors.New("unknown model")
	ErrUpstreamContent    = errors.New("forecast service returned an error payload")
	ErrInsufficientData   = errors.New("not enough history to forecast")
	ErrModelUnavailable   = errors.New("model worker unavailable")
	ErrInvalidForecastLen = errors.New("forecast_days out of range")
)

// Output is a model's raw forecast. Lower and Upper may be empty.
type Output struct {
	Median []float64
	Lower  []float64
	Upper  []float64
}

// Model produces a horizon-step forecast from a close series.
type Model interface {
	ID() string
	Name() string
	Description() string
	Predict(ctx context.Context, closes []float64, horizon int) (Output, error)
}

// Checker is implemented by models backed by a remote worker.
type Checker interface {
	Healthy(ctx context.Context) bool
}

// ModelInfo is the public listing of one model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
}

// Registry maps model ids to implementations.
type Registry struct {
	models map[string]Model
	order  []string
}

// NewRegistry registers models in listing order.
func NewRegistry(models ...Model) *Registry {
	r := &Registry{models: make(map[string]Model, len(models))}
	for _, m := range models {
		r.Register(m)
	}
	return r
}

// Register adds or replaces a model.
func (r *Registry) Register(m Model) {
	if _, ok := r.models[m.ID()]; !ok {
		r.order = append(r.order, m.ID())
	}
	r.models[m.ID()] = m
}

// Get returns the model registered under id.
func (r *Registry) Get(id string) (Model, error) {
	m, ok := r.models[id]
	if !ok {
		ids := append([]string(nil), r.order...)
		sort.Strings(ids)
		return nil, fmt.Errorf("%w '%s'. Available: %v", ErrUnknownModel, id, ids)
	}
	return m, nil
}

// List describes every model; remote ones are health-checked.
func (r *Registry) List(ctx context.Context) []ModelInfo {
	out := make([]ModelInfo, 0, len(r.order))
	for _, id := range r.order {
		m := r.models[id]
		info := ModelInfo{ID: id, Name: m.Name(), Description: m.Description(), Available: true}
		if c, ok := m.(Checker); ok {
			info.Available = c.Healthy(ctx)
		}
		out = append(out, info)
	}
	return out
}
