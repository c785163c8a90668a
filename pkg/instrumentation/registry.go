package instrumentation

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Avi18971911/AugurSensor/pkg/trace/propagation"
	"github.com/Avi18971911/AugurSensor/pkg/trace/service"
	"go.uber.org/zap"
)

// Registry owns the switch of every initialised instrumentation.
type Registry struct {
	mu         sync.Mutex
	tracer     *service.Tracer
	propagator *propagation.Propagator
	logger     *zap.Logger
	shims      map[string]*Shim
	active     bool
}

func NewRegistry(tracer *service.Tracer, propagator *propagation.Propagator, logger *zap.Logger) *Registry {
	return &Registry{
		tracer:     tracer,
		propagator: propagator,
		logger:     logger,
		shims:      make(map[string]*Shim),
	}
}

// Init registers the instrumentation called name and returns the shim its
// wrappers go through. Initialising a name again returns the existing shim.
// New shims start active if the registry has been activated.
func (r *Registry) Init(name string) *Shim {
	r.mu.Lock()
	defer r.mu.Unlock()
	if shim, ok := r.shims[name]; ok {
		return shim
	}
	shim := NewShim(name, r.tracer, r.propagator, r.logger.With(zap.String("instrumentation", name)))
	if r.active {
		shim.Switch().Activate()
	}
	r.shims[name] = shim
	r.logger.Debug("Initialised instrumentation", zap.String("instrumentation", name))
	return shim
}

// Activate turns on every instrumentation, including ones initialised later.
func (r *Registry) Activate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = true
	for _, shim := range r.shims {
		shim.Switch().Activate()
	}
}

func (r *Registry) Deactivate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	for _, shim := range r.shims {
		shim.Switch().Deactivate()
	}
}

func (r *Registry) ActivateInstrumentation(name string) error {
	shim, err := r.lookup(name)
	if err != nil {
		return err
	}
	shim.Switch().Activate()
	return nil
}

func (r *Registry) DeactivateInstrumentation(name string) error {
	shim, err := r.lookup(name)
	if err != nil {
		return err
	}
	shim.Switch().Deactivate()
	return nil
}

func (r *Registry) IsActive(name string) bool {
	shim, err := r.lookup(name)
	return err == nil && shim.Switch().IsActive()
}

// Names returns the initialised instrumentations in alphabetical order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.shims))
	for name := range r.shims {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (*Shim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	shim, ok := r.shims[name]
	if !ok {
		return nil, fmt.Errorf("instrumentation %q: %w", name, ErrUnknownInstrumentation)
	}
	return shim, nil
}

var ErrUnknownInstrumentation = errors.New("unknown instrumentation")
