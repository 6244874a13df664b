package sim

import "sort"

// PipelineSource produces the base value of a pipeline for one simulant.
type PipelineSource func(i int) float64

// PipelineModifier transforms a pipeline value for one simulant. Modifiers
// must be pure functions of the current value and simulant attributes.
type PipelineModifier func(i int, value float64) float64

// DefaultModifierPriority is where risk effects and interventions register
// unless they need to run before or after the pack.
const DefaultModifierPriority = 50

type registeredModifier struct {
	priority int
	order    int
	fn       PipelineModifier
}

// Pipeline is a named computation over the population table producing one
// numeric value per simulant. Evaluation applies the base source, then all
// modifiers in ascending priority (registration order breaks ties), and never
// mutates population state.
type Pipeline struct {
	name      string
	source    PipelineSource
	modifiers []registeredModifier
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// EvaluateOne computes the final value for a single simulant.
func (p *Pipeline) EvaluateOne(i int) float64 {
	v := p.source(i)
	for _, m := range p.modifiers {
		v = m.fn(i, v)
	}
	return v
}

// Evaluate computes final values for a set of simulants.
func (p *Pipeline) Evaluate(indices []int) []float64 {
	out := make([]float64, len(indices))
	for n, i := range indices {
		out[n] = p.EvaluateOne(i)
	}
	return out
}

// PipelineRegistry holds every named value pipeline in a run.
type PipelineRegistry struct {
	pipelines map[string]*Pipeline
	nextOrder int
}

// NewPipelineRegistry returns an empty registry.
func NewPipelineRegistry() *PipelineRegistry {
	return &PipelineRegistry{pipelines: make(map[string]*Pipeline)}
}

// Register defines a new pipeline from a base source.
func (r *PipelineRegistry) Register(name string, source PipelineSource) (*Pipeline, error) {
	if _, ok := r.pipelines[name]; ok {
		return nil, configErrorf("pipeline %q already registered", name)
	}
	p := &Pipeline{name: name, source: source}
	r.pipelines[name] = p
	return p, nil
}

// RegisterModifier attaches a modifier to an existing pipeline.
func (r *PipelineRegistry) RegisterModifier(name string, priority int, fn PipelineModifier) error {
	p, ok := r.pipelines[name]
	if !ok {
		return &UnknownPipelineError{Pipeline: name}
	}
	p.modifiers = append(p.modifiers, registeredModifier{
		priority: priority,
		order:    r.nextOrder,
		fn:       fn,
	})
	r.nextOrder++
	sort.SliceStable(p.modifiers, func(a, b int) bool {
		if p.modifiers[a].priority != p.modifiers[b].priority {
			return p.modifiers[a].priority < p.modifiers[b].priority
		}
		return p.modifiers[a].order < p.modifiers[b].order
	})
	return nil
}

// Get returns a registered pipeline, or UnknownPipelineError.
func (r *PipelineRegistry) Get(name string) (*Pipeline, error) {
	p, ok := r.pipelines[name]
	if !ok {
		return nil, &UnknownPipelineError{Pipeline: name}
	}
	return p, nil
}
