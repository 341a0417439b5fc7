package workflow

import (
	"context"
	"errors"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/BaSui01/stepflow/agent"
	"github.com/BaSui01/stepflow/agent/persistence"
	"github.com/BaSui01/stepflow/types"
	"github.com/BaSui01/stepflow/workflow/expr"
)

// bindRoot builds the run's handle table and binds the engine definition.
// Nothing is executed; every error returned is a configuration error.
func (r *run) bindRoot(ctx context.Context) (*boundWorkflow, error) {
	if err := r.createDefinedAgents(ctx); err != nil {
		return nil, err
	}
	return r.bind(ctx, r.engine.def, nil)
}

// createDefinedAgents constructs every caller supplied definition and saves
// it to the registry. Preloaded agents of the same name win.
func (r *run) createDefinedAgents(ctx context.Context) error {
	e := r.engine
	for _, def := range e.agentDefs {
		name := def.Name()
		if _, ok := e.preloaded[name]; ok {
			r.handles.put(name, e.preloaded[name], false)
			continue
		}
		a, err := e.factory.Create(def)
		if err != nil {
			return types.Errorf(types.ErrConfiguration, "create agent %q", name).WithCause(err)
		}
		r.handles.put(name, a, true)

		if err := e.store.Save(ctx, persistence.Record{Name: name, Definition: def}); err != nil {
			return types.Errorf(types.ErrConfiguration, "save agent %q", name).WithCause(err)
		}
		r.logger.Debug("agent created", zap.String("agent", name), zap.String("framework", def.Framework()))
	}
	return nil
}

// materialize makes sure every name has a handle: preloaded first, then
// ones already created by this run, then the registry.
func (r *run) materialize(ctx context.Context, names []string) error {
	e := r.engine
	for _, name := range names {
		if _, ok := r.handles.get(name); ok {
			continue
		}
		if a, ok := e.preloaded[name]; ok {
			r.handles.put(name, a, false)
			continue
		}

		rec, err := e.store.Restore(ctx, name)
		if errors.Is(err, persistence.ErrNotFound) {
			return types.Errorf(types.ErrAgentNotFound, "agent %q is not defined", name)
		}
		if err != nil {
			return types.Errorf(types.ErrConfiguration, "restore agent %q", name).WithCause(err)
		}

		switch {
		case rec.Live && rec.Agent != nil:
			r.handles.put(name, rec.Agent, false)
			r.logger.Debug("agent restored", zap.String("agent", name), zap.Bool("live", true))
		case rec.Definition != nil:
			a, err := e.factory.Create(rec.Definition)
			if err != nil {
				return types.Errorf(types.ErrConfiguration, "create agent %q", name).WithCause(err)
			}
			r.handles.put(name, a, true)
			r.logger.Debug("agent restored", zap.String("agent", name), zap.Bool("live", false))
		default:
			return types.Errorf(types.ErrAgentNotFound, "agent %q has no definition", name)
		}
	}
	return nil
}

// bind resolves def against the run's handles. stack holds the names of
// the enclosing workflows and rejects cyclic sub-workflow references.
func (r *run) bind(ctx context.Context, def *Definition, stack []string) (*boundWorkflow, error) {
	if err := def.Validate(); err != nil {
		return nil, types.NewError(types.ErrConfiguration, "invalid workflow definition").WithCause(err)
	}
	if err := r.materialize(ctx, def.ReferencedAgents()); err != nil {
		return nil, err
	}
	stack = append(slices.Clone(stack), def.Name)

	bw := &boundWorkflow{
		def:   def,
		index: make(map[string]int, len(def.Steps)),
	}
	instructions := make(map[string]string)

	for i, s := range def.Steps {
		bs, err := r.bindStep(ctx, def, s, stack)
		if err != nil {
			return nil, err
		}
		if len(bs.agents) > 0 {
			if in, ok := bs.agents[0].(agent.Instructor); ok {
				instructions[s.Name] = in.Instructions()
			}
		}
		bw.index[s.Name] = i
		bw.steps = append(bw.steps, bs)
	}
	bw.instructions = func(step string) (string, bool) {
		v, ok := instructions[step]
		return v, ok
	}

	if def.Exception != nil && def.Exception.Agent != "" {
		bw.handler, _ = r.handles.get(def.Exception.Agent)
	}
	if def.Event != nil {
		sched, err := r.bindEvent(bw)
		if err != nil {
			return nil, err
		}
		bw.scheduler = sched
	}
	return bw, nil
}

func (r *run) bindStep(ctx context.Context, def *Definition, s StepDefinition, stack []string) (*boundStep, error) {
	bs := &boundStep{def: s}

	switch k := s.Kind.(type) {
	case AgentStep:
		a, err := r.lookup(k.Agent, s.Name)
		if err != nil {
			return nil, err
		}
		bs.target = k.Agent
		bs.agents = []agent.Agent{a}
		bs.exec = &agentExecutor{run: r, step: s.Name, agent: a}

	case LoopStep:
		a, err := r.lookup(k.Agent, s.Name)
		if err != nil {
			return nil, err
		}
		if k.Until == "" && k.MaxIterations == 0 {
			return nil, types.NewError(types.ErrConfiguration, "loop needs until or max_iterations").WithStep(s.Name)
		}
		if k.MaxIterations < 0 {
			return nil, types.Errorf(types.ErrConfiguration, "invalid max_iterations %d", k.MaxIterations).WithStep(s.Name)
		}
		le := &loopExecutor{run: r, step: s.Name, agent: a, maxIterations: k.MaxIterations}
		if k.Until != "" {
			p, err := expr.Compile(k.Until)
			if err != nil {
				return nil, types.NewError(types.ErrConfiguration, "invalid loop until predicate").WithStep(s.Name).WithCause(err)
			}
			le.until = p
		}
		if le.maxIterations == 0 {
			le.maxIterations = r.engine.loopLimit
		}
		bs.target = k.Agent
		bs.agents = []agent.Agent{a}
		bs.exec = le

	case ParallelStep:
		if len(k.Agents) == 0 {
			return nil, types.NewError(types.ErrConfiguration, "parallel step has no agents").WithStep(s.Name)
		}
		members := make([]agent.Agent, 0, len(k.Agents))
		for _, name := range k.Agents {
			a, err := r.lookup(name, s.Name)
			if err != nil {
				return nil, err
			}
			members = append(members, a)
		}
		bs.target = joinNames(members)
		bs.agents = members
		bs.exec = &parallelExecutor{run: r, step: s.Name, agents: members}

	case SubWorkflowStep:
		child, err := r.resolveSubWorkflow(ctx, def, k.Workflow, s.Name)
		if err != nil {
			return nil, err
		}
		if slices.Contains(stack, child.Name) {
			return nil, types.Errorf(types.ErrConfiguration, "sub-workflow %q is referenced recursively", child.Name).WithStep(s.Name)
		}
		nested := r.nested(child.Name)
		bound, err := nested.bind(ctx, child, stack)
		if err != nil {
			return nil, err
		}
		bs.target = child.Name
		bs.exec = &subWorkflowExecutor{run: nested, bound: bound}

	default:
		return nil, types.Errorf(types.ErrConfiguration, "unsupported step kind %T", s.Kind).WithStep(s.Name)
	}

	if len(s.Conditions) > 0 || s.Next != "" {
		branches, err := compileConditions(s.Name, s.Conditions)
		if err != nil {
			return nil, err
		}
		bs.exec = &conditionalExecutor{inner: bs.exec, step: s.Name, branches: branches, next: s.Next}
	}
	return bs, nil
}

// lookup returns a materialized agent.
func (r *run) lookup(name, step string) (agent.Agent, error) {
	a, ok := r.handles.get(name)
	if !ok {
		return nil, types.Errorf(types.ErrUnresolvedReference, "agent %q is not bound", name).WithStep(step)
	}
	return a, nil
}

func (r *run) resolveSubWorkflow(ctx context.Context, def *Definition, name, step string) (*Definition, error) {
	ref, ok := def.SubWorkflows[name]
	if !ok {
		return nil, types.Errorf(types.ErrUnresolvedReference, "sub-workflow %q is not declared", name).WithStep(step)
	}
	var child *Definition
	switch {
	case ref.Definition != nil:
		child = ref.Definition
	case ref.URL != "" && r.engine.loader != nil:
		loaded, err := r.engine.loader.Load(ctx, ref)
		if err != nil {
			return nil, types.Errorf(types.ErrUnresolvedReference, "load sub-workflow %q from %q", name, ref.URL).
				WithStep(step).WithCause(err)
		}
		child = loaded
	default:
		return nil, types.Errorf(types.ErrUnresolvedReference, "sub-workflow %q has no definition", name).WithStep(step)
	}
	if child == nil {
		return nil, types.Errorf(types.ErrUnresolvedReference, "sub-workflow %q resolved to nothing", name).WithStep(step)
	}
	if child.Name == "" {
		child = child.Clone()
		child.Name = name
	}
	return child, nil
}

// bindEvent creates the run's event scheduler. Firing runs the event agent
// on the current final prompt, then walks the event steps seeded with it.
func (r *run) bindEvent(bw *boundWorkflow) (*EventScheduler, error) {
	ev := bw.def.Event
	var evAgent agent.Agent
	if ev.Agent != "" {
		a, err := r.lookup(ev.Agent, "event")
		if err != nil {
			return nil, err
		}
		evAgent = a
	}
	var sub *boundWorkflow
	start := 0
	if len(ev.Steps) > 0 {
		sub, start = bw.subset(ev.Steps)
	}

	fire := func(ctx context.Context, aggregate Result) (Result, error) {
		out := aggregate.Clone()
		if evAgent != nil {
			v, err := r.invoke(ctx, invocation{
				step:  "event",
				agent: evAgent,
				req:   agent.NewRequest(out[FinalPromptKey], 0),
			})
			if err != nil {
				return nil, err
			}
			out[evAgent.Name()] = v
			out[FinalPromptKey] = v
		}
		if sub != nil {
			res, err := r.walk(ctx, sub, start, agent.Stringify(out[FinalPromptKey]), nil)
			if err != nil {
				return nil, err
			}
			maps.Copy(out, res)
		}
		return out, nil
	}

	e := r.engine
	return NewEventScheduler(bw.def.Name, *ev, fire,
		WithTickInterval(e.pollInterval),
		WithSchedulerClock(e.clock),
		WithSchedulerLogger(r.logger),
		WithSchedulerMetrics(e.metrics),
	)
}
