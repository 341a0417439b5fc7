package workflow

import (
	"fmt"
	"maps"
	"slices"
)

// Definition 工作流定义
// 引擎在运行期间只读取定义，从不修改调用方传入的值
type Definition struct {
	Name         string                    `json:"name" yaml:"name"`
	Agents       []string                  `json:"agents,omitempty" yaml:"agents,omitempty"`
	Prompt       string                    `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Steps        []StepDefinition          `json:"steps" yaml:"steps"`
	SubWorkflows map[string]SubWorkflowRef `json:"sub_workflows,omitempty" yaml:"sub_workflows,omitempty"`
	Event        *EventSpec                `json:"event,omitempty" yaml:"event,omitempty"`
	Exception    *ExceptionSpec            `json:"exception,omitempty" yaml:"exception,omitempty"`
}

// StepDefinition 步骤定义
type StepDefinition struct {
	Name       string      `json:"name" yaml:"name"`
	Kind       StepKind    `json:"-" yaml:"-"`
	Inputs     []string    `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	From       []string    `json:"from,omitempty" yaml:"from,omitempty"`
	Next       string      `json:"next,omitempty" yaml:"next,omitempty"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// StepKind is the closed set of things a step can do: AgentStep,
// SubWorkflowStep, ParallelStep or LoopStep.
type StepKind interface {
	// KindName returns the short kind label used in logs and metrics.
	KindName() string

	stepKind()
}

// AgentStep runs a single agent.
type AgentStep struct {
	Agent string `json:"agent" yaml:"agent"`
}

// SubWorkflowStep runs a named sub-workflow as one step.
type SubWorkflowStep struct {
	Workflow string `json:"workflow" yaml:"workflow"`
}

// ParallelStep runs several agents on the same input concurrently.
type ParallelStep struct {
	Agents []string `json:"agents" yaml:"agents"`
}

// LoopStep runs one agent repeatedly, feeding each output back as input.
type LoopStep struct {
	Agent         string `json:"agent" yaml:"agent"`
	Until         string `json:"until,omitempty" yaml:"until,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
}

func (AgentStep) KindName() string       { return "agent" }
func (SubWorkflowStep) KindName() string { return "sub_workflow" }
func (ParallelStep) KindName() string    { return "parallel" }
func (LoopStep) KindName() string        { return "loop" }

func (AgentStep) stepKind()       {}
func (SubWorkflowStep) stepKind() {}
func (ParallelStep) stepKind()    {}
func (LoopStep) stepKind()        {}

// kindName returns the kind label of k, or "unknown" for a nil kind.
func kindName(k StepKind) string {
	if k == nil {
		return "unknown"
	}
	return k.KindName()
}

// Condition 条件分支
// 三种形式：{If, Then, Else}、{Case, Do}、{Default}，按声明顺序求值
type Condition struct {
	If      string `json:"if,omitempty" yaml:"if,omitempty"`
	Then    string `json:"then,omitempty" yaml:"then,omitempty"`
	Else    string `json:"else,omitempty" yaml:"else,omitempty"`
	Case    string `json:"case,omitempty" yaml:"case,omitempty"`
	Do      string `json:"do,omitempty" yaml:"do,omitempty"`
	Default string `json:"default,omitempty" yaml:"default,omitempty"`
}

// Targets returns the step names the condition can jump to.
func (c Condition) Targets() []string {
	var out []string
	for _, t := range []string{c.Then, c.Else, c.Do, c.Default} {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// SubWorkflowRef 子工作流引用
// Definition 非空时优先使用，否则通过 DefinitionLoader 解析 URL
type SubWorkflowRef struct {
	Name       string      `json:"name" yaml:"name"`
	URL        string      `json:"url,omitempty" yaml:"url,omitempty"`
	Definition *Definition `json:"definition,omitempty" yaml:"definition,omitempty"`
}

// EventSpec 定时事件定义
type EventSpec struct {
	Cron  string   `json:"cron" yaml:"cron"`
	Agent string   `json:"agent,omitempty" yaml:"agent,omitempty"`
	Steps []string `json:"steps,omitempty" yaml:"steps,omitempty"`
	Exit  string   `json:"exit,omitempty" yaml:"exit,omitempty"`
}

// ExceptionSpec 异常处理定义
type ExceptionSpec struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Agent string `json:"agent" yaml:"agent"`
}

// Step returns the step named name.
func (d *Definition) Step(name string) (StepDefinition, bool) {
	for _, s := range d.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepDefinition{}, false
}

// Validate checks the definition's internal consistency without resolving
// any agent. It reports the first structural problem it finds.
func (d *Definition) Validate() error {
	if d == nil {
		return fmt.Errorf("workflow definition is nil")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow %q has no steps", d.Name)
	}
	seen := make(map[string]bool, len(d.Steps))
	for i, s := range d.Steps {
		if s.Name == "" {
			return fmt.Errorf("step %d has no name", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate step name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Kind == nil {
			return fmt.Errorf("step %q has no kind", s.Name)
		}
	}
	for _, s := range d.Steps {
		if s.Next != "" && !seen[s.Next] {
			return fmt.Errorf("step %q: next step %q is not defined", s.Name, s.Next)
		}
		for _, c := range s.Conditions {
			for _, t := range c.Targets() {
				if !seen[t] {
					return fmt.Errorf("step %q: condition target %q is not defined", s.Name, t)
				}
			}
		}
	}
	if d.Event != nil {
		for _, name := range d.Event.Steps {
			if !seen[name] {
				return fmt.Errorf("event step %q is not defined", name)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the definition.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	out := *d
	out.Agents = slices.Clone(d.Agents)
	out.Steps = make([]StepDefinition, len(d.Steps))
	for i, s := range d.Steps {
		out.Steps[i] = s.clone()
	}
	if d.SubWorkflows != nil {
		out.SubWorkflows = make(map[string]SubWorkflowRef, len(d.SubWorkflows))
		for name, ref := range d.SubWorkflows {
			ref.Definition = ref.Definition.Clone()
			out.SubWorkflows[name] = ref
		}
	}
	if d.Event != nil {
		ev := *d.Event
		ev.Steps = slices.Clone(d.Event.Steps)
		out.Event = &ev
	}
	if d.Exception != nil {
		exc := *d.Exception
		out.Exception = &exc
	}
	return &out
}

func (s StepDefinition) clone() StepDefinition {
	out := s
	out.Inputs = slices.Clone(s.Inputs)
	out.From = slices.Clone(s.From)
	out.Conditions = slices.Clone(s.Conditions)
	if p, ok := s.Kind.(ParallelStep); ok {
		out.Kind = ParallelStep{Agents: slices.Clone(p.Agents)}
	}
	return out
}

// ReferencedAgents returns every agent name the definition refers to, in
// first-seen order: template agents, step targets, then event and exception
// agents. Agents of sub-workflows are not included.
func (d *Definition) ReferencedAgents() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, name := range d.Agents {
		add(name)
	}
	for _, s := range d.Steps {
		switch k := s.Kind.(type) {
		case AgentStep:
			add(k.Agent)
		case LoopStep:
			add(k.Agent)
		case ParallelStep:
			for _, name := range k.Agents {
				add(name)
			}
		}
	}
	if d.Event != nil {
		add(d.Event.Agent)
	}
	if d.Exception != nil {
		add(d.Exception.Agent)
	}
	return out
}

// Result is the aggregated output of a run: every completed step's output
// keyed by step name, plus the last output under FinalPromptKey.
type Result map[string]any

// FinalPromptKey is the Result key holding the last output of a run.
const FinalPromptKey = "final_prompt"

// FinalPrompt returns the last output of the run.
func (r Result) FinalPrompt() any {
	return r[FinalPromptKey]
}

// Clone returns a shallow copy of the result.
func (r Result) Clone() Result {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// ExecutionState 单次运行的执行状态
// 仅属于一次运行，不在运行之间共享
type ExecutionState struct {
	results   map[string]any
	order     []string
	Current   string
	StepIndex int
}

func newExecutionState() *ExecutionState {
	return &ExecutionState{results: make(map[string]any)}
}

// Record stores the output of a completed step. Revisits overwrite the
// previous output and keep the original position.
func (s *ExecutionState) Record(step string, output any) {
	if _, ok := s.results[step]; !ok {
		s.order = append(s.order, step)
	}
	s.results[step] = output
}

// Output returns the recorded output of step.
func (s *ExecutionState) Output(step string) (any, bool) {
	v, ok := s.results[step]
	return v, ok
}

// Completed returns the names of the completed steps in completion order.
func (s *ExecutionState) Completed() []string {
	return slices.Clone(s.order)
}

// Context returns a copy of the results suitable for handing to an agent.
func (s *ExecutionState) Context() map[string]any {
	return maps.Clone(s.results)
}

// Aggregate builds the run result with last as the final prompt.
func (s *ExecutionState) Aggregate(last any) Result {
	out := make(Result, len(s.results)+1)
	for k, v := range s.results {
		out[k] = v
	}
	out[FinalPromptKey] = last
	return out
}
