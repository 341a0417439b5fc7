package dsl

import (
	"fmt"

	"github.com/BaSui01/stepflow/agent"
)

// Validator DSL 验证器
type Validator struct{}

// NewValidator 创建验证器
func NewValidator() *Validator {
	return &Validator{}
}

// Validate 验证工作流文档，返回发现的全部问题
func (v *Validator) Validate(doc *WorkflowDocument) []error {
	if doc == nil {
		return []error{fmt.Errorf("workflow document is nil")}
	}
	var errs []error

	// 基础字段验证
	if doc.APIVersion != agent.APIVersion {
		errs = append(errs, fmt.Errorf("unsupported apiVersion %q", doc.APIVersion))
	}
	if doc.Kind != KindWorkflow {
		errs = append(errs, fmt.Errorf("kind must be %q, got %q", KindWorkflow, doc.Kind))
	}
	if doc.Metadata.Name == "" && doc.Spec.Template.Metadata.Name == "" {
		errs = append(errs, fmt.Errorf("metadata.name is required"))
	}

	tpl := &doc.Spec.Template
	if len(tpl.Steps) == 0 {
		errs = append(errs, fmt.Errorf("spec.template.steps must have at least one step"))
	}

	// 收集步骤名与子工作流名
	stepNames := make(map[string]bool, len(tpl.Steps))
	for i, s := range tpl.Steps {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("step %d: name is required", i))
			continue
		}
		if stepNames[s.Name] {
			errs = append(errs, fmt.Errorf("duplicate step name: %s", s.Name))
		}
		stepNames[s.Name] = true
	}
	workflows := make(map[string]bool, len(tpl.Workflows))
	for i, w := range tpl.Workflows {
		if w.Name == "" {
			errs = append(errs, fmt.Errorf("workflows[%d]: name is required", i))
			continue
		}
		if w.URL == "" {
			errs = append(errs, fmt.Errorf("workflow %s: url is required", w.Name))
		}
		if workflows[w.Name] {
			errs = append(errs, fmt.Errorf("duplicate workflow reference: %s", w.Name))
		}
		workflows[w.Name] = true
	}

	// 验证每个步骤
	for i := range tpl.Steps {
		errs = append(errs, v.validateStep(&tpl.Steps[i], stepNames, workflows)...)
	}

	// 事件与异常
	if ev := tpl.Event; ev != nil {
		if ev.Cron == "" {
			errs = append(errs, fmt.Errorf("event: cron is required"))
		}
		for _, name := range ev.Steps {
			if !stepNames[name] {
				errs = append(errs, fmt.Errorf("event: step %q does not exist", name))
			}
		}
	}
	if exc := tpl.Exception; exc != nil && exc.Agent == "" {
		errs = append(errs, fmt.Errorf("exception: agent is required"))
	}

	return errs
}

// validateStep 验证单个步骤
func (v *Validator) validateStep(s *StepDef, stepNames, workflows map[string]bool) []error {
	var errs []error
	label := s.Name
	if label == "" {
		label = "<unnamed>"
	}

	kinds := 0
	if s.Agent != "" {
		kinds++
	}
	if s.Workflow != "" {
		kinds++
		if !workflows[s.Workflow] {
			errs = append(errs, fmt.Errorf("step %s: workflow %q is not declared in workflows", label, s.Workflow))
		}
	}
	if len(s.Parallel) > 0 {
		kinds++
	}
	if s.Loop != nil {
		kinds++
		if s.Loop.Agent == "" {
			errs = append(errs, fmt.Errorf("step %s: loop.agent is required", label))
		}
		if s.Loop.Until == "" && s.Loop.MaxIterations == 0 {
			errs = append(errs, fmt.Errorf("step %s: loop needs until or max_iterations", label))
		}
		if s.Loop.MaxIterations < 0 {
			errs = append(errs, fmt.Errorf("step %s: loop.max_iterations must not be negative", label))
		}
	}
	switch kinds {
	case 0:
		errs = append(errs, fmt.Errorf("step %s: one of agent, workflow, parallel or loop is required", label))
	case 1:
	default:
		errs = append(errs, fmt.Errorf("step %s: agent, workflow, parallel and loop are mutually exclusive", label))
	}

	for i, in := range s.Inputs {
		if in.From == "" {
			errs = append(errs, fmt.Errorf("step %s: inputs[%d].from is required", label, i))
		}
	}
	if s.Next != "" && !stepNames[s.Next] {
		errs = append(errs, fmt.Errorf("step %s: next step %q does not exist", label, s.Next))
	}

	for i, c := range s.Condition {
		switch {
		case c.If != "":
			if c.Then == "" {
				errs = append(errs, fmt.Errorf("step %s: condition[%d] needs then", label, i))
			}
		case c.Case != "":
			if c.Do == "" {
				errs = append(errs, fmt.Errorf("step %s: condition[%d] needs do", label, i))
			}
		case c.Default != "":
		default:
			errs = append(errs, fmt.Errorf("step %s: condition[%d] needs if, case or default", label, i))
		}
		for _, target := range []string{c.Then, c.Else, c.Do, c.Default} {
			if target != "" && !stepNames[target] {
				errs = append(errs, fmt.Errorf("step %s: condition target %q does not exist", label, target))
			}
		}
	}
	return errs
}
