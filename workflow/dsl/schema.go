package dsl

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/stepflow/agent"
)

// KindWorkflow 工作流文档类型
const KindWorkflow = "Workflow"

// Header 每个 YAML 文档共有的头部
type Header struct {
	APIVersion string         `yaml:"apiVersion" json:"apiVersion"`
	Kind       string         `yaml:"kind" json:"kind"`
	Metadata   agent.Metadata `yaml:"metadata" json:"metadata"`
}

// WorkflowDocument 工作流文档（kind: Workflow）
type WorkflowDocument struct {
	APIVersion string         `yaml:"apiVersion" json:"apiVersion"`
	Kind       string         `yaml:"kind" json:"kind"`
	Metadata   agent.Metadata `yaml:"metadata" json:"metadata"`
	Spec       WorkflowSpec   `yaml:"spec" json:"spec"`
}

// WorkflowSpec 工作流规格
type WorkflowSpec struct {
	Template TemplateDef `yaml:"template" json:"template"`
}

// TemplateDef 工作流模板
type TemplateDef struct {
	Metadata  agent.Metadata   `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Agents    []string         `yaml:"agents,omitempty" json:"agents,omitempty"`
	Prompt    string           `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Steps     []StepDef        `yaml:"steps" json:"steps"`
	Workflows []WorkflowRefDef `yaml:"workflows,omitempty" json:"workflows,omitempty"`
	Event     *EventDef        `yaml:"event,omitempty" json:"event,omitempty"`
	Exception *ExceptionDef    `yaml:"exception,omitempty" json:"exception,omitempty"`
}

// StepDef 步骤定义
// agent、workflow、parallel、loop 四者必须且只能出现一个
type StepDef struct {
	Name      string         `yaml:"name" json:"name"`
	Agent     string         `yaml:"agent,omitempty" json:"agent,omitempty"`
	Workflow  string         `yaml:"workflow,omitempty" json:"workflow,omitempty"`
	Parallel  []string       `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	Loop      *LoopDef       `yaml:"loop,omitempty" json:"loop,omitempty"`
	From      StringList     `yaml:"from,omitempty" json:"from,omitempty"`
	Inputs    []InputDef     `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Next      string         `yaml:"next,omitempty" json:"next,omitempty"`
	Condition []ConditionDef `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// InputDef 位置参数来源
type InputDef struct {
	From string `yaml:"from" json:"from"`
}

// LoopDef 循环定义
type LoopDef struct {
	Agent         string `yaml:"agent" json:"agent"`
	Until         string `yaml:"until,omitempty" json:"until,omitempty"`
	MaxIterations int    `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
}

// ConditionDef 条件分支定义
type ConditionDef struct {
	If      string `yaml:"if,omitempty" json:"if,omitempty"`
	Then    string `yaml:"then,omitempty" json:"then,omitempty"`
	Else    string `yaml:"else,omitempty" json:"else,omitempty"`
	Case    string `yaml:"case,omitempty" json:"case,omitempty"`
	Do      string `yaml:"do,omitempty" json:"do,omitempty"`
	Default string `yaml:"default,omitempty" json:"default,omitempty"`
}

// WorkflowRefDef 子工作流引用
type WorkflowRefDef struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// EventDef 定时事件定义
type EventDef struct {
	Cron  string   `yaml:"cron" json:"cron"`
	Agent string   `yaml:"agent,omitempty" json:"agent,omitempty"`
	Steps []string `yaml:"steps,omitempty" json:"steps,omitempty"`
	Exit  string   `yaml:"exit,omitempty" json:"exit,omitempty"`
}

// ExceptionDef 异常处理定义
type ExceptionDef struct {
	Name  string `yaml:"name,omitempty" json:"name,omitempty"`
	Agent string `yaml:"agent" json:"agent"`
}

// StringList accepts either a scalar or a sequence of scalars.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
}
