package dsl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/stepflow/agent"
	"github.com/BaSui01/stepflow/workflow"
)

// Bundle 一次解析得到的全部定义，按文档顺序排列
type Bundle struct {
	Agents    []*agent.Definition
	Workflows []*workflow.Definition
}

// Workflow returns the workflow named name.
func (b *Bundle) Workflow(name string) (*workflow.Definition, bool) {
	for _, w := range b.Workflows {
		if w.Name == name {
			return w, true
		}
	}
	return nil, false
}

// Agent returns the agent definition named name.
func (b *Bundle) Agent(name string) (*agent.Definition, bool) {
	for _, a := range b.Agents {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// Parser DSL 解析器
type Parser struct {
	validator *Validator
	logger    *zap.Logger
}

// ParserOption 解析器选项
type ParserOption func(*Parser)

// WithParserLogger 设置日志
func WithParserLogger(logger *zap.Logger) ParserOption {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewParser 创建 DSL 解析器
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		validator: NewValidator(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "dsl_parser"))
	return p
}

// ParseFile 从文件解析 DSL
func (p *Parser) ParseFile(filename string) (*Bundle, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read DSL file: %w", err)
	}
	b, err := p.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return b, nil
}

// Parse 解析多文档 YAML
// 每个文档按 kind 分派：Agent 或 Workflow，其他类型报错
func (p *Parser) Parse(data []byte) (*Bundle, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	b := &Bundle{}

	for i := 0; ; i++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse YAML document %d: %w", i, err)
		}
		if isEmptyDocument(&node) {
			continue
		}

		var h Header
		if err := node.Decode(&h); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}

		switch h.Kind {
		case agent.KindAgent:
			var def agent.Definition
			if err := node.Decode(&def); err != nil {
				return nil, fmt.Errorf("agent document %d: %w", i, err)
			}
			if err := def.Validate(); err != nil {
				return nil, fmt.Errorf("agent %q: %w", def.Name(), err)
			}
			b.Agents = append(b.Agents, &def)

		case KindWorkflow:
			var doc WorkflowDocument
			if err := node.Decode(&doc); err != nil {
				return nil, fmt.Errorf("workflow document %d: %w", i, err)
			}
			if err := p.validate(&doc); err != nil {
				return nil, fmt.Errorf("validate workflow %q: %w", doc.Metadata.Name, err)
			}
			b.Workflows = append(b.Workflows, Convert(&doc))

		default:
			return nil, fmt.Errorf("document %d: unsupported kind %q", i, h.Kind)
		}
		p.logger.Debug("parsed document", zap.String("kind", h.Kind), zap.String("name", h.Metadata.Name))
	}
	return b, nil
}

// ParseAgents 只返回 Agent 定义
func (p *Parser) ParseAgents(data []byte) ([]*agent.Definition, error) {
	b, err := p.Parse(data)
	if err != nil {
		return nil, err
	}
	return b.Agents, nil
}

// ParseWorkflow 返回第一个工作流定义，没有工作流时报错
func (p *Parser) ParseWorkflow(data []byte) (*workflow.Definition, error) {
	b, err := p.Parse(data)
	if err != nil {
		return nil, err
	}
	if len(b.Workflows) == 0 {
		return nil, errors.New("no workflow document found")
	}
	return b.Workflows[0], nil
}

// validate 验证工作流文档
func (p *Parser) validate(doc *WorkflowDocument) error {
	errs := p.validator.Validate(doc)
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("validation errors: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func isEmptyDocument(node *yaml.Node) bool {
	if node.Kind == 0 {
		return true
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return true
		}
		c := node.Content[0]
		return c.Kind == yaml.ScalarNode && c.Tag == "!!null"
	}
	return false
}

// Convert 把已验证的工作流文档转换为引擎定义
func Convert(doc *WorkflowDocument) *workflow.Definition {
	tpl := doc.Spec.Template
	name := doc.Metadata.Name
	if name == "" {
		name = tpl.Metadata.Name
	}

	def := &workflow.Definition{
		Name:   name,
		Agents: slices.Clone(tpl.Agents),
		Prompt: tpl.Prompt,
		Steps:  make([]workflow.StepDefinition, 0, len(tpl.Steps)),
	}
	for _, s := range tpl.Steps {
		def.Steps = append(def.Steps, convertStep(s))
	}
	if len(tpl.Workflows) > 0 {
		def.SubWorkflows = make(map[string]workflow.SubWorkflowRef, len(tpl.Workflows))
		for _, w := range tpl.Workflows {
			def.SubWorkflows[w.Name] = workflow.SubWorkflowRef{Name: w.Name, URL: w.URL}
		}
	}
	if ev := tpl.Event; ev != nil {
		def.Event = &workflow.EventSpec{
			Cron:  ev.Cron,
			Agent: ev.Agent,
			Steps: slices.Clone(ev.Steps),
			Exit:  ev.Exit,
		}
	}
	if exc := tpl.Exception; exc != nil {
		def.Exception = &workflow.ExceptionSpec{Name: exc.Name, Agent: exc.Agent}
	}
	return def
}

func convertStep(s StepDef) workflow.StepDefinition {
	out := workflow.StepDefinition{
		Name: s.Name,
		From: slices.Clone([]string(s.From)),
		Next: s.Next,
	}
	for _, in := range s.Inputs {
		out.Inputs = append(out.Inputs, in.From)
	}

	switch {
	case s.Agent != "":
		out.Kind = workflow.AgentStep{Agent: s.Agent}
	case s.Workflow != "":
		out.Kind = workflow.SubWorkflowStep{Workflow: s.Workflow}
	case len(s.Parallel) > 0:
		out.Kind = workflow.ParallelStep{Agents: slices.Clone(s.Parallel)}
	case s.Loop != nil:
		out.Kind = workflow.LoopStep{
			Agent:         s.Loop.Agent,
			Until:         s.Loop.Until,
			MaxIterations: s.Loop.MaxIterations,
		}
	}

	for _, c := range s.Condition {
		out.Conditions = append(out.Conditions, workflow.Condition{
			If:      c.If,
			Then:    c.Then,
			Else:    c.Else,
			Case:    c.Case,
			Do:      c.Do,
			Default: c.Default,
		})
	}
	return out
}
