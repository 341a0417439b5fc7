// =============================================================================
// 📦 测试数据工厂 - Agent 与工作流样例
// =============================================================================
// 提供预定义的 Agent 定义和 YAML 文档，用于测试
// =============================================================================
package fixtures

import (
	"github.com/BaSui01/stepflow/agent"
)

// =============================================================================
// 🤖 Agent 定义工厂
// =============================================================================

// MockDefinition 返回使用 mock 框架的 Agent 定义
func MockDefinition(name string) *agent.Definition {
	return &agent.Definition{
		APIVersion: agent.APIVersion,
		Kind:       agent.KindAgent,
		Metadata: agent.Metadata{
			Name:   name,
			Labels: map[string]string{"app": "test"},
		},
		Spec: agent.Spec{
			Framework:    agent.FrameworkMock,
			Model:        "mock-model",
			Description:  "test agent " + name,
			Instructions: "You are " + name + ".",
		},
	}
}

// =============================================================================
// 📄 YAML 样例
// =============================================================================

// AgentsYAML 包含两个 Agent 定义的多文档 YAML
const AgentsYAML = `apiVersion: maestro/v1alpha1
kind: Agent
metadata:
  name: writer
  labels:
    app: demo
spec:
  framework: mock
  model: mock-model
  description: writes drafts
  instructions: Write a short draft.
---
apiVersion: maestro/v1alpha1
kind: Agent
metadata:
  name: reviewer
spec:
  framework: mock
  instructions: Review the draft.
  output: text
`

// WorkflowYAML 是引用 AgentsYAML 中 Agent 的工作流
const WorkflowYAML = `apiVersion: maestro/v1alpha1
kind: Workflow
metadata:
  name: draft-review
spec:
  template:
    metadata:
      name: draft-review
    agents:
      - writer
      - reviewer
    prompt: Write about Go.
    steps:
      - name: draft
        agent: writer
      - name: review
        agent: reviewer
        from: [prompt, draft]
        condition:
          - if: "contains(input, 'Mock')"
            then: done
      - name: rewrite
        agent: writer
      - name: done
        agent: reviewer
        inputs:
          - from: draft
          - from: instructions:review
`
