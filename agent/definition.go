package agent

import (
	"errors"
	"fmt"
	"strings"
)

// APIVersion is the only definition schema version understood.
const APIVersion = "maestro/v1alpha1"

// KindAgent is the document kind of an agent definition.
const KindAgent = "Agent"

// Definition describes how to build an agent.
type Definition struct {
	APIVersion string   `yaml:"apiVersion" json:"apiVersion"`
	Kind       string   `yaml:"kind" json:"kind"`
	Metadata   Metadata `yaml:"metadata" json:"metadata"`
	Spec       Spec     `yaml:"spec" json:"spec"`
}

// Metadata identifies a definition.
type Metadata struct {
	Name   string            `yaml:"name" json:"name"`
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// Spec is the framework-specific part of a definition.
type Spec struct {
	Framework    string   `yaml:"framework,omitempty" json:"framework,omitempty"`
	Mode         string   `yaml:"mode,omitempty" json:"mode,omitempty"` // "local" or "remote"
	Model        string   `yaml:"model,omitempty" json:"model,omitempty"`
	URL          string   `yaml:"url,omitempty" json:"url,omitempty"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`
	Instructions string   `yaml:"instructions,omitempty" json:"instructions,omitempty"`
	Input        string   `yaml:"input,omitempty" json:"input,omitempty"`
	Output       string   `yaml:"output,omitempty" json:"output,omitempty"`
	Tools        []string `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// Name returns metadata.name.
func (d *Definition) Name() string {
	return d.Metadata.Name
}

// Framework returns spec.framework, defaulting to the mock framework.
func (d *Definition) Framework() string {
	if d.Spec.Framework == "" {
		return FrameworkMock
	}
	return d.Spec.Framework
}

// ComposedInstructions appends the expected input and output formats to the
// raw instructions.
func (d *Definition) ComposedInstructions() string {
	var sb strings.Builder
	sb.WriteString(d.Spec.Instructions)
	if d.Spec.Input != "" {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString("Input is expected in format: " + d.Spec.Input)
	}
	if d.Spec.Output != "" {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString("Output must be in format: " + d.Spec.Output)
	}
	return sb.String()
}

// Validate checks the fields every framework relies on.
func (d *Definition) Validate() error {
	if d == nil {
		return errors.New("agent definition is nil")
	}
	var errs []error
	if d.Metadata.Name == "" {
		errs = append(errs, errors.New("metadata.name is required"))
	}
	if d.Kind != "" && d.Kind != KindAgent {
		errs = append(errs, fmt.Errorf("kind must be %q, got %q", KindAgent, d.Kind))
	}
	if d.APIVersion != "" && d.APIVersion != APIVersion {
		errs = append(errs, fmt.Errorf("unsupported apiVersion %q", d.APIVersion))
	}
	if d.Spec.Mode != "" && d.Spec.Mode != "local" && d.Spec.Mode != "remote" {
		errs = append(errs, fmt.Errorf("spec.mode must be local or remote, got %q", d.Spec.Mode))
	}
	if d.Spec.Mode == "remote" && d.Spec.URL == "" {
		errs = append(errs, errors.New("spec.url is required for remote agents"))
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy of the definition.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := *d
	if d.Metadata.Labels != nil {
		c.Metadata.Labels = make(map[string]string, len(d.Metadata.Labels))
		for k, v := range d.Metadata.Labels {
			c.Metadata.Labels[k] = v
		}
	}
	if d.Spec.Tools != nil {
		c.Spec.Tools = append([]string(nil), d.Spec.Tools...)
	}
	return &c
}
