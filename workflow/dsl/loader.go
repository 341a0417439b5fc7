package dsl

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/BaSui01/stepflow/workflow"
)

// FileLoader resolves sub-workflow references to YAML files on disk.
// Relative URLs are resolved against Dir; a nested reference inside a
// loaded file is resolved against that file's directory.
type FileLoader struct {
	Dir    string
	Parser *Parser
}

var _ workflow.DefinitionLoader = (*FileLoader)(nil)

// NewFileLoader creates a loader rooted at dir.
func NewFileLoader(dir string, parser *Parser) *FileLoader {
	if parser == nil {
		parser = NewParser()
	}
	return &FileLoader{Dir: dir, Parser: parser}
}

// Load implements workflow.DefinitionLoader. When the file holds several
// workflows the one named like the reference is returned.
func (l *FileLoader) Load(ctx context.Context, ref workflow.SubWorkflowRef) (*workflow.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.resolve(ref.URL)
	if err != nil {
		return nil, err
	}

	b, err := l.Parser.ParseFile(path)
	if err != nil {
		return nil, err
	}
	def, err := pick(b, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for name, sub := range def.SubWorkflows {
		if sub.URL == "" || isRemote(sub.URL) {
			continue
		}
		p := strings.TrimPrefix(sub.URL, "file://")
		if !filepath.IsAbs(p) {
			sub.URL = filepath.Join(dir, p)
			def.SubWorkflows[name] = sub
		}
	}
	return def, nil
}

func (l *FileLoader) resolve(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("sub-workflow url is empty")
	}
	if isRemote(raw) {
		return "", fmt.Errorf("unsupported sub-workflow url %q: only local files are supported", raw)
	}
	p := strings.TrimPrefix(raw, "file://")
	if !filepath.IsAbs(p) && l.Dir != "" {
		p = filepath.Join(l.Dir, p)
	}
	return filepath.Clean(p), nil
}

func isRemote(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Scheme != "file" && len(u.Scheme) > 1
}

func pick(b *Bundle, name string) (*workflow.Definition, error) {
	switch len(b.Workflows) {
	case 0:
		return nil, fmt.Errorf("no workflow document found")
	case 1:
		return b.Workflows[0], nil
	}
	if def, ok := b.Workflow(name); ok {
		return def, nil
	}
	return nil, fmt.Errorf("workflow %q not found among %d documents", name, len(b.Workflows))
}
