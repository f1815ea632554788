package templates

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/RadiologyOrderIntake/backend/pkg/errors"
)

// templateFile is the on-disk layout:
//
//	templates:
//	  - name: default
//	    version: 2
//	    word_limit: 400
//	    active: true
//	    content: |
//	      ...
type templateFile struct {
	Templates []entities.PromptTemplate `yaml:"templates"`
}

// FileRepository serves prompt templates loaded once from a YAML file
type FileRepository struct {
	path      string
	templates []entities.PromptTemplate
}

// NewFileRepository reads and validates the template file
func NewFileRepository(path string) (*FileRepository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file %s: %w", path, err)
	}
	templates, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template file %s: %w", path, err)
	}
	return &FileRepository{path: path, templates: templates}, nil
}

// Parse decodes a template document. Every entry needs a name, a positive
// version and non-blank content.
func Parse(data []byte) ([]entities.PromptTemplate, error) {
	var doc templateFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	for i, t := range doc.Templates {
		switch {
		case strings.TrimSpace(t.Name) == "":
			return nil, fmt.Errorf("template %d has no name", i)
		case t.Version <= 0:
			return nil, fmt.Errorf("template %q has invalid version %d", t.Name, t.Version)
		case strings.TrimSpace(t.Content) == "":
			return nil, fmt.Errorf("template %q v%d has no content", t.Name, t.Version)
		}
	}
	return doc.Templates, nil
}

// GetActive returns the highest-version active template in the file
func (r *FileRepository) GetActive(ctx context.Context) (*entities.PromptTemplate, error) {
	var best *entities.PromptTemplate
	for i := range r.templates {
		t := &r.templates[i]
		if !t.Active {
			continue
		}
		if best == nil || t.Version > best.Version {
			best = t
		}
	}
	if best == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no active prompt template in %s", r.path))
	}
	tmpl := *best
	return &tmpl, nil
}

// All returns a copy of every template in file order
func (r *FileRepository) All() []entities.PromptTemplate {
	out := make([]entities.PromptTemplate, len(r.templates))
	copy(out, r.templates)
	return out
}
