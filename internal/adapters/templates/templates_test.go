package templates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/RadiologyOrderIntake/backend/pkg/errors"
)

const sampleFile = `
templates:
  - name: default
    version: 1
    active: true
    content: "v1 {{DICTATION_TEXT}}"
  - name: default
    version: 3
    word_limit: 250
    active: true
    content: |
      Review this order.
      {{DATABASE_CONTEXT}}
      {{DICTATION_TEXT}}
  - name: default
    version: 4
    active: false
    content: "draft"
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestFileRepository_GetActivePicksHighestActiveVersion(t *testing.T) {
	repo, err := NewFileRepository(writeFile(t, sampleFile))
	require.NoError(t, err)

	tmpl, err := repo.GetActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, tmpl.Version)
	assert.Equal(t, 250, tmpl.WordLimit)
	assert.Contains(t, tmpl.Content, "{{DATABASE_CONTEXT}}")
	assert.Len(t, repo.All(), 3)
}

func TestFileRepository_NoActive(t *testing.T) {
	repo, err := NewFileRepository(writeFile(t, "templates:\n  - name: a\n    version: 1\n    content: x\n"))
	require.NoError(t, err)

	_, err = repo.GetActive(context.Background())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestParse_RejectsInvalidEntries(t *testing.T) {
	cases := map[string]string{
		"no name":    "templates:\n  - version: 1\n    content: x\n",
		"no version": "templates:\n  - name: a\n    content: x\n",
		"no content": "templates:\n  - name: a\n    version: 1\n    content: '  '\n",
		"bad yaml":   "templates: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestNewFileRepository_MissingFile(t *testing.T) {
	_, err := NewFileRepository(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

type stubRepo struct {
	tmpl *entities.PromptTemplate
	err  error
}

func (s stubRepo) GetActive(ctx context.Context) (*entities.PromptTemplate, error) {
	return s.tmpl, s.err
}

func TestChain_FallsThroughNotFound(t *testing.T) {
	want := &entities.PromptTemplate{Name: "file", Version: 1, Content: "x", Active: true}
	chain := NewChain(stubRepo{err: apperrors.NewNotFoundError("none")}, nil, stubRepo{tmpl: want})

	got, err := chain.GetActive(context.Background())
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestChain_FallsThroughSourceError(t *testing.T) {
	want := &entities.PromptTemplate{Name: "file", Version: 1, Content: "x", Active: true}
	chain := NewChain(stubRepo{err: errors.New("db down")}, stubRepo{tmpl: want})

	got, err := chain.GetActive(context.Background())
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestChain_ReportsSourceErrorWhenNothingFound(t *testing.T) {
	boom := errors.New("db down")
	chain := NewChain(stubRepo{err: boom}, stubRepo{err: apperrors.NewNotFoundError("none")})

	_, err := chain.GetActive(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestChain_AllNotFound(t *testing.T) {
	chain := NewChain(stubRepo{err: apperrors.NewNotFoundError("none")})

	_, err := chain.GetActive(context.Background())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}
