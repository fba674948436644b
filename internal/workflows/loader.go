package workflows

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// WorkflowFile is one parsed and validated workflow draft found on disk.
type WorkflowFile struct {
	FilePath   string
	Draft      *Draft
	Validation ValidationResult
}

type LoadResult struct {
	Workflows  []*WorkflowFile
	Errors     []LoadError
	TotalFiles int
}

type LoadError struct {
	FilePath string
	Error    error
}

// Loader reads workflow drafts from *.workflow.yaml files so definitions can
// be seeded from a directory instead of the API.
type Loader struct {
	workflowsDir string
}

func NewLoader(workflowsDir string) *Loader {
	return &Loader{workflowsDir: workflowsDir}
}

func (l *Loader) LoadAll() (*LoadResult, error) {
	result := &LoadResult{
		Workflows: []*WorkflowFile{},
		Errors:    []LoadError{},
	}

	if _, err := os.Stat(l.workflowsDir); os.IsNotExist(err) {
		return result, nil
	}

	yamlFiles, err := filepath.Glob(filepath.Join(l.workflowsDir, "*.workflow.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow yaml files: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(l.workflowsDir, "*.workflow.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow yml files: %w", err)
	}

	files := append(yamlFiles, ymlFiles...)
	result.TotalFiles = len(files)

	for _, path := range files {
		wf, err := l.loadFile(path)
		if err != nil {
			result.Errors = append(result.Errors, LoadError{FilePath: path, Error: err})
			continue
		}
		result.Workflows = append(result.Workflows, wf)
	}

	return result, nil
}

func (l *Loader) loadFile(path string) (*WorkflowFile, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var draft Draft
	if err := yaml.Unmarshal(contents, &draft); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	validation, err := ValidateDraft(&draft)
	if err != nil {
		return nil, fmt.Errorf("%s failed validation: %w (%d errors)", path, err, len(validation.Errors))
	}

	return &WorkflowFile{
		FilePath:   path,
		Draft:      &draft,
		Validation: validation,
	}, nil
}
