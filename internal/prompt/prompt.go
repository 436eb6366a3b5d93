// Package prompt loads per-role prompt templates and fills their
// {{PLACEHOLDER}} slots.
package prompt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Placeholders recognised in templates.
const (
	UniverseSeed      = "{{UNIVERSE_SEED_JSON}}"
	RecentTimeline    = "{{RECENT_TIMELINE_JSON}}"
	PreviousSubtopics = "{{ALL_PREVIOUS_SUBTOPICS_JSON}}"
	Subtopic          = "{{SUBTOPIC}}"
	ModelA            = "{{MODEL_A_JSON}}"
	ModelB            = "{{MODEL_B_JSON}}"
)

// Template file names inside the prompt directory.
const (
	SubtopicFile  = "subtopic_prompt.txt"
	ProposalAFile = "model_A_prompt.txt"
	ProposalBFile = "model_B_prompt.txt"
	ArbiterFile   = "model_C_prompt.txt"
)

// Renderer reads templates from a filesystem. Templates are read on every
// render so edits take effect on the next cycle.
type Renderer struct {
	fsys fs.FS
	log  *zap.Logger
}

// NewRenderer renders templates from fsys.
func NewRenderer(fsys fs.FS, log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{fsys: fsys, log: log}
}

// NewDirRenderer renders templates from a directory on disk.
func NewDirRenderer(dir string, log *zap.Logger) *Renderer {
	return NewRenderer(os.DirFS(dir), log)
}

// Load returns the raw template. A missing file yields "" and a warning;
// other read errors are returned.
func (r *Renderer) Load(name string) (string, error) {
	data, err := fs.ReadFile(r.fsys, filepath.ToSlash(name))
	if errors.Is(err, fs.ErrNotExist) {
		r.log.Warn("prompt template not found", zap.String("template", name))
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading prompt %s: %w", name, err)
	}
	return string(data), nil
}

// Render loads name and replaces every occurrence of each placeholder.
func (r *Renderer) Render(name string, values map[string]string) (string, error) {
	tmpl, err := r.Load(name)
	if err != nil {
		return "", err
	}
	return Fill(tmpl, values), nil
}

// Fill substitutes placeholders in tmpl. Substituted text is not rescanned.
func Fill(tmpl string, values map[string]string) string {
	if len(values) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, 2*len(values))
	for k, v := range values {
		pairs = append(pairs, k, v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
