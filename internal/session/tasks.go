package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultTask names the built-in system prompt.
const DefaultTask = "legal_assistant"

const defaultSystemPrompt = `You are an expert on Italian constitutional and parliamentary law.
Answer the question using only the context provided. Cite the document, article and paragraph (comma) that support each statement.
If the context does not contain the answer, say so plainly instead of guessing.`

// Tasks is the set of named system prompts a session can run under.
type Tasks struct {
	names   []string
	prompts map[string]string
}

// NewTasks builds a task set. The built-in default task is always present
// unless prompts overrides it.
func NewTasks(prompts map[string]string) *Tasks {
	t := &Tasks{prompts: map[string]string{DefaultTask: defaultSystemPrompt}}
	for name, p := range prompts {
		t.prompts[name] = p
	}
	for name := range t.prompts {
		t.names = append(t.names, name)
	}
	sort.Strings(t.names)
	return t
}

// LoadTasks reads every *.txt file in dir as a task named after the file.
// A missing directory leaves only the default task.
func LoadTasks(dir string, log zerolog.Logger) (*Tasks, error) {
	prompts := map[string]string{}
	if dir == "" {
		return NewTasks(prompts), nil
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	if len(files) == 0 {
		log.Warn().Str("dir", dir).Msg("no task prompts found, using the built-in task")
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read prompt %q: %w", f, err)
		}
		name := strings.TrimSuffix(filepath.Base(f), ".txt")
		prompts[name] = strings.TrimSpace(string(data))
	}
	return NewTasks(prompts), nil
}

// Names returns the task names in lexical order.
func (t *Tasks) Names() []string { return append([]string(nil), t.names...) }

// Prompt returns the system prompt of a task.
func (t *Tasks) Prompt(name string) (string, bool) {
	p, ok := t.prompts[name]
	return p, ok
}
