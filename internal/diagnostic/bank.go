package diagnostic

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Bank holds the diagnostic question metadata, loaded from YAML files and
// spreadsheet imports.
type Bank struct {
	mu        sync.RWMutex
	questions map[string]Question
}

// NewBank creates an empty question bank.
func NewBank() *Bank {
	return &Bank{questions: make(map[string]Question)}
}

// LoadBank creates a bank and loads every *.questions.yaml file under rootDir.
func LoadBank(rootDir string) (*Bank, error) {
	b := NewBank()
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".questions.yaml") || strings.HasSuffix(path, ".questions.yml") {
			return b.loadFile(path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading question bank: %w", err)
	}

	slog.Info("question bank loaded", "questions", b.Len())
	return b, nil
}

func (b *Bank) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc struct {
		Questions []Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid question YAML", "path", path, "error", err)
		return nil
	}

	for _, q := range doc.Questions {
		if err := b.Add(q); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

// Add validates and registers a question.
func (b *Bank) Add(q Question) error {
	if q.ID == "" {
		return fmt.Errorf("question with empty id")
	}
	if _, ok := scorers[q.Kind]; !ok {
		return fmt.Errorf("question %s: unknown kind %q", q.ID, q.Kind)
	}
	b.mu.Lock()
	b.questions[q.ID] = q
	b.mu.Unlock()
	return nil
}

// Get returns a question by id.
func (b *Bank) Get(id string) (Question, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.questions[id]
	return q, ok
}

// Len returns the number of registered questions.
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.questions)
}
