// Package catalog loads course content graphs and validates their
// prerequisite structure. The catalog is read-only to the decision engine.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Provider supplies validated course graphs to the engine.
type Provider interface {
	CourseGraph(ctx context.Context, courseID string) (*Graph, error)
}

// Loader loads and caches course content from the filesystem.
type Loader struct {
	rootDir string
	graphs  map[string]*Graph
	mu      sync.RWMutex
}

// NewLoader creates a catalog loader and loads all courses under rootDir.
// Files ending in .course.yaml are parsed as YAML, .course.json as
// schema-validated JSON.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		graphs:  make(map[string]*Graph),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	slog.Info("catalog loaded", "courses", len(l.graphs))
	return l, nil
}

// CourseGraph returns the validated graph for a course id.
func (l *Loader) CourseGraph(_ context.Context, courseID string) (*Graph, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.graphs[courseID]
	if !ok {
		return nil, fmt.Errorf("course %s: %w", courseID, ErrCourseNotFound)
	}
	return g, nil
}

// Courses returns the ids of all loaded courses.
func (l *Loader) Courses() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.graphs))
	for id := range l.graphs {
		ids = append(ids, id)
	}
	return ids
}

// Add validates a course and registers it with the loader.
func (l *Loader) Add(course Course) error {
	g, err := NewGraph(course.ID, course.Nodes)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.graphs[course.ID] = g
	l.mu.Unlock()
	return nil
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(path, ".course.yaml"), strings.HasSuffix(path, ".course.yml"):
			return l.loadYAML(path)
		case strings.HasSuffix(path, ".course.json"):
			return l.loadJSON(path)
		}
		return nil
	})
}

func (l *Loader) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var course Course
	if err := yaml.Unmarshal(data, &course); err != nil {
		slog.Warn("skipping invalid course YAML", "path", path, "error", err)
		return nil
	}
	if course.ID == "" {
		return nil // Not a course file
	}

	if err := l.Add(course); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (l *Loader) loadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	course, err := ParseCourseJSON(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err := l.Add(*course); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
