package catalog

import "errors"

// ErrCyclicPrerequisites is returned when a course's prerequisite graph
// contains a cycle. This is a structural content error: it is surfaced to the
// caller and never retried.
var ErrCyclicPrerequisites = errors.New("cyclic prerequisite graph")

// ErrCourseNotFound is returned when a course id is unknown to the catalog.
var ErrCourseNotFound = errors.New("course not found")

// ContentNode is a single piece of learning content within a course.
// Nodes are read-only to the decision engine; the catalog owns them.
type ContentNode struct {
	ID              string   `yaml:"id" json:"id"`
	Title           string   `yaml:"title" json:"title"`
	Topic           string   `yaml:"topic" json:"topic"`
	Difficulty      float64  `yaml:"difficulty" json:"difficulty"` // in [0,1]
	DurationSeconds int      `yaml:"duration_seconds" json:"duration_seconds"`
	Prerequisites   []string `yaml:"prerequisites" json:"prerequisites"`
	Styles          []string `yaml:"styles" json:"styles"` // learning styles this node suits
	Remedial        bool     `yaml:"remedial" json:"remedial"`
}

// Course is a named collection of content nodes forming a prerequisite DAG.
type Course struct {
	ID    string        `yaml:"id" json:"id"`
	Name  string        `yaml:"name" json:"name"`
	Nodes []ContentNode `yaml:"nodes" json:"nodes"`
}

// HasStyle reports whether the node carries the given style tag.
func (n ContentNode) HasStyle(style string) bool {
	for _, s := range n.Styles {
		if s == style {
			return true
		}
	}
	return false
}
