package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/adaptlearn/engine/internal/catalog"
)

// PathGenerator builds ordered, personalized traversals of a course's
// prerequisite DAG.
type PathGenerator struct {
	cfg Config
}

// NewPathGenerator creates a path generator with the given tuning.
func NewPathGenerator(cfg Config) *PathGenerator {
	return &PathGenerator{cfg: cfg.withDefaults()}
}

// Generate produces the next PathAssignment version for the student. prev may
// be nil for the first generation. decision steers regeneration: remediate
// pulls nodes of the weakest observed topic to the front, accelerate drops
// uncompleted nodes whose topic the student has already mastered. Completed
// nodes keep their place so history stays auditable; the position index maps
// to the first not-yet-completed node.
func (g *PathGenerator) Generate(
	profile *StudentProfile,
	graph *catalog.Graph,
	prev *PathAssignment,
	decision PacingDecision,
) (*PathAssignment, error) {
	completed := prev.Completed()
	done := make(map[string]bool, len(completed))
	for _, id := range completed {
		done[id] = true
	}

	skipped := g.skippable(profile, graph, done, decision)

	weakest := ""
	if decision == DecisionRemediate {
		weakest = weakestTopic(profile)
	}

	remaining, err := graph.Walk(
		func(n catalog.ContentNode) bool { return !done[n.ID] && !skipped[n.ID] },
		func(n catalog.ContentNode) float64 { return g.rank(profile, n, weakest) },
	)
	if err != nil {
		return nil, fmt.Errorf("ordering course %s: %w", graph.CourseID(), err)
	}

	version := 1
	if prev != nil {
		version = prev.Version + 1
	}

	a := &PathAssignment{
		StudentID: profile.StudentID,
		CourseID:  graph.CourseID(),
		NodeIDs:   append(completed, remaining...),
		Position:  len(completed),
		Version:   version,
		Reasons:   g.reasons(profile, decision, weakest, len(skipped)),
		CreatedAt: time.Now(),
	}
	return a, nil
}

// rank scores a frontier candidate. Difficulty close to mastery plus a small
// positive offset scores highest (zone of proximal development); style
// affinity adds a weighted bonus; remedial targeting dominates both.
func (g *PathGenerator) rank(profile *StudentProfile, n catalog.ContentNode, weakestTopic string) float64 {
	target := clamp01(profile.MasteryOf(n.Topic) + g.cfg.TargetOffset)
	score := 1 - math.Abs(n.Difficulty-target)

	affinity := 0.0
	for _, s := range n.Styles {
		affinity += profile.Style[LearningStyle(s)]
	}
	score += g.cfg.StyleWeight * affinity

	if weakestTopic != "" && n.Topic == weakestTopic {
		// Outranks any difficulty/style combination so remedial content lands
		// immediately after the current position.
		score += 10
		if n.Remedial {
			score += 1
		}
	}
	return score
}

// skippable returns uncompleted nodes an accelerating student may skip: topic
// mastery above the threshold, and no non-skipped node depends on them in a
// way that would be broken (skipped nodes count as satisfied prerequisites).
func (g *PathGenerator) skippable(profile *StudentProfile, graph *catalog.Graph, done map[string]bool, decision PacingDecision) map[string]bool {
	skipped := make(map[string]bool)
	if decision != DecisionAccelerate {
		return skipped
	}
	for _, id := range graph.Order() {
		if done[id] {
			continue
		}
		n, _ := graph.Node(id)
		if n.Remedial {
			continue
		}
		if profile.MasteryOf(n.Topic) > g.cfg.SkipMastery {
			skipped[id] = true
		}
	}
	return skipped
}

func (g *PathGenerator) reasons(profile *StudentProfile, decision PacingDecision, weakest string, skipped int) []string {
	reasons := []string{
		fmt.Sprintf("dominant style %s", profile.Style.Dominant()),
		fmt.Sprintf("pace preference %s", profile.Pace),
	}
	switch decision {
	case DecisionRemediate:
		reasons = append(reasons, fmt.Sprintf("remediating weakest topic %s", weakest))
	case DecisionAccelerate:
		reasons = append(reasons, fmt.Sprintf("accelerating, skipped %d mastered nodes", skipped))
	}
	return reasons
}

// weakestTopic returns the topic with the lowest mastery, lowest name on ties.
func weakestTopic(profile *StudentProfile) string {
	weakest := ""
	low := math.Inf(1)
	for topic, m := range profile.Mastery {
		if m < low || (m == low && topic < weakest) {
			weakest = topic
			low = m
		}
	}
	return weakest
}

// NeedsRegeneration reports whether a mastery change is large enough to
// justify rebuilding the path on its own.
func (g *PathGenerator) NeedsRegeneration(masteryDelta float64) bool {
	return math.Abs(masteryDelta) > g.cfg.RegenMasteryDelta
}
