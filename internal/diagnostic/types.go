// Package diagnostic turns raw diagnostic-assessment answers into an initial
// student profile.
package diagnostic

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/adaptlearn/engine/internal/engine"
)

// Kind discriminates diagnostic question variants. Scoring dispatches on it
// through an explicit handler table so the logic stays auditable and adding a
// kind without a scorer fails loudly.
type Kind string

const (
	KindMultipleChoice Kind = "multiple_choice"
	KindScale          Kind = "scale"
	KindOpenEnded      Kind = "open_ended"
)

// Option is one selectable answer of a multiple-choice question. Options may
// signal a learning style or pace preference, a correct flag, or both.
type Option struct {
	Text    string `yaml:"text"`
	Style   string `yaml:"style,omitempty"`
	Pace    string `yaml:"pace,omitempty"`
	Correct bool   `yaml:"correct,omitempty"`
}

// Question is static diagnostic question metadata.
type Question struct {
	ID      string   `yaml:"id"`
	Text    string   `yaml:"text"`
	Kind    Kind     `yaml:"kind"`
	Topic   string   `yaml:"topic,omitempty"` // topic probed; empty for pure preference questions
	Style   string   `yaml:"style,omitempty"` // style probed by scale questions
	Weight  float64  `yaml:"weight,omitempty"`
	Options []Option `yaml:"options,omitempty"`
	Answer  string   `yaml:"answer,omitempty"` // expected answer for open-ended knowledge items
}

// Response is a student's answer to one diagnostic question.
type Response = engine.DiagnosticResponse

// observation is the normalized result of scoring one response.
type observation struct {
	topic      string
	correct    float64
	hasCorrect bool // whether the question measures correctness at all
	style      engine.LearningStyle
	styleWeight float64
	pace       engine.PacePreference
}

type scoreFunc func(q Question, r Response) (observation, error)

// scorers is the handler table keyed by question kind.
var scorers = map[Kind]scoreFunc{
	KindMultipleChoice: scoreMultipleChoice,
	KindScale:          scoreScale,
	KindOpenEnded:      scoreOpenEnded,
}

func scoreMultipleChoice(q Question, r Response) (observation, error) {
	if r.OptionIndex < 0 || r.OptionIndex >= len(q.Options) {
		return observation{}, fmt.Errorf("question %s: option index %d out of range", q.ID, r.OptionIndex)
	}
	opt := q.Options[r.OptionIndex]

	obs := observation{topic: q.Topic}
	if opt.Style != "" {
		obs.style = engine.LearningStyle(opt.Style)
		obs.styleWeight = q.weight()
	}
	if opt.Pace != "" {
		obs.pace = engine.PacePreference(opt.Pace)
	}
	for _, o := range q.Options {
		if o.Correct {
			obs.hasCorrect = true
			break
		}
	}
	if obs.hasCorrect && opt.Correct {
		obs.correct = 1
	}
	return obs, nil
}

func scoreScale(q Question, r Response) (observation, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.Value), 64)
	if err != nil {
		return observation{}, fmt.Errorf("question %s: scale value %q: %w", q.ID, r.Value, err)
	}
	if v < 1 {
		v = 1
	}
	if v > 5 {
		v = 5
	}

	obs := observation{topic: q.Topic}
	if q.Style != "" {
		obs.style = engine.LearningStyle(q.Style)
		obs.styleWeight = q.weight() * (v - 1) / 4 // 1..5 -> 0..1
	}
	return obs, nil
}

func scoreOpenEnded(q Question, r Response) (observation, error) {
	obs := observation{topic: q.Topic}
	if q.Answer != "" {
		obs.hasCorrect = true
		if strings.EqualFold(strings.TrimSpace(r.Value), strings.TrimSpace(q.Answer)) {
			obs.correct = 1
		}
	}
	return obs, nil
}

func (q Question) weight() float64 {
	if q.Weight > 0 {
		return q.Weight
	}
	return 1
}
