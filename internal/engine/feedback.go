package engine

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Feedback kinds, mirroring the tutoring taxonomy: celebrate success, keep
// struggling students engaged, hint before correcting.
const (
	FeedbackCelebration   = "celebration"
	FeedbackEncouragement = "encouragement"
	FeedbackHint          = "hint"
	FeedbackCorrection    = "correction"
)

// feedbackRule maps (correct, style, risk band) to a template. Zero-valued
// fields are wildcards; the most specific matching rule wins, earlier rules
// win ties.
type feedbackRule struct {
	correct    *bool
	style      LearningStyle
	band       RiskBand
	kind       string
	templateID string
}

func boolPtr(b bool) *bool { return &b }

var feedbackRules = []feedbackRule{
	// Correct answers, style-specialized celebrations.
	{boolPtr(true), StyleVisual, RiskLow, FeedbackCelebration, "celebrate-visual"},
	{boolPtr(true), StyleAuditory, RiskLow, FeedbackCelebration, "celebrate-auditory"},
	{boolPtr(true), StyleKinesthetic, RiskLow, FeedbackCelebration, "celebrate-kinesthetic"},
	{boolPtr(true), StyleReading, RiskLow, FeedbackCelebration, "celebrate-reading"},
	// Correct but at risk: encourage, do not just celebrate.
	{boolPtr(true), "", RiskHigh, FeedbackEncouragement, "encourage-at-risk"},
	{boolPtr(true), "", RiskCritical, FeedbackEncouragement, "encourage-at-risk"},
	{boolPtr(true), "", "", FeedbackCelebration, "celebrate-generic"},
	// Incorrect answers: hint first, with style-specific suggestions.
	{boolPtr(false), StyleVisual, "", FeedbackHint, "hint-visual"},
	{boolPtr(false), StyleAuditory, "", FeedbackHint, "hint-auditory"},
	{boolPtr(false), StyleKinesthetic, "", FeedbackHint, "hint-kinesthetic"},
	{boolPtr(false), StyleReading, "", FeedbackHint, "hint-reading"},
	// Incorrect and at risk: corrective support over hints.
	{boolPtr(false), "", RiskHigh, FeedbackCorrection, "correct-support"},
	{boolPtr(false), "", RiskCritical, FeedbackCorrection, "correct-support"},
	{boolPtr(false), "", "", FeedbackHint, "hint-generic"},
}

const genericTemplateID = "keep-going"

// LearningZone classifies how challenged a student is by recent accuracy.
type LearningZone string

const (
	ZoneComfort   LearningZone = "comfort" // consistently correct, likely under-challenged
	ZoneOptimal   LearningZone = "optimal"
	ZoneChallenge LearningZone = "challenge"
	ZonePanic     LearningZone = "panic" // overwhelmed, accuracy collapsed
)

// ClassifyZone buckets mean accuracy over recent events. An empty window is
// optimal: there is no evidence of struggle or boredom yet.
func ClassifyZone(recent []PerformanceEvent) LearningZone {
	if len(recent) == 0 {
		return ZoneOptimal
	}
	var sum float64
	for _, ev := range recent {
		sum += ev.Score
	}
	switch acc := sum / float64(len(recent)); {
	case acc >= 0.9:
		return ZoneComfort
	case acc >= 0.7:
		return ZoneOptimal
	case acc >= 0.4:
		return ZoneChallenge
	default:
		return ZonePanic
	}
}

// feedbackTemplates holds the rendered text per template and locale. The
// original tutoring service is bilingual Spanish/English.
var feedbackTemplates = map[string]map[string]string{
	"celebrate-visual": {
		"es": "¡Excelente! Tu comprensión de {topic} se nota claramente. Revisa el diagrama resumen para fijarlo.",
		"en": "Excellent! Your grasp of {topic} really shows. Review the summary diagram to lock it in.",
	},
	"celebrate-auditory": {
		"es": "¡Muy bien! Explica {topic} en voz alta para consolidar lo aprendido.",
		"en": "Well done! Try explaining {topic} out loud to consolidate it.",
	},
	"celebrate-kinesthetic": {
		"es": "¡Genial! Aplica {topic} en el siguiente ejercicio práctico.",
		"en": "Great work! Apply {topic} in the next hands-on exercise.",
	},
	"celebrate-reading": {
		"es": "¡Perfecto! Escribe un resumen breve de {topic} con tus propias palabras.",
		"en": "Perfect! Write a short summary of {topic} in your own words.",
	},
	"celebrate-generic": {
		"es": "¡Correcto! Sigue así.",
		"en": "Correct! Keep it up.",
	},
	"encourage-at-risk": {
		"es": "¡Bien hecho! Cada paso cuenta. Sigue a tu ritmo, lo estás logrando.",
		"en": "Well done! Every step counts. Keep your own pace, you are getting there.",
	},
	"hint-visual": {
		"es": "Casi. Mira el esquema de {topic} otra vez y fíjate en el primer paso.",
		"en": "Almost. Look at the {topic} diagram again and focus on the first step.",
	},
	"hint-auditory": {
		"es": "Casi. Escucha la explicación de {topic} de nuevo antes de reintentar.",
		"en": "Almost. Listen to the {topic} explanation again before retrying.",
	},
	"hint-kinesthetic": {
		"es": "Casi. Resuelve un ejemplo más sencillo de {topic} paso a paso.",
		"en": "Almost. Work a simpler {topic} example step by step.",
	},
	"hint-reading": {
		"es": "Casi. Relee la sección sobre {topic} y anota la idea clave.",
		"en": "Almost. Reread the section on {topic} and note the key idea.",
	},
	"hint-generic": {
		"es": "No exactamente. Revisa {topic} e inténtalo de nuevo.",
		"en": "Not quite. Review {topic} and try again.",
	},
	"correct-support": {
		"es": "Este tema cuesta, y está bien. Vamos a repasar {topic} desde lo básico, sin prisa.",
		"en": "This topic is hard, and that is okay. Let's revisit {topic} from the basics, no rush.",
	},
	genericTemplateID: {
		"es": "Continúa con tu buen trabajo.",
		"en": "Keep up the good work.",
	},
}

var feedbackMatcher = language.NewMatcher([]language.Tag{
	language.English, // first tag is the fallback
	language.Spanish,
})

// FeedbackGenerator selects feedback from a pure rule table. It has no
// network or storage access; output is a function of its inputs only.
type FeedbackGenerator struct{}

// NewFeedbackGenerator creates a feedback generator.
func NewFeedbackGenerator() *FeedbackGenerator {
	return &FeedbackGenerator{}
}

// Select picks the most specific rule matching (correct, style, band) and
// renders its template in the closest supported locale. An unmatched input
// falls back to the generic template.
func (f *FeedbackGenerator) Select(correct bool, style LearningStyle, band RiskBand, topic, locale string) FeedbackMessage {
	bestIdx := -1
	bestSpecificity := -1
	for i, r := range feedbackRules {
		if r.correct != nil && *r.correct != correct {
			continue
		}
		if r.style != "" && r.style != style {
			continue
		}
		if r.band != "" && r.band != band {
			continue
		}
		spec := 0
		if r.correct != nil {
			spec++
		}
		if r.style != "" {
			spec++
		}
		if r.band != "" {
			spec++
		}
		if spec > bestSpecificity {
			bestSpecificity = spec
			bestIdx = i
		}
	}

	templateID := genericTemplateID
	kind := FeedbackEncouragement
	reason := "no rule matched, generic fallback"
	if bestIdx >= 0 {
		r := feedbackRules[bestIdx]
		templateID = r.templateID
		kind = r.kind
		reason = fmt.Sprintf("rule %d matched (correct=%t style=%s band=%s)", bestIdx, correct, style, band)
	}

	_, idx := language.MatchStrings(feedbackMatcher, locale)
	lang := "en"
	if idx == 1 {
		lang = "es"
	}

	text := feedbackTemplates[templateID][lang]
	text = strings.ReplaceAll(text, "{topic}", topic)

	return FeedbackMessage{
		TemplateID: templateID,
		Kind:       kind,
		Text:       text,
		Locale:     lang,
		Reason:     reason,
	}
}
