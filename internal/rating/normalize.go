package rating

import (
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind tags a rating payload. Payloads that carry an explicit "kind" field
// are matched on it; older payloads are classified by which score key they
// carry.
type Kind string

const (
	KindProfile Kind = "profile"
	KindIntro   Kind = "intro"
	KindGeneric Kind = "generic"
)

const NoFeedback = "No overall feedback provided."

// Fields scanned, in order, when a payload carries neither score key.
var genericScoreFields = []string{"overall_score", "overall_rating", "score", "rating"}

type NormalizedRating struct {
	Kind         Kind       `json:"kind"`
	OverallScore float64    `json:"overall_score"`
	StarScore    float64    `json:"star_score"`
	Stars        int        `json:"stars"`
	StarGlyphs   string     `json:"star_glyphs"`
	Categories   []Category `json:"categories"`
	Feedback     string     `json:"feedback"`
	Insights     []string   `json:"insights,omitempty"`
	Details      Details    `json:"details"`
}

type Category struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Text  string `json:"text"`
	Stars int    `json:"stars"`
}

// DisplayScore renders the overall score the way the results tab shows it.
func (r NormalizedRating) DisplayScore() string {
	return fmt.Sprintf("%.1f/10", r.OverallScore)
}

// Headline is the first line of the feedback.
func (r NormalizedRating) Headline() string {
	line, _, _ := strings.Cut(r.Feedback, "\n")
	return line
}

// Normalize never fails: malformed or empty input degrades to a zero score
// with placeholder feedback.
func Normalize(payload []byte) NormalizedRating {
	return NormalizeAs(payload, KindGeneric)
}

// NormalizeAs is Normalize for a payload whose kind is known from where it
// was found, e.g. the profile_rating slot of a task. A kind the payload
// declares or implies still wins over the hint.
func NormalizeAs(payload []byte, hint Kind) NormalizedRating {
	if !gjson.ValidBytes(payload) {
		return empty(hint)
	}
	return normalize(gjson.ParseBytes(payload), hint)
}

func NormalizeResult(p gjson.Result) NormalizedRating {
	return normalize(p, KindGeneric)
}

func normalize(p gjson.Result, hint Kind) NormalizedRating {
	// some backends double-encode the payload as a JSON string
	if p.Type == gjson.String && gjson.Valid(p.Str) {
		p = gjson.Parse(p.Str)
	}
	if !p.IsObject() {
		return empty(hint)
	}

	kind := Classify(p)
	if kind == KindGeneric && hint != "" {
		kind = hint
	}
	r := NormalizedRating{
		Kind:       kind,
		Categories: categories(p),
		Feedback:   feedback(p),
		Insights:   stringList(p.Get("insights")),
	}

	r.OverallScore, r.StarScore = scores(p, kind)
	r.Stars = Stars(r.StarScore)
	r.StarGlyphs = StarGlyphs(r.Stars)

	switch kind {
	case KindProfile:
		r.Details = profileDetails(p)
	default:
		r.Details = introDetails(p)
	}
	return r
}

func Classify(p gjson.Result) Kind {
	if k := p.Get("kind"); k.Type == gjson.String {
		switch strings.ToLower(strings.TrimSpace(k.Str)) {
		case "profile":
			return KindProfile
		case "intro", "introduction":
			return KindIntro
		}
	}
	switch {
	case p.Get("profile_rating").Exists():
		return KindProfile
	case p.Get("intro_rating").Exists():
		return KindIntro
	default:
		return KindGeneric
	}
}

// scores returns the 0-10 display score and the 0-5 star score.
func scores(p gjson.Result, kind Kind) (float64, float64) {
	switch kind {
	case KindProfile:
		if v := p.Get("profile_rating"); v.Exists() {
			score := clampScore(ParseScore(v))
			return score, score / 2
		}
	case KindIntro:
		if v := p.Get("intro_rating"); v.Exists() {
			score := clampScore(ParseScore(v))
			return score, score / 2
		}
	}

	for _, field := range genericScoreFields {
		v := p.Get(field)
		if !v.Exists() {
			continue
		}
		star := math.Min(math.Max(ToStarScale(ParseScore(v)), 0), MaxStars)
		return star * 2, star
	}
	return 0, 0
}

func categories(p gjson.Result) []Category {
	out := []Category{}
	explanation := p.Get("grading_explanation")
	if !explanation.IsObject() {
		return out
	}
	explanation.ForEach(func(key, value gjson.Result) bool {
		text := value.String()
		c := Category{Key: key.String(), Name: DisplayName(key.String()), Text: text}
		if value.Type == gjson.Number {
			c.Stars = Stars(ToStarScale(finite(value.Num)))
		} else if n, ok := firstNumber(text); ok {
			c.Stars = Stars(ToStarScale(n))
		}
		out = append(out, c)
		return true
	})
	return out
}

func feedback(p gjson.Result) string {
	if fb := p.Get("feedback"); fb.IsArray() {
		if items := stringList(fb); len(items) > 0 {
			return strings.Join(items, "\n")
		}
	}
	if notes := strings.TrimSpace(stripBrackets(p.Get("grading_debug.notes").String())); notes != "" {
		return notes
	}
	for _, field := range []string{"overall_feedback", "summary", "feedback"} {
		if v := p.Get(field); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return v.Str
		}
	}
	return NoFeedback
}

func stripBrackets(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	return strings.TrimSuffix(s, "]")
}

// stringList accepts a string, an array or an object and returns its
// non-empty string values in order.
func stringList(v gjson.Result) []string {
	var out []string
	switch {
	case v.Type == gjson.String:
		if s := strings.TrimSpace(v.Str); s != "" {
			out = append(out, v.Str)
		}
	case v.IsArray(), v.IsObject():
		v.ForEach(func(_, item gjson.Result) bool {
			if item.Type == gjson.String && strings.TrimSpace(item.Str) != "" {
				out = append(out, item.Str)
			}
			return true
		})
	}
	return out
}

func empty(kind Kind) NormalizedRating {
	if kind == "" {
		kind = KindGeneric
	}
	return NormalizedRating{
		Kind:       kind,
		Categories: []Category{},
		Feedback:   NoFeedback,
		StarGlyphs: StarGlyphs(0),
	}
}
