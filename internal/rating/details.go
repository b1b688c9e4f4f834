package rating

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const noSectionFeedback = "No feedback provided."

// Details carries the kind-specific blocks rendered under the overall score.
type Details struct {
	Sections         []Section       `json:"sections,omitempty"`
	Recommendations  []string        `json:"recommendations,omitempty"`
	Strengths        []string        `json:"strengths,omitempty"`
	ImprovementAreas []string        `json:"improvement_areas,omitempty"`
	HiringInsights   *HiringInsights `json:"hiring_insights,omitempty"`
	Employability    *Employability  `json:"employability,omitempty"`
}

// Section is one scored block: an intro quality dimension or a profile skill.
// A nil Score renders as N/A.
type Section struct {
	Key      string   `json:"key"`
	Title    string   `json:"title"`
	Score    *float64 `json:"score,omitempty"`
	Display  string   `json:"display"`
	Stars    int      `json:"stars"`
	Feedback string   `json:"feedback"`
}

type HiringInsights struct {
	StrongestAssets   string `json:"strongest_assets,omitempty"`
	DevelopmentAreas  string `json:"development_areas,omitempty"`
	IndustryReadiness string `json:"industry_readiness,omitempty"`
}

type Employability struct {
	Level string `json:"level"`
	Color string `json:"color"`
}

// flat intro dimensions and the keys they may appear under
var flatDimensions = []struct {
	name     string
	keys     []string
	feedback string
}{
	{"content", []string{"content", "content_quality", "content_score"}, "content_feedback"},
	{"delivery", []string{"delivery", "delivery_quality", "delivery_score"}, "delivery_feedback"},
	{"structure", []string{"structure", "structure_quality", "structure_score"}, "structure_feedback"},
	{"clarity", []string{"clarity", "clarity_quality", "clarity_score"}, "clarity_feedback"},
}

func introDetails(p gjson.Result) Details {
	var d Details

	hasContent := p.Get("content_rating").Exists() && truthy(p.Get("content_rating"))
	hasDelivery := p.Get("delivery_rating").Exists() && truthy(p.Get("delivery_rating"))
	if hasContent {
		d.Sections = append(d.Sections, section("content", "Content Quality", p.Get("content_rating"), ""))
	}
	if hasDelivery {
		d.Sections = append(d.Sections, section("delivery", "Delivery Quality", p.Get("delivery_rating"), ""))
	}

	for _, dim := range flatDimensions {
		if (dim.name == "content" && hasContent) || (dim.name == "delivery" && hasDelivery) {
			continue
		}
		for _, key := range dim.keys {
			v := p.Get(key)
			if !v.Exists() {
				continue
			}
			title := TitleCase(dim.name) + " Quality"
			d.Sections = append(d.Sections, section(dim.name, title, v, p.Get(dim.feedback).String()))
			break
		}
	}

	d.Recommendations = stringList(p.Get("recommendations"))
	if len(d.Recommendations) == 0 {
		d.Recommendations = stringList(p.Get("recommendation"))
	}
	return d
}

func profileDetails(p gjson.Result) Details {
	var d Details

	if skills := p.Get("skills"); skills.IsObject() {
		skills.ForEach(func(name, v gjson.Result) bool {
			d.Sections = append(d.Sections, section(name.String(), name.String(), v, ""))
			return true
		})
	}

	d.Strengths = firstList(p, "profile_strengths", "strengths")
	d.ImprovementAreas = firstList(p, "improvement_areas", "areas_for_improvement")

	if hi := p.Get("hiring_insights"); hi.IsObject() {
		insights := HiringInsights{
			StrongestAssets:   insightText(hi.Get("strongest_assets")),
			DevelopmentAreas:  insightText(hi.Get("development_areas")),
			IndustryReadiness: insightText(hi.Get("industry_readiness")),
		}
		if insights != (HiringInsights{}) {
			d.HiringInsights = &insights
		}
	}

	if level := strings.TrimSpace(p.Get("employability_level").String()); level != "" {
		d.Employability = &Employability{Level: level, Color: employabilityColor(level)}
	}
	return d
}

// section reads a value that may be {score, feedback}, a bare number, a
// numeric string, or free-text feedback with no score.
func section(key, title string, v gjson.Result, fallbackFeedback string) Section {
	s := Section{Key: key, Title: title, Display: "N/A", Feedback: noSectionFeedback}
	if fallbackFeedback != "" {
		s.Feedback = fallbackFeedback
	}

	switch {
	case v.IsObject():
		if score := v.Get("score"); truthy(score) {
			s.setScore(ParseScore(score))
		}
		if fb := v.Get("feedback").String(); fb != "" {
			s.Feedback = fb
		}
	case v.Type == gjson.Number:
		s.setScore(finite(v.Num))
	case v.Type == gjson.String:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64); err == nil {
			s.setScore(finite(f))
		} else if v.Str != "" {
			s.Feedback = v.Str
		}
	}
	return s
}

func (s *Section) setScore(score float64) {
	s.Score = &score
	s.Display = fmt.Sprintf("%.1f", score)
	s.Stars = Stars(ToStarScale(score))
}

func firstList(p gjson.Result, keys ...string) []string {
	for _, k := range keys {
		if items := stringList(p.Get(k)); len(items) > 0 {
			return items
		}
	}
	return nil
}

func insightText(v gjson.Result) string {
	if v.IsArray() {
		return strings.Join(stringList(v), ", ")
	}
	if v.Type == gjson.String {
		return strings.TrimSpace(stripBrackets(v.Str))
	}
	return ""
}

func employabilityColor(level string) string {
	switch {
	case strings.Contains(level, "HIGHLY EMPLOYABLE"):
		return "success"
	case strings.Contains(level, "GOOD EMPLOYABILITY"):
		return "info"
	case strings.Contains(level, "MODERATE EMPLOYABILITY"):
		return "warning"
	case strings.Contains(level, "DEVELOPING POTENTIAL"):
		return "primary"
	case strings.Contains(level, "LIMITED EMPLOYABILITY"):
		return "danger"
	default:
		return "secondary"
	}
}

// truthy follows the loose checks the payloads were written against:
// missing, null, false, 0 and "" are all "absent".
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null:
		return false
	case gjson.False:
		return false
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return v.Str != ""
	default:
		return v.Exists()
	}
}
