package rating

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	MaxStars = 5

	filledStar = "★"
	emptyStar  = "☆"
)

var (
	leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	anyNumber     = regexp.MustCompile(`\d+\.?\d*`)
)

// ParseScore reads a score that may be a JSON number or a string such as
// "7.25/10" or "8 points". Anything unparseable yields 0.
func ParseScore(v gjson.Result) float64 {
	switch v.Type {
	case gjson.Number:
		return finite(v.Num)
	case gjson.String:
		return ParseScoreText(v.Str)
	default:
		return 0
	}
}

// ParseScoreText keeps the left side of a "/" and parses its numeric prefix.
func ParseScoreText(s string) float64 {
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	m := leadingNumber.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return finite(f)
}

// firstNumber finds the first number anywhere in free text, e.g.
// "Score 4/5 - well structured".
func firstNumber(s string) (float64, bool) {
	m := anyNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ToStarScale maps a score of unknown scale onto 0-5: values above 5 are
// taken to be on the 0-10 scale.
func ToStarScale(score float64) float64 {
	if score > MaxStars {
		return score / 2
	}
	return score
}

// Stars rounds half-up, the way Math.round does, and clamps to 0..5.
func Stars(starScore float64) int {
	if math.IsNaN(starScore) {
		return 0
	}
	n := int(math.Floor(starScore + 0.5))
	if n < 0 {
		return 0
	}
	if n > MaxStars {
		return MaxStars
	}
	return n
}

// StarsForScore converts a 0-10 score into filled stars.
func StarsForScore(score float64) int {
	return Stars(score / 2)
}

func StarGlyphs(filled int) string {
	if filled < 0 {
		filled = 0
	}
	if filled > MaxStars {
		filled = MaxStars
	}
	return strings.Repeat(filledStar, filled) + strings.Repeat(emptyStar, MaxStars-filled)
}

func clampScore(score float64) float64 {
	return math.Min(math.Max(score, 0), 10)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
