package rating

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestParseScore(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{raw: `8`, want: 8},
		{raw: `"7.25/10"`, want: 7.25},
		{raw: `"7.5 points"`, want: 7.5},
		{raw: `" 6 / 10 "`, want: 6},
		{raw: `"n/a"`, want: 0},
		{raw: `""`, want: 0},
		{raw: `null`, want: 0},
		{raw: `true`, want: 0},
		{raw: `[1]`, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParseScore(gjson.Parse(tt.raw)), 1e-9)
		})
	}
}

func TestStarsRoundsHalfUpAndClamps(t *testing.T) {
	assert.Equal(t, 5, Stars(4.5))
	assert.Equal(t, 3, Stars(2.5))
	assert.Equal(t, 0, Stars(0.49))
	assert.Equal(t, 0, Stars(-3))
	assert.Equal(t, 5, Stars(42))
	assert.Equal(t, 0, Stars(math.NaN()))
}

func TestStarsForScoreIsMonotonic(t *testing.T) {
	prev := 0
	for r := 0.0; r <= 10.0; r += 0.05 {
		n := StarsForScore(r)
		assert.GreaterOrEqual(t, n, 0)
		assert.LessOrEqual(t, n, MaxStars)
		assert.GreaterOrEqual(t, n, prev, "score %.2f", r)
		prev = n
	}
	assert.Equal(t, MaxStars, StarsForScore(10))
}

func TestStarGlyphs(t *testing.T) {
	assert.Equal(t, "☆☆☆☆☆", StarGlyphs(0))
	assert.Equal(t, "★★★☆☆", StarGlyphs(3))
	assert.Equal(t, "★★★★★", StarGlyphs(9))
}

func TestDisplayNameFallsBackToTitleCase(t *testing.T) {
	assert.Equal(t, "Hands-On Experience", DisplayName("hands_on_experience"))
	assert.Equal(t, "Professional Relevance", DisplayName("relevance_to_role"))
	assert.Equal(t, "Voice Projection", DisplayName("voice_projection"))
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		score float64
		label string
	}{
		{score: 9.5, label: "Excellent"},
		{score: 8, label: "Excellent"},
		{score: 7.9, label: "Good"},
		{score: 6, label: "Good"},
		{score: 4, label: "Average"},
		{score: 3.99, label: "Needs Improvement"},
		{score: 0, label: "Needs Improvement"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.label, BandFor(tt.score).Label, "score %v", tt.score)
	}
}
