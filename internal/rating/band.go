package rating

type Band struct {
	Class string `json:"class"`
	Label string `json:"label"`
}

// BandFor buckets a 0-10 score for the analytics dashboard.
func BandFor(score float64) Band {
	switch {
	case score >= 8:
		return Band{Class: "score-excellent", Label: "Excellent"}
	case score >= 6:
		return Band{Class: "score-good", Label: "Good"}
	case score >= 4:
		return Band{Class: "score-average", Label: "Average"}
	default:
		return Band{Class: "score-poor", Label: "Needs Improvement"}
	}
}
