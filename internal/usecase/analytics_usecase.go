package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fadilmartias/introeval-web/internal/dto"
	"github.com/fadilmartias/introeval-web/internal/rating"
	"github.com/fadilmartias/introeval-web/internal/service"
	"github.com/tidwall/gjson"
)

type AnalyticsUsecase struct {
	queue service.QueueServiceInterface
}

func NewAnalyticsUsecase(queue service.QueueServiceInterface) *AnalyticsUsecase {
	return &AnalyticsUsecase{queue: queue}
}

// StudentAnalytics fetches one student's analytics and annotates every
// score with its dashboard band.
func (uc *AnalyticsUsecase) StudentAnalytics(ctx context.Context, rollNumber string) (*dto.StudentAnalyticsDTO, error) {
	body, err := uc.queue.StudentAnalytics(ctx, rollNumber)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("analytics for %s: malformed response", rollNumber)
	}
	doc := gjson.ParseBytes(body)

	out := &dto.StudentAnalyticsDTO{
		RollNumber:       rollNumber,
		ScoreTrends:      []dto.ScoreTrendDTO{},
		Strengths:        stringsOf(doc.Get("strengths")),
		ImprovementAreas: stringsOf(doc.Get("improvement_areas")),
		IntroRatings:     ratedEvaluations(doc.Get("intro_ratings"), "intro_rating"),
		ProfileRatings:   ratedEvaluations(doc.Get("profile_ratings"), "profile_rating"),
	}
	if fb := doc.Get("latest_feedback"); fb.Exists() {
		out.LatestFeedback = json.RawMessage(fb.Raw)
	}

	summary := doc.Get("performance_summary")
	out.PerformanceSummary = dto.PerformanceSummaryDTO{
		OverallAverage:   optionalScore(summary.Get("overall_average")),
		TotalAssessments: int(summary.Get("total_assessments").Int()),
		HighestScore:     optionalScore(summary.Get("highest_score")),
	}
	if avg := out.PerformanceSummary.OverallAverage; avg != nil {
		band := bandOf(*avg)
		out.PerformanceSummary.Band = &band
	}

	doc.Get("score_trends").ForEach(func(_, trend gjson.Result) bool {
		t := dto.ScoreTrendDTO{
			Type:       trend.Get("type").String(),
			Scores:     []float64{},
			Timestamps: stringsOf(trend.Get("timestamps")),
			Latest:     rating.ParseScore(trend.Get("latest")),
		}
		trend.Get("scores").ForEach(func(_, v gjson.Result) bool {
			t.Scores = append(t.Scores, rating.ParseScore(v))
			return true
		})
		t.Band = bandOf(t.Latest)
		out.ScoreTrends = append(out.ScoreTrends, t)
		return true
	})
	return out, nil
}

func ratedEvaluations(list gjson.Result, scoreKey string) []dto.RatedEvaluationDTO {
	out := []dto.RatedEvaluationDTO{}
	list.ForEach(func(_, item gjson.Result) bool {
		data := item.Get("data")
		score := rating.ParseScore(data.Get(scoreKey))
		raw := json.RawMessage("null")
		if data.Exists() {
			raw = json.RawMessage(data.Raw)
		}
		out = append(out, dto.RatedEvaluationDTO{
			Timestamp: item.Get("timestamp").String(),
			Score:     score,
			Band:      bandOf(score),
			Data:      raw,
		})
		return true
	})
	return out
}

func bandOf(score float64) dto.BandDTO {
	b := rating.BandFor(score)
	return dto.BandDTO{Class: b.Class, Label: b.Label}
}

func optionalScore(v gjson.Result) *float64 {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	score := rating.ParseScore(v)
	return &score
}

func stringsOf(v gjson.Result) []string {
	out := []string{}
	v.ForEach(func(_, item gjson.Result) bool {
		if s := item.String(); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}
