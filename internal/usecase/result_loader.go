package usecase

import (
	"context"
	"log"

	"github.com/fadilmartias/introeval-web/internal/model"
	"github.com/fadilmartias/introeval-web/internal/rating"
)

// loadResults writes whatever the task carries inline into the results
// view. With legacy set, ratings missing from the inline data are fetched
// through the older per-file endpoints.
func (s *Session) loadResults(ctx context.Context, task model.Task, legacy bool) {
	if task.TaskID != "" {
		s.SetState(ctx, model.StateLastTaskID, task.TaskID)
	}

	var haveProfile, haveIntro bool
	if d := task.Data; !d.Empty() {
		if d.TranscriptContent != "" {
			s.doc.SetTranscript(d.TranscriptContent)
		}
		if model.Present(d.FormData) {
			s.doc.SetExtractedFields(d.FormData)
		}
		if model.Present(d.ProfileRating) {
			s.doc.SetRating(rating.NormalizeAs(d.ProfileRating, rating.KindProfile))
			haveProfile = true
		}
		if model.Present(d.IntroRating) {
			s.doc.SetRating(rating.NormalizeAs(d.IntroRating, rating.KindIntro))
			haveIntro = true
		}
	}

	if legacy && (!haveProfile || !haveIntro) {
		if !s.loadLegacyRatings(ctx, !haveProfile, !haveIntro) {
			log.Printf("session %s: no stored ratings found for task %s", s.ID, task.TaskID)
		}
	}
}

// loadLegacyRatings reports whether any rating was loaded. Failures are
// logged; the results are shown regardless.
func (s *Session) loadLegacyRatings(ctx context.Context, profile, intro bool) bool {
	ctx = s.requestContext(ctx)
	status, err := s.deps.Queue.RatingCheckStatus(ctx)
	if err != nil {
		log.Printf("session %s: %v", s.ID, err)
		return false
	}

	loaded := false
	if profile && status.ProfileReady && len(status.ProfileFiles) > 0 {
		loaded = s.loadRatingFile(ctx, status.ProfileFiles[0], rating.KindProfile) || loaded
	}
	if intro && status.IntroReady && len(status.IntroFiles) > 0 {
		loaded = s.loadRatingFile(ctx, status.IntroFiles[0], rating.KindIntro) || loaded
	}
	return loaded
}

func (s *Session) loadRatingFile(ctx context.Context, file string, kind rating.Kind) bool {
	body, err := s.deps.Queue.RatingFile(ctx, file)
	if err != nil {
		log.Printf("session %s: %v", s.ID, err)
		return false
	}
	payload, ok := rating.ExtractPayload(body, kind)
	if !ok {
		log.Printf("session %s: rating file %s holds no %s rating", s.ID, file, kind)
		return false
	}
	s.doc.SetRating(rating.NormalizeAs(payload, kind))
	return true
}
