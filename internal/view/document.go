package view

import (
	"encoding/json"
	"log"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/fadilmartias/introeval-web/internal/dto"
	"github.com/fadilmartias/introeval-web/internal/rating"
)

const (
	TranscriptionStatus = "transcription-status"
	ExtractionStatus    = "extraction-status"
	RatingStatus        = "rating-status"
)

const (
	StatePending    = "pending"
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateError      = "error"
)

const (
	SectionUpload     = "upload"
	SectionProcessing = "processing"
	SectionResults    = "results"
)

const (
	StepUpload     = "upload"
	StepTranscribe = "transcribe"
	StepExtract    = "extract"
	StepRate       = "rate"

	StepActive    = "active"
	StepCompleted = "completed"
)

var (
	statusElements = []string{TranscriptionStatus, ExtractionStatus, RatingStatus}
	sections       = []string{SectionUpload, SectionProcessing, SectionResults}
	steps          = []string{StepUpload, StepTranscribe, StepExtract, StepRate}
)

// TaskStatusView is one write into a status box. Empty Title or Message and
// a nil Progress leave the current value in place.
type TaskStatusView struct {
	Element  string
	State    string
	Title    string
	Message  string
	Progress *int
}

func Progress(p int) *int {
	return &p
}

type StatusBox struct {
	Icon     string `json:"icon"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

type Notice struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

type Redirect struct {
	To string    `json:"to"`
	At time.Time `json:"at"`
}

// Snapshot is a copy of the document safe to serialise while the session
// keeps writing.
type Snapshot struct {
	Version           uint64                   `json:"version"`
	Sections          map[string]bool          `json:"sections"`
	Statuses          map[string]StatusBox     `json:"statuses"`
	Steps             map[string]string        `json:"steps"`
	TaskID            string                   `json:"task_id,omitempty"`
	QueuePosition     string                   `json:"queue_position,omitempty"`
	QueueStatus       string                   `json:"queue_status,omitempty"`
	ProcessingMessage *Notice                  `json:"processing_message,omitempty"`
	Notices           []Notice                 `json:"notices,omitempty"`
	Error             string                   `json:"error,omitempty"`
	Redirect          *Redirect                `json:"redirect,omitempty"`
	Transcript        string                   `json:"transcript,omitempty"`
	ExtractedFields   json.RawMessage          `json:"extracted_fields,omitempty"`
	ProfileRating     *rating.NormalizedRating `json:"profile_rating,omitempty"`
	IntroRating       *rating.NormalizedRating `json:"intro_rating,omitempty"`
	QueueStats        *dto.QueueStatsDTO       `json:"queue_stats,omitempty"`
}

// Document is the server-side model of what one browser tab shows. All
// methods are safe for concurrent use; every visible change bumps Version
// and wakes watchers.
type Document struct {
	mu      sync.Mutex
	snap    Snapshot
	changed chan struct{}
}

func NewDocument() *Document {
	d := &Document{changed: make(chan struct{})}
	d.snap = initial()
	return d
}

func initial() Snapshot {
	s := Snapshot{
		Sections: map[string]bool{SectionUpload: true},
		Statuses: make(map[string]StatusBox, len(statusElements)),
		Steps:    make(map[string]string, len(steps)),
	}
	for _, el := range statusElements {
		s.Statuses[el] = StatusBox{Icon: "status-icon " + StatePending}
	}
	return s
}

// update applies fn under the lock and notifies watchers when fn reports a
// change.
func (d *Document) update(fn func(s *Snapshot) bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !fn(&d.snap) {
		return
	}
	d.snap.Version++
	close(d.changed)
	d.changed = make(chan struct{})
}

// Changed returns a channel closed on the next change after the call.
func (d *Document) Changed() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.changed
}

func (d *Document) Version() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap.Version
}

func (d *Document) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.snap
	s.Sections = maps.Clone(d.snap.Sections)
	s.Statuses = maps.Clone(d.snap.Statuses)
	s.Steps = maps.Clone(d.snap.Steps)
	s.Notices = slices.Clone(d.snap.Notices)
	s.ExtractedFields = slices.Clone(d.snap.ExtractedFields)
	if d.snap.ProcessingMessage != nil {
		msg := *d.snap.ProcessingMessage
		s.ProcessingMessage = &msg
	}
	if d.snap.Redirect != nil {
		r := *d.snap.Redirect
		s.Redirect = &r
	}
	if d.snap.QueueStats != nil {
		qs := *d.snap.QueueStats
		s.QueueStats = &qs
	}
	return s
}

// Render writes a status into its box. An unknown element is logged and
// skipped.
func (d *Document) Render(v TaskStatusView) {
	if !slices.Contains(statusElements, v.Element) {
		log.Printf("view: status element %q not found", v.Element)
		return
	}
	d.update(func(s *Snapshot) bool {
		box := s.Statuses[v.Element]
		next := box
		if v.State != "" {
			next.Icon = "status-icon " + v.State
		}
		if v.Title != "" {
			next.Title = v.Title
		}
		if v.Message != "" {
			next.Message = v.Message
		}
		if v.Progress != nil {
			next.Progress = min(max(*v.Progress, 0), 100)
		}
		if next == box {
			return false
		}
		s.Statuses[v.Element] = next
		return true
	})
}

func (d *Document) Status(element string) (StatusBox, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	box, ok := d.snap.Statuses[element]
	return box, ok
}

func (d *Document) show(only ...string) {
	d.update(func(s *Snapshot) bool {
		next := make(map[string]bool, len(sections))
		for _, name := range only {
			next[name] = true
		}
		if maps.Equal(next, s.Sections) {
			return false
		}
		s.Sections = next
		return true
	})
}

func (d *Document) ShowUpload() { d.show(SectionUpload) }
func (d *Document) ShowProcessing() { d.show(SectionProcessing) }
func (d *Document) ShowResults() { d.show(SectionResults) }

func (d *Document) ResultsShown() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap.Sections[SectionResults]
}

// SetStep marks one step of the upload/transcribe/extract/rate indicator.
func (d *Document) SetStep(step, state string) {
	if !slices.Contains(steps, step) {
		log.Printf("view: step %q not found", step)
		return
	}
	d.update(func(s *Snapshot) bool {
		if s.Steps[step] == state {
			return false
		}
		s.Steps[step] = state
		return true
	})
}

func (d *Document) CompleteAllSteps() {
	for _, step := range steps {
		d.SetStep(step, StepCompleted)
	}
}

func (d *Document) SetTask(taskID, position string) {
	d.update(func(s *Snapshot) bool {
		if s.TaskID == taskID && s.QueuePosition == position {
			return false
		}
		s.TaskID, s.QueuePosition = taskID, position
		return true
	})
}

func (d *Document) SetQueueStatus(text string) {
	d.update(func(s *Snapshot) bool {
		if s.QueueStatus == text {
			return false
		}
		s.QueueStatus = text
		return true
	})
}

func (d *Document) SetProcessingMessage(level, text string) {
	d.update(func(s *Snapshot) bool {
		s.ProcessingMessage = &Notice{Level: level, Text: text}
		return true
	})
}

func (d *Document) AddNotice(level, text string) {
	d.update(func(s *Snapshot) bool {
		s.Notices = append(s.Notices, Notice{Level: level, Text: text})
		return true
	})
}

// ShowError opens the error modal.
func (d *Document) ShowError(message string) {
	d.update(func(s *Snapshot) bool {
		if s.Error == message {
			return false
		}
		s.Error = message
		return true
	})
}

func (d *Document) ClearError() {
	d.ShowError("")
}

func (d *Document) SetRedirect(to string, at time.Time) {
	d.update(func(s *Snapshot) bool {
		s.Redirect = &Redirect{To: to, At: at}
		return true
	})
}

func (d *Document) SetTranscript(text string) {
	d.update(func(s *Snapshot) bool {
		if s.Transcript == text {
			return false
		}
		s.Transcript = text
		return true
	})
}

func (d *Document) SetExtractedFields(raw json.RawMessage) {
	d.update(func(s *Snapshot) bool {
		s.ExtractedFields = slices.Clone(raw)
		return true
	})
}

// SetRating fills the results tab for r.Kind; generic payloads land in the
// intro tab.
func (d *Document) SetRating(r rating.NormalizedRating) {
	d.update(func(s *Snapshot) bool {
		if r.Kind == rating.KindProfile {
			s.ProfileRating = &r
		} else {
			s.IntroRating = &r
		}
		return true
	})
}

func (d *Document) SetQueueStats(stats dto.QueueStatsDTO) {
	d.update(func(s *Snapshot) bool {
		if s.QueueStats != nil && *s.QueueStats == stats {
			return false
		}
		s.QueueStats = &stats
		return true
	})
}

// Reset returns the document to the upload form, keeping the version
// counter monotonic.
func (d *Document) Reset() {
	d.update(func(s *Snapshot) bool {
		version := s.Version
		*s = initial()
		s.Version = version
		return true
	})
}
