package submission

import (
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vibetunes/internal/domain"
)

// Status tags the variant held by State.
type Status string

const (
	StatusIdle                    Status = "idle"
	StatusLoading                 Status = "loading"
	StatusLoadingWithDelayWarning Status = "loading_with_delay_warning"
	StatusSucceeded               Status = "succeeded"
	StatusFailed                  Status = "failed"
)

// Loading reports whether a request is pending in this status.
func (s Status) Loading() bool {
	return s == StatusLoading || s == StatusLoadingWithDelayWarning
}

// DelayAdvisory is shown while a request outlives the delay threshold.
const DelayAdvisory = "⏳ The process is taking longer than usual. Sometimes, when server load is high, it can take up to 2-3 minutes. Please be patient."

// State is a published snapshot of the submission workflow. Only the fields of the
// current Status are populated.
type State struct {
	Version   uint64        `json:"version"`
	Status    Status        `json:"status"`
	Elapsed   time.Duration `json:"-"`
	ElapsedMS int64         `json:"elapsed_ms,omitempty"`
	Advisory  string        `json:"advisory,omitempty"`

	Genre      string         `json:"genre,omitempty"`
	GenreLabel string         `json:"genre_label,omitempty"`
	Videos     []domain.Video `json:"videos,omitempty"`

	Category Category `json:"category,omitempty"`
	Message  string   `json:"message,omitempty"`
}

func idleState() State {
	return State{Status: StatusIdle}
}

func succeededState(rec *domain.Recommendation) State {
	videos := make([]domain.Video, len(rec.Videos))
	copy(videos, rec.Videos)
	return State{
		Status:     StatusSucceeded,
		Genre:      rec.Genre,
		GenreLabel: cases.Title(language.Und).String(rec.Genre),
		Videos:     videos,
	}
}

func failedState(err error) State {
	category, message := Classify(err)
	return State{Status: StatusFailed, Category: category, Message: message}
}

func (s State) clone() State {
	if s.Videos != nil {
		videos := make([]domain.Video, len(s.Videos))
		copy(videos, s.Videos)
		s.Videos = videos
	}
	return s
}
