package storyapi

// Status is the remote job lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status ends the job's tracked lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Request describes one generation job. All fields the remote pipeline needs
// must be supplied up front; the service accepts no amendments once the job
// is running.
type Request struct {
	Title      string `json:"title"`
	ChildName  string `json:"childName"`
	AgeRange   string `json:"ageRange,omitempty"`
	Theme      string `json:"theme,omitempty"`
	PageCount  int    `json:"pageCount,omitempty"`
	ArtStyle   string `json:"artStyle,omitempty"`
	Dedication string `json:"dedication,omitempty"`
	Language   string `json:"language,omitempty"`
}

// CreatedJob is the service's acknowledgement of an accepted job.
type CreatedJob struct {
	JobID            string `json:"jobId"`
	CreditsRemaining int    `json:"creditsRemaining"`
}

// Progress is the pipeline's coarse progress report on a 0-100 scale.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// CoverSet carries the three cover-slot image payloads. Fields are base64
// encoded image bytes; empty means not yet generated.
type CoverSet struct {
	FrontCover  string `json:"frontCover,omitempty"`
	InitialPage string `json:"initialPage,omitempty"`
	BackCover   string `json:"backCover,omitempty"`
}

// PartialPage is one incrementally delivered page fragment.
type PartialPage struct {
	Page  int    `json:"page"`
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

// StoryDraft is the story text payload. It arrives once mid-run and again,
// authoritatively, inside the completed result.
type StoryDraft struct {
	Title             string         `json:"title"`
	Pages             map[int]string `json:"pages"`
	Dedication        string         `json:"dedication,omitempty"`
	PageCount         int            `json:"pageCount"`
	SceneDescriptions []string       `json:"sceneDescriptions,omitempty"`
}

// JobResult is the authoritative final payload of a completed job.
type JobResult struct {
	Story            StoryDraft    `json:"story"`
	SceneImages      []PartialPage `json:"sceneImages,omitempty"`
	Covers           CoverSet      `json:"covers"`
	CreditsRemaining *int          `json:"creditsRemaining,omitempty"`
}

// JobStatus is one poll response. Optional fields arrive incrementally as
// the pipeline advances; Kind() discriminates the response category so merge
// code switches over a sum type instead of sniffing fields.
type JobStatus struct {
	JobID          string        `json:"jobId"`
	Status         Status        `json:"status"`
	Progress       *Progress     `json:"progress,omitempty"`
	PartialCovers  *CoverSet     `json:"partialCovers,omitempty"`
	StoryText      *StoryDraft   `json:"storyText,omitempty"`
	PartialPages   []PartialPage `json:"partialPages,omitempty"`
	Result         *JobResult    `json:"result,omitempty"`
	Error          string        `json:"error,omitempty"`
	CurrentCredits *int          `json:"currentCredits,omitempty"`
}

// ResponseKind classifies a poll response.
type ResponseKind int

const (
	// KindProgress is a non-terminal response; it may carry any mix of
	// progress, cover, story text, and page fragments.
	KindProgress ResponseKind = iota
	// KindCompleted is the terminal success response carrying Result.
	KindCompleted
	// KindFailed is the terminal failure response carrying Error.
	KindFailed
)

// Kind returns the response category for this status.
func (s *JobStatus) Kind() ResponseKind {
	switch s.Status {
	case StatusCompleted:
		return KindCompleted
	case StatusFailed:
		return KindFailed
	default:
		return KindProgress
	}
}
