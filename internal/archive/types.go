package archive

// ProviderLinks is the pair of deterministic URLs a user can open manually.
type ProviderLinks struct {
	Search string `json:"search"`
	Create string `json:"create"`
}

// LookupStatus is the tag of a LookupOutcome.
type LookupStatus string

// Lookup outcome tags.
const (
	LookupFound    LookupStatus = "found"
	LookupNotFound LookupStatus = "not_found"
	LookupError    LookupStatus = "error"
)

// LookupOutcome is produced by a read-only provider query.
type LookupOutcome struct {
	Provider   string
	Status     LookupStatus
	ArchiveURL string
	Err        error
}

// Found builds a found outcome.
func Found(provider, archiveURL string) LookupOutcome {
	return LookupOutcome{Provider: provider, Status: LookupFound, ArchiveURL: archiveURL}
}

// NotFound builds a not_found outcome.
func NotFound(provider string) LookupOutcome {
	return LookupOutcome{Provider: provider, Status: LookupNotFound}
}

// LookupFailed builds an error outcome.
func LookupFailed(provider string, err error) LookupOutcome {
	return LookupOutcome{Provider: provider, Status: LookupError, Err: err}
}

// Message returns the error text, or an empty string.
func (o LookupOutcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// SubmissionStatus is the tag of a SubmissionOutcome.
type SubmissionStatus string

// Submission outcome tags.
const (
	SubmissionCreated         SubmissionStatus = "created"
	SubmissionAccepted        SubmissionStatus = "accepted"
	SubmissionRateLimited     SubmissionStatus = "rate_limited"
	SubmissionChallengeFailed SubmissionStatus = "challenge_failed"
	SubmissionError           SubmissionStatus = "error"
)

// SubmissionOutcome is produced by a create/save provider interaction.
type SubmissionOutcome struct {
	Provider   string
	Status     SubmissionStatus
	ArchiveURL string
	// LastURL is the last address observed by a browser flow, kept for diagnostics.
	LastURL  string
	Attempts int
	Err      error
}

// Succeeded reports whether the provider took the submission.
func (o SubmissionOutcome) Succeeded() bool {
	return o.Status == SubmissionCreated || o.Status == SubmissionAccepted
}

// Message returns the error text, or an empty string.
func (o SubmissionOutcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// SubmissionSummary is the serializable view of a SubmissionOutcome.
type SubmissionSummary struct {
	Provider   string           `json:"provider"`
	Status     SubmissionStatus `json:"status"`
	ArchiveURL string           `json:"archive_url,omitempty"`
	LastURL    string           `json:"last_url,omitempty"`
	Attempts   int              `json:"attempts,omitempty"`
	ErrorKind  string           `json:"error_kind,omitempty"`
}

// Summary converts the outcome for inclusion in a Result.
func (o SubmissionOutcome) Summary() *SubmissionSummary {
	s := &SubmissionSummary{
		Provider:   o.Provider,
		Status:     o.Status,
		ArchiveURL: o.ArchiveURL,
		LastURL:    o.LastURL,
		Attempts:   o.Attempts,
	}
	if o.Err != nil {
		s.ErrorKind = Classify(o.Err)
	}
	return s
}

// Result is the complete answer for one resolution request.
type Result struct {
	RequestID           string             `json:"request_id,omitempty"`
	Target              string             `json:"target"`
	Found               bool               `json:"found"`
	ArchiveURL          string             `json:"archive_url,omitempty"`
	Source              string             `json:"source,omitempty"`
	SubmissionAttempted bool               `json:"submission_attempted"`
	Submitted           bool               `json:"submitted"`
	Submission          *SubmissionSummary `json:"submission,omitempty"`
	Error               string             `json:"error,omitempty"`
	Links               ProviderLinks      `json:"links"`
}

// ManualURL is the link a user can follow to archive the page by hand.
func (r Result) ManualURL() string {
	return r.Links.Create
}
