package browser

// State is a step of the submission flow.
type State string

// Submission flow states.
const (
	StateIdle                     State = "IDLE"
	StateNavigating               State = "NAVIGATING"
	StateChallengeCheck           State = "CHALLENGE_CHECK"
	StateNoChallenge              State = "NO_CHALLENGE"
	StateSolving                  State = "SOLVING"
	StateSubmitForm               State = "SUBMIT_FORM"
	StatePostSubmitChallengeCheck State = "POST_SUBMIT_CHALLENGE_CHECK"
	StatePolling                  State = "POLLING"
	StateDone                     State = "DONE"
	StateTimeout                  State = "TIMEOUT"
	StateFailed                   State = "FAILED"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateTimeout || s == StateFailed
}
