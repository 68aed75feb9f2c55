package resolver

import (
	"time"

	"github.com/JakeFAU/archive-resolver/internal/archive"
)

// Event is the payload published once per resolution.
type Event struct {
	Outcome string         `json:"outcome"`
	Result  archive.Result `json:"result"`
	At      time.Time      `json:"at"`
}
