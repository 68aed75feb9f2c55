// Package diagnostics records what a browser session saw at each state transition.
// Recording is write-only: sinks never influence the flow that feeds them.
package diagnostics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-resolver/internal/storage"
)

// Artifact is one snapshot of browser state.
type Artifact struct {
	RequestID  string    `json:"request_id"`
	Sequence   int       `json:"sequence"`
	State      string    `json:"state"`
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	Note       string    `json:"note,omitempty"`
	At         time.Time `json:"at"`
	Screenshot []byte    `json:"-"`
}

// Sink receives artifacts.
type Sink interface {
	Record(ctx context.Context, a Artifact)
}

// Nop discards artifacts.
type Nop struct{}

// Record implements Sink.
func (Nop) Record(context.Context, Artifact) {}

// Multi fans an artifact out to several sinks.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ctx context.Context, a Artifact) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, a)
		}
	}
}

// LogSink writes artifacts as structured log lines.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("diagnostics")}
}

// Record implements Sink.
func (s *LogSink) Record(_ context.Context, a Artifact) {
	s.logger.Info("browser state",
		zap.String("request_id", a.RequestID),
		zap.Int("seq", a.Sequence),
		zap.String("state", a.State),
		zap.String("url", a.URL),
		zap.String("title", a.Title),
		zap.String("note", a.Note),
		zap.Int("screenshot_bytes", len(a.Screenshot)))
}

// BlobSink persists artifact metadata and screenshots to a blob store under
// <request_id>/<seq>_<state>.{json,png}.
type BlobSink struct {
	store  storage.BlobStore
	logger *zap.Logger
}

// NewBlobSink builds a BlobSink.
func NewBlobSink(store storage.BlobStore, logger *zap.Logger) *BlobSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobSink{store: store, logger: logger.Named("diagnostics")}
}

// Record implements Sink. Failures are logged and swallowed.
func (s *BlobSink) Record(ctx context.Context, a Artifact) {
	base := ObjectBase(a)
	meta, err := json.Marshal(a)
	if err != nil {
		s.logger.Warn("marshal artifact", zap.Error(err))
		return
	}
	if _, err := s.store.PutObject(ctx, base+".json", "application/json", bytes.NewReader(meta)); err != nil {
		s.logger.Warn("store artifact", zap.String("path", base+".json"), zap.Error(err))
	}
	if len(a.Screenshot) == 0 {
		return
	}
	if _, err := s.store.PutObject(ctx, base+".png", "image/png", bytes.NewReader(a.Screenshot)); err != nil {
		s.logger.Warn("store screenshot", zap.String("path", base+".png"), zap.Error(err))
	}
}

// ObjectBase is the extension-less object path for a.
func ObjectBase(a Artifact) string {
	id := a.RequestID
	if id == "" {
		id = "unknown"
	}
	state := strings.ToLower(strings.ReplaceAll(a.State, " ", "_"))
	return fmt.Sprintf("%s/%02d_%s", id, a.Sequence, state)
}
