package turn

import (
	"encoding/json"
	"strings"

	"github.com/ayudante-ai/ayudante/internal/log"
)

// ResolvedCall is a tool invocation whose arguments have been fully
// accumulated and parsed, ready for execution.
type ResolvedCall struct {
	ID   string
	Name string
	Args map[string]any
}

// pendingCall is the single mutable accumulator slot. The upstream
// protocol guarantees sequential, non-interleaved tool calls, so one
// slot suffices.
type pendingCall struct {
	id     string
	name   string
	buf    strings.Builder
	args   map[string]any
	parsed bool
}

// accumulator reconstructs tool-call arguments from partial JSON
// fragments. Owned exclusively by one turn's streaming loop.
type accumulator struct {
	open   *pendingCall
	logger log.Logger
}

func newAccumulator(logger log.Logger) *accumulator {
	return &accumulator{logger: logger}
}

// Open starts a new pending call. If a call is already open the signal
// is logged and ignored, per the sequential-call protocol guarantee.
func (a *accumulator) Open(callID, name string) {
	if a.open != nil {
		a.logger.Warn("tool call start while another call is open, ignoring",
			"open_call", a.open.id, "new_call", callID)
		return
	}
	a.open = &pendingCall{id: callID, name: name}
}

// Feed appends a fragment to the open call's buffer and re-parses the
// whole buffer. A failed parse is not an error: the JSON is simply
// incomplete and the previous best-known arguments are retained.
// Argument payloads are small, so re-parsing per fragment is the
// simplest correct strategy.
func (a *accumulator) Feed(fragment string) {
	if a.open == nil {
		a.logger.Warn("tool call fragment with no open call, ignoring")
		return
	}
	a.open.buf.WriteString(fragment)

	var args map[string]any
	if err := json.Unmarshal([]byte(a.open.buf.String()), &args); err == nil {
		a.open.args = args
		a.open.parsed = true
	}
}

// Close performs one final parse attempt if no argument object has been
// captured yet, clears the slot, and returns the resolved call. A buffer
// that never parses yields an empty argument object rather than an
// error.
func (a *accumulator) Close() (ResolvedCall, bool) {
	if a.open == nil {
		a.logger.Warn("tool call stop with no open call, ignoring")
		return ResolvedCall{}, false
	}
	pc := a.open
	a.open = nil

	if !pc.parsed {
		var args map[string]any
		if err := json.Unmarshal([]byte(pc.buf.String()), &args); err == nil {
			pc.args = args
		}
	}
	if pc.args == nil {
		pc.args = map[string]any{}
	}

	return ResolvedCall{ID: pc.id, Name: pc.name, Args: pc.args}, true
}

// Abandon drops any open call without resolving it.
func (a *accumulator) Abandon() {
	a.open = nil
}
