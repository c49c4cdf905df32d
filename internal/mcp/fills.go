package mcp

import (
	"sync"
	"time"

	"formpilot/internal/engine"
	"formpilot/internal/recorder"
)

// Message is one chat-surface message as returned to the MCP caller.
type Message struct {
	Kind string    `json:"kind"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// transcript buffers engine messages between tool calls and mirrors them
// into the session recorder. It is the engine's Messenger: every user-facing
// message the controller emits lands here.
type transcript struct {
	mu        sync.Mutex
	pending   []Message
	rec       *recorder.Recorder
	sessionID string
}

func newTranscript(rec *recorder.Recorder, sessionID string) *transcript {
	return &transcript{rec: rec, sessionID: sessionID}
}

func (t *transcript) Post(kind engine.MessageKind, text string) {
	msg := Message{Kind: string(kind), Text: text, At: time.Now()}
	t.mu.Lock()
	t.pending = append(t.pending, msg)
	t.mu.Unlock()
	if t.rec != nil {
		t.rec.Record(t.sessionID, string(kind), text, nil)
	}
}

// bind attaches the engine session id once it is known. Start posts its
// first messages before the id exists.
func (t *transcript) bind(sessionID string) {
	t.mu.Lock()
	t.sessionID = sessionID
	t.mu.Unlock()
}

// replay writes the buffered messages into the recorder. Start posts its
// messages before the transcript file exists; the caller replays them once
// it does so the transcript opens with the summary and first question.
func (t *transcript) replay() {
	if t.rec == nil {
		return
	}
	t.mu.Lock()
	pending := append([]Message(nil), t.pending...)
	sessionID := t.sessionID
	t.mu.Unlock()
	for _, m := range pending {
		t.rec.Record(sessionID, m.Kind, m.Text, nil)
	}
}

// drain returns and clears the messages accumulated since the last call.
func (t *transcript) drain() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.pending
	t.pending = nil
	return out
}

// fillSession is one running conversation. The engine controller is not
// goroutine-safe; the mutex serializes all tool calls that touch it.
type fillSession struct {
	mu         sync.Mutex
	controller *engine.Controller
	log        *transcript
	mode       engine.Mode
	pageID     string
}

// fillRegistry tracks running fill sessions by their engine session id.
type fillRegistry struct {
	mu   sync.RWMutex
	byID map[string]*fillSession
}

func newFillRegistry() *fillRegistry {
	return &fillRegistry{byID: make(map[string]*fillSession)}
}

func (r *fillRegistry) put(id string, f *fillSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = f
}

func (r *fillRegistry) get(id string) (*fillSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byID[id]
	return f, ok
}

func (r *fillRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// removeByPage drops every fill session bound to a closed page and returns
// their ids so the caller can finish their transcripts.
func (r *fillRegistry) removeByPage(pageID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, f := range r.byID {
		if f.pageID == pageID {
			delete(r.byID, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// ids returns all active fill session ids.
func (r *fillRegistry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	return out
}
