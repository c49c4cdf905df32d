package backend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"formpilot/internal/dom"
	"formpilot/internal/engine"
)

// ErrNoMoreQuestions is returned when the backend reports the document
// complete while the traversal still expects a question.
var ErrNoMoreQuestions = errors.New("the document has no more questions")

// RemoteSource drives a remote-document session: the backend owns the
// authoritative field state and hands out one question per turn, so the
// source holds only the pending question, never a scanned copy of the
// document.
type RemoteSource struct {
	client    *Client
	sessionID string
	logger    *zap.Logger

	fields  []dom.FieldDescriptor
	pending *engine.Turn
}

func NewRemoteSource(client *Client, sessionID string, logger *zap.Logger) *RemoteSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteSource{client: client, sessionID: sessionID, logger: logger}
}

func (s *RemoteSource) Mode() engine.Mode { return engine.ModeRemote }

// Start fetches the first pending question and sizes the traversal from
// the backend's reported total. A document with no questions yields an
// empty field sequence, which the controller treats as a warning.
func (s *RemoteSource) Start(ctx context.Context) (*engine.StartResult, error) {
	res, err := s.client.NextQuestion(ctx, s.sessionID, "", "")
	if err != nil {
		return nil, err
	}
	if res.Completed || res.Question == nil {
		return &engine.StartResult{SessionID: s.sessionID}, nil
	}

	total := res.Question.Total
	if total < 1 {
		total = 1
	}
	s.fields = make([]dom.FieldDescriptor, total)
	for i := range s.fields {
		s.fields[i] = dom.FieldDescriptor{
			ID:   fmt.Sprintf("doc_field_%d", i),
			Type: "text",
		}
	}
	s.pending = s.turnFrom(res.Question)
	return &engine.StartResult{SessionID: s.sessionID, Fields: s.fields}, nil
}

// Question returns the backend's pending question for the turn, fetching
// one when nothing is buffered from the previous Apply.
func (s *RemoteSource) Question(ctx context.Context, field dom.FieldDescriptor, index, total int) (*engine.Turn, error) {
	if s.pending == nil {
		res, err := s.client.NextQuestion(ctx, s.sessionID, "", "")
		if err != nil {
			return nil, err
		}
		if res.Completed || res.Question == nil {
			return nil, ErrNoMoreQuestions
		}
		s.pending = s.turnFrom(res.Question)
	}
	turn := s.pending
	turn.Index = index
	turn.Total = total
	return turn, nil
}

// Apply submits the answer keyed by the backend's field name and buffers
// the question that comes back, so the next turn needs no extra round trip.
func (s *RemoteSource) Apply(ctx context.Context, turn *engine.Turn, answer string) error {
	res, err := s.client.NextQuestion(ctx, s.sessionID, turn.Field.Name, answer)
	if err != nil {
		return err
	}
	s.pending = nil
	if !res.Completed && res.Question != nil {
		s.pending = s.turnFrom(res.Question)
	}
	return nil
}

func (s *RemoteSource) Fields(ctx context.Context) ([]dom.FieldDescriptor, error) {
	return s.fields, nil
}

// Buttons is empty: a document has no clickable chrome.
func (s *RemoteSource) Buttons(ctx context.Context) ([]dom.ButtonDescriptor, error) {
	return nil, nil
}

func (s *RemoteSource) Click(ctx context.Context, b dom.ButtonDescriptor) error {
	return errors.New("document sessions have no buttons to click")
}

func (s *RemoteSource) turnFrom(q *RemoteQuestion) *engine.Turn {
	return &engine.Turn{
		Field: dom.FieldDescriptor{
			ID:   q.FieldName,
			Name: q.FieldName,
			Type: q.FieldType,
		},
		Question:  q.Text,
		FieldType: q.FieldType,
		Options:   engine.NormalizeOptions(q.Options),
	}
}
