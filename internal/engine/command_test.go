package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"formpilot/internal/dom"
)

// fakeSurface isolates the interpreter from the controller.
type fakeSurface struct {
	buttons []dom.ButtonDescriptor
	posts   []postedMsg
	clicked []string

	fieldCount  int
	rescanCalls int
}

func (s *fakeSurface) Buttons() []dom.ButtonDescriptor { return s.buttons }

func (s *fakeSurface) RescanButtons(ctx context.Context) ([]dom.ButtonDescriptor, error) {
	s.rescanCalls++
	return s.buttons, nil
}

func (s *fakeSurface) Rescan(ctx context.Context) (int, int, error) {
	s.rescanCalls++
	return s.fieldCount, len(s.buttons), nil
}

func (s *fakeSurface) Click(ctx context.Context, b dom.ButtonDescriptor) error {
	s.clicked = append(s.clicked, b.ID)
	return nil
}

func (s *fakeSurface) Post(kind MessageKind, text string) {
	s.posts = append(s.posts, postedMsg{kind, text})
}

func buttonSet() []dom.ButtonDescriptor {
	return []dom.ButtonDescriptor{
		{ID: "next", Text: "Continue to step 2", Selector: "#next", IsNext: true},
		{ID: "back", Text: "Go Back", Selector: "#back", IsPrev: true},
		{ID: "send", Text: "Submit Application", Selector: "#send", IsSubmit: true},
	}
}

func TestClickFuzzyMatchesToken(t *testing.T) {
	surface := &fakeSurface{buttons: buttonSet()}
	in := NewInterpreter(surface)

	require.True(t, in.TryHandle(context.Background(), "click continue"))
	require.Equal(t, []string{"next"}, surface.clicked)
}

func TestClickExactSubstringWinsOverToken(t *testing.T) {
	surface := &fakeSurface{buttons: []dom.ButtonDescriptor{
		{ID: "a", Text: "Save draft"},
		{ID: "b", Text: "Save and continue"},
	}}
	in := NewInterpreter(surface)

	require.True(t, in.TryHandle(context.Background(), "press save and continue"))
	require.Equal(t, []string{"b"}, surface.clicked)
}

func TestClickMissIsStillHandled(t *testing.T) {
	surface := &fakeSurface{buttons: buttonSet()}
	in := NewInterpreter(surface)

	require.True(t, in.TryHandle(context.Background(), "tap frobnicate"))
	require.Empty(t, surface.clicked)
	require.Equal(t, KindError, surface.posts[0].kind)
}

func TestIntentWordsAreCaseInsensitive(t *testing.T) {
	surface := &fakeSurface{buttons: buttonSet()}
	in := NewInterpreter(surface)

	require.True(t, in.TryHandle(context.Background(), "  NEXT "))
	require.True(t, in.TryHandle(context.Background(), "Back"))
	require.True(t, in.TryHandle(context.Background(), "done"))
	require.Equal(t, []string{"next", "back", "send"}, surface.clicked)
}

func TestIntentWordFallsThroughWithoutButton(t *testing.T) {
	surface := &fakeSurface{}
	in := NewInterpreter(surface)

	require.False(t, in.TryHandle(context.Background(), "next"))
	require.False(t, in.TryHandle(context.Background(), "submit"))
	require.False(t, in.TryHandle(context.Background(), "previous"))
	require.False(t, in.TryHandle(context.Background(), "hello there"))
}

func TestButtonsListingIsCapped(t *testing.T) {
	var buttons []dom.ButtonDescriptor
	for i := 0; i < 14; i++ {
		buttons = append(buttons, dom.ButtonDescriptor{ID: fmt.Sprintf("b%d", i), Text: fmt.Sprintf("Button %d", i)})
	}
	surface := &fakeSurface{buttons: buttons}
	in := NewInterpreter(surface)

	require.True(t, in.TryHandle(context.Background(), "list buttons"))
	require.Equal(t, 1, surface.rescanCalls)
	listing := surface.posts[0].text
	require.Contains(t, listing, "10. Button 9")
	require.NotContains(t, listing, "Button 10")
}

func TestRescanEmitsSummary(t *testing.T) {
	surface := &fakeSurface{buttons: buttonSet(), fieldCount: 4}
	in := NewInterpreter(surface)

	require.True(t, in.TryHandle(context.Background(), "rescan"))
	require.Contains(t, surface.posts[0].text, "4 fields, 3 buttons")
}
