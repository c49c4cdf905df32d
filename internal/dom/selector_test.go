package dom

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const registrationPage = `<html><body>
<div id="signup">
  <form>
    <label for="email">Email address</label>
    <input id="email" type="email" placeholder="you@example.com">
    <input name="phone" type="tel">
    <div>
      <input type="text">
      <input type="text">
    </div>
  </form>
</div>
</body></html>`

func mustParse(t *testing.T, src string, generation int) *Snapshot {
	t.Helper()
	snap, err := ParseString(src, generation)
	require.NoError(t, err)
	return snap
}

func findNth(t *testing.T, s *Snapshot, tag string, n int) *Element {
	t.Helper()
	var found *Element
	seen := 0
	s.Walk(func(el *Element) bool {
		if el.Tag() == tag {
			seen++
			if seen == n {
				found = el
				return false
			}
		}
		return true
	})
	require.NotNil(t, found, "no %s #%d in fixture", tag, n)
	return found
}

func TestGeneratePrefersID(t *testing.T) {
	snap := mustParse(t, registrationPage, 1)
	require.Equal(t, "#email", Generate(findNth(t, snap, "input", 1)))
}

func TestGenerateFallsBackToName(t *testing.T) {
	snap := mustParse(t, registrationPage, 1)
	require.Equal(t, `[name="phone"]`, Generate(findNth(t, snap, "input", 2)))
}

func TestGenerateAnchoredPath(t *testing.T) {
	snap := mustParse(t, registrationPage, 1)
	sel := Generate(findNth(t, snap, "input", 4))
	require.Equal(t, "#signup > form > div > input:nth-of-type(2)", sel)
}

func TestGenerateResolveRoundTrip(t *testing.T) {
	snap := mustParse(t, registrationPage, 1)
	for n := 1; n <= 4; n++ {
		el := findNth(t, snap, "input", n)
		got := snap.Resolve(Generate(el))
		require.NotNil(t, got, "input #%d did not resolve", n)
		require.True(t, got.Same(el), "input #%d resolved to a different node", n)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	snap := mustParse(t, registrationPage, 1)
	el := findNth(t, snap, "input", 4)
	require.Equal(t, Generate(el), Generate(el))
}

func TestGenerateUnanchoredPath(t *testing.T) {
	snap := mustParse(t, `<html><body><p>a</p><p><span>x</span></p></body></html>`, 1)
	el := findNth(t, snap, "span", 1)
	sel := Generate(el)
	require.Equal(t, "html > body > p:nth-of-type(2) > span", sel)
	got := snap.Resolve(sel)
	require.NotNil(t, got)
	require.True(t, got.Same(el))
}

func TestResolveMissingReturnsNil(t *testing.T) {
	snap := mustParse(t, registrationPage, 1)
	require.Nil(t, snap.Resolve("#nope"))
	require.Nil(t, snap.Resolve(`[name="nope"]`))
	require.Nil(t, snap.Resolve("#signup > form > div > input:nth-of-type(9)"))
}

func TestResolveMalformedReturnsNil(t *testing.T) {
	snap := mustParse(t, registrationPage, 1)
	require.Nil(t, snap.Resolve(""))
	require.Nil(t, snap.Resolve("#signup > > input"))
	require.Nil(t, snap.Resolve("div:nth-of-type(x)"))
}

func TestResolveAtRejectsStaleGeneration(t *testing.T) {
	snap := mustParse(t, registrationPage, 2)
	_, err := snap.ResolveAt("#email", 1)
	require.True(t, errors.Is(err, ErrStaleSelector))

	el, err := snap.ResolveAt("#email", 2)
	require.NoError(t, err)
	require.NotNil(t, el)
}
