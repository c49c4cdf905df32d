package dom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const checkoutPage = `<html><body>
<form id="checkout">
  <input type="hidden" name="csrf" value="tok">
  <label for="fullname">Full name</label>
  <input id="fullname" type="text">
  <label>Shipping notes <textarea name="notes"></textarea></label>
  <input type="text" aria-label="Coupon code">
  <select name="country"><option>US</option></select>
  <input type="submit" value="Place order">
  <button type="button">  Go   Back </button>
  <a class="btn" href="/help">Cancel order</a>
  <button disabled>Disabled</button>
  <button style="display: none">Hidden</button>
  <button></button>
  <div data-formpilot-overlay="1"><button>Overlay OK</button><input type="text"></div>
</form>
</body></html>`

func TestScanFieldsFiltersAndLabels(t *testing.T) {
	snap := mustParse(t, checkoutPage, 1)
	fields := ScanFields(snap)
	require.Len(t, fields, 4)

	require.Equal(t, "fullname", fields[0].ID)
	require.Equal(t, "text", fields[0].Type)
	require.Equal(t, "Full name", fields[0].Label)
	require.Equal(t, "#fullname", fields[0].Selector)

	require.Equal(t, "textarea", fields[1].Type)
	require.Equal(t, "Shipping notes", fields[1].Label)
	require.Equal(t, `[name="notes"]`, fields[1].Selector)

	require.Equal(t, "Coupon code", fields[2].Label)

	require.Equal(t, "select", fields[3].Type)
	require.Equal(t, "country", fields[3].Name)
}

func TestScanFieldsIndexCountsAllCandidates(t *testing.T) {
	// The synthesized id reflects document position among every form
	// control, including the hidden input that is filtered out.
	snap := mustParse(t, checkoutPage, 1)
	fields := ScanFields(snap)
	require.Equal(t, "field_3", fields[2].ID)
}

func TestScanFieldsTypeDefaultsToText(t *testing.T) {
	snap := mustParse(t, `<html><body><input name="q"></body></html>`, 1)
	fields := ScanFields(snap)
	require.Len(t, fields, 1)
	require.Equal(t, "text", fields[0].Type)
}

func TestScanFieldsIsIdempotent(t *testing.T) {
	snap := mustParse(t, checkoutPage, 1)
	require.Equal(t, ScanFields(snap), ScanFields(snap))
}

func TestScanButtonsFiltersAndIntents(t *testing.T) {
	snap := mustParse(t, checkoutPage, 1)
	buttons := ScanButtons(snap)
	require.Len(t, buttons, 3)

	require.Equal(t, "Place order", buttons[0].Text)
	require.Equal(t, "input", buttons[0].Type)
	require.True(t, buttons[0].IsSubmit)

	require.Equal(t, "Go Back", buttons[1].Text)
	require.True(t, buttons[1].IsPrev)
	require.False(t, buttons[1].IsSubmit)

	require.Equal(t, "Cancel order", buttons[2].Text)
	require.Equal(t, "a", buttons[2].Type)
	require.True(t, buttons[2].IsCancel)
}

func TestScanButtonsIntentOverlap(t *testing.T) {
	snap := mustParse(t, `<html><body><button type="submit">Submit and Continue</button></body></html>`, 1)
	buttons := ScanButtons(snap)
	require.Len(t, buttons, 1)
	require.True(t, buttons[0].IsSubmit)
	require.True(t, buttons[0].IsNext)
	require.False(t, buttons[0].IsPrev)
}

func TestScanButtonsTruncatesText(t *testing.T) {
	long := strings.Repeat("Continue to the next step of the process ", 4)
	snap := mustParse(t, `<html><body><button>`+long+`</button></body></html>`, 1)
	buttons := ScanButtons(snap)
	require.Len(t, buttons, 1)
	require.Len(t, []rune(buttons[0].Text), 50)
	require.True(t, buttons[0].IsNext)
}

func TestScanButtonsSkipsStampedHidden(t *testing.T) {
	snap := mustParse(t, `<html><body><button `+HiddenAttr+`="1">Next</button></body></html>`, 1)
	require.Empty(t, ScanButtons(snap))
}

func TestFieldDescriptorDisplayName(t *testing.T) {
	require.Equal(t, "Email", FieldDescriptor{Label: "Email", Name: "email"}.DisplayName())
	require.Equal(t, "email", FieldDescriptor{Name: "email"}.DisplayName())
	require.Equal(t, "you@example.com", FieldDescriptor{Placeholder: "you@example.com"}.DisplayName())
	require.Equal(t, "field", FieldDescriptor{}.DisplayName())
}
