package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeOptionsStrings(t *testing.T) {
	got := NormalizeOptions([]interface{}{"Yes", "No", "Maybe"})
	require.Equal(t, []Option{
		{Label: "Yes", Value: "Yes"},
		{Label: "No", Value: "No"},
		{Label: "Maybe", Value: "Maybe"},
	}, got)
}

func TestNormalizeOptionsObjectFallbacks(t *testing.T) {
	got := NormalizeOptions([]interface{}{
		map[string]interface{}{"label": "United States", "value": "US"},
		map[string]interface{}{"label": "Canada"},
		map[string]interface{}{"value": "MX"},
	})
	require.Equal(t, []Option{
		{Label: "United States", Value: "US"},
		{Label: "Canada", Value: "Canada"},
		{Label: "MX", Value: "MX"},
	}, got)
}

func TestNormalizeOptionsDropsEmptyAndUnknown(t *testing.T) {
	got := NormalizeOptions([]interface{}{"", map[string]interface{}{}, 42, nil, "Ok"})
	require.Equal(t, []Option{{Label: "Ok", Value: "Ok"}}, got)
}

func TestTurnAffordance(t *testing.T) {
	opts := []Option{{Label: "A", Value: "A"}}
	require.Equal(t, AffordanceOptions, (&Turn{FieldType: "radio_group", Options: opts}).Affordance())
	require.Equal(t, AffordanceText, (&Turn{FieldType: "radio_group"}).Affordance())
	require.Equal(t, AffordanceYesNo, (&Turn{FieldType: "checkbox"}).Affordance())
	require.Equal(t, AffordanceText, (&Turn{FieldType: "text"}).Affordance())
	require.Equal(t, AffordanceText, (&Turn{FieldType: "image"}).Affordance())
}
