package university

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeSlug(t *testing.T) {
	cases := map[string]string{
		"Rice University":                  "rice-university",
		"  Texas A&M -- College Station ":  "texas-a-m-college-station",
		"Université de Montréal":           "universit-de-montr-al",
		"!!!":                              "",
		strings.Repeat("ab-", 40) + "tail": strings.TrimRight(strings.Repeat("ab-", 40)[:100], "-"),
	}
	for in, want := range cases {
		assert.Equal(t, want, MakeSlug(in), in)
	}
}

func TestValidSlug(t *testing.T) {
	assert.True(t, ValidSlug("rice"))
	assert.True(t, ValidSlug("mit-2"))
	assert.False(t, ValidSlug(""))
	assert.False(t, ValidSlug("Rice"))
	assert.False(t, ValidSlug("rice:canonical"))
	assert.False(t, ValidSlug("-rice"))
}
