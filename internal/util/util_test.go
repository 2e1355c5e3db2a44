package util

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsSortable(t *testing.T) {
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = New()
	}
	assert.True(t, sort.StringsAreSorted(ids))
	assert.Len(t, ids[0], 26)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, cc, want string
	}{
		{"0912 345 6789", "+98", "+989123456789"},
		{"00989123456789", "+98", "+989123456789"},
		{"989123456789", "+98", "+989123456789"},
		{"9123456789", "+98", "+989123456789"},
		{"+1 (415) 555-0100", "+98", "+14155550100"},
		{"", "+98", ""},
		{"4155550100", "", "4155550100"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in, tt.cc), tt.in)
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ana@example.com", NormalizeEmail("  Ana@Example.com "))
	assert.Equal(t, "", NormalizeEmail("not-an-email"))
	assert.Equal(t, "", NormalizeEmail("Ana <ana@example.com>"))
}
