package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := [][]string{
		nil,
		{"  "},
		{" one ", "", "\n\t", "two\n"},
		{"same", "same", "  same  "},
		{"a\n\nb", " ", "c"},
	}
	for _, in := range cases {
		out := Normalize(in)

		var want []string
		for _, s := range in {
			if strings.TrimSpace(s) != "" {
				want = append(want, strings.TrimSpace(s))
			}
		}
		assert.Len(t, out, len(want))
		for i := range want {
			assert.Equal(t, want[i], out[i])
		}
	}

	assert.Equal(t, []string{"one", "two"}, Normalize([]string{" one ", "", "\n\t", "two\n"}))
	assert.Equal(t, []string{"a\n\nb"}, Normalize([]string{"a\n\nb"}))
}
