package node

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "", TruncateRunes("abc", 0))
	assert.Equal(t, "abc", TruncateRunes("abc", 5))
	assert.Equal(t, "第一", TruncateRunes("第一章", 2))
	assert.Equal(t, "ab", TruncateRunes("abcdef", 2))
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"leading prose", "Here you go:\n{\"a\":1}\nEnjoy", `{"a":1}`},
		{"brace inside string", `note {"a":"}{"} trailing }`, `{"a":"}{"}`},
		{"array", `result: [1,2,3]`, `[1,2,3]`},
		{"skips invalid candidate", `{oops} {"ok":true}`, `{"ok":true}`},
		{"no json", "  nothing here ", "nothing here"},
		{"unclosed", `{"a":1`, `{"a":1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestIsResponseFormatUnsupported(t *testing.T) {
	assert.False(t, IsResponseFormatUnsupported(nil))
	assert.True(t, IsResponseFormatUnsupported(errors.New("400: response_format is not supported")))
	assert.True(t, IsResponseFormatUnsupported(errors.New("Unknown parameter: 'response'")))
	assert.False(t, IsResponseFormatUnsupported(errors.New("rate limit exceeded")))
	assert.False(t, IsResponseFormatUnsupported(errors.New("invalid api key")))
}
