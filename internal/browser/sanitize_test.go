package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		want         string
		wantModified bool
	}{
		{
			name:  "plain ascii untouched",
			input: "hello",
			want:  "hello",
		},
		{
			name:  "bmp characters kept",
			input: "héllo wörld �",
			want:  "héllo wörld �",
		},
		{
			name:         "emoji removed",
			input:        "hello \U0001F600 world",
			want:         "hello  world",
			wantModified: true,
		},
		{
			name:         "supplementary plane only",
			input:        "\U0001F680\U0001F681",
			want:         "",
			wantModified: true,
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, modified := SanitizeText(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantModified, modified)
		})
	}
}
