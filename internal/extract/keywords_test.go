package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywords(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		text  string
		title string
		want  []string
	}{
		{
			name: "empty",
			want: []string{},
		},
		{
			name:  "stop words and numbers dropped",
			text:  "The cat and the dog. The cat sat in 2024.",
			title: "A Cat Story",
			want:  []string{"cat", "dog", "sat", "story"},
		},
		{
			name: "top ten by frequency",
			text: "alpha alpha alpha beta beta gamma delta epsilon zeta eta theta iota kappa lambda mu",
			want: []string{"alpha", "beta", "delta", "epsilon", "eta", "gamma", "iota", "kappa", "lambda", "mu"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Keywords(tc.text, tc.title))
		})
	}
}
