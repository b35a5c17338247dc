package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnglish_Analyze(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"stems plurals", "Cats and dogs", []string{"cat", "dog"}},
		{"drops stop words", "the dog is on the mat", []string{"dog", "mat"}},
		{"splits punctuation", "dog,cat;dog.", []string{"dog", "cat", "dog"}},
		{"keeps repeated terms", "dog dog dog", []string{"dog", "dog", "dog"}},
		{"stems verbs", "running", []string{"run"}},
		{"empty", "   ", []string{}},
	}
	a := NewEnglish()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Analyze(tt.text))
		})
	}
}

func TestAnalyzerFunc(t *testing.T) {
	var a Analyzer = AnalyzerFunc(Whitespace)
	assert.Equal(t, []string{"hello", "world"}, a.Analyze("Hello  World"))
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("the"))
	assert.False(t, IsStopWord("lens"))
}
