package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLesson(t *testing.T) {
	tests := []struct {
		name string
		in   LessonComponents
		want float64
	}{
		{name: "all zero", in: LessonComponents{}, want: 0},
		{name: "all full", in: LessonComponents{100, 100, 100, 100}, want: 100},
		{
			name: "mixed components",
			in:   LessonComponents{ReadingProgress: 100, EngagementScore: 80, QuizScore: 60, AssignmentScore: 0},
			want: 60,
		},
		{
			name: "components clamped before weighting",
			in:   LessonComponents{ReadingProgress: 150, EngagementScore: -20, QuizScore: 100, AssignmentScore: 100},
			want: 75,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Lesson(tt.in), 1e-9)
		})
	}
}

func TestLesson_equalWeights(t *testing.T) {
	// permuting component values yields the same score since all four
	// weights are equal
	a := Lesson(LessonComponents{10, 20, 30, 40})
	b := Lesson(LessonComponents{40, 30, 20, 10})
	assert.InDelta(t, a, b, 1e-9)
}

func TestLesson_bounds(t *testing.T) {
	for _, in := range []LessonComponents{
		{0, 0, 0, 0},
		{100, 100, 100, 100},
		{-50, 200, 42.5, 99.99},
	} {
		got := Lesson(in)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 100.0)
	}
}

func TestModule(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{name: "no activity", scores: nil, want: 0},
		{name: "empty", scores: []float64{}, want: 0},
		{name: "single", scores: []float64{75}, want: 75},
		{name: "mean", scores: []float64{90, 70, 80}, want: 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Module(tt.scores), 1e-9)
		})
	}
}

func TestModuleWeighted(t *testing.T) {
	// lessons 10% + quizzes 30% + assignments 40% + final 20%
	got := ModuleWeighted(100, 90, 80, 70)
	assert.InDelta(t, 10+27+32+14, got, 1e-9)

	assert.InDelta(t, 0, ModuleWeighted(0, 0, 0, 0), 1e-9)
	assert.InDelta(t, 100, ModuleWeighted(100, 100, 100, 100), 1e-9)
}

func TestCourse(t *testing.T) {
	// unstarted modules are excluded by the caller; two started modules
	// scoring 90 and 70 average to 80, not 53.3
	assert.InDelta(t, 80, Course([]float64{90, 70}), 1e-9)
	assert.InDelta(t, 0, Course(nil), 1e-9)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 66.67, Round2(66.666666))
	assert.Equal(t, 80.0, Round2(80))
	assert.Equal(t, 0.0, Round2(0))
}
