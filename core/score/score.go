// Package score computes the multi-level scores of the progression engine:
// lesson, module (lesson-only average), module weighted (the passing score)
// and course. All functions are pure and never return NaN; empty inputs
// score 0. Rounding happens only at the presentation boundary via Round2.
package score

import "math"

// Lesson component weights; each component counts equally.
const (
	lessonReadingWeight    = 0.25
	lessonEngagementWeight = 0.25
	lessonQuizWeight       = 0.25
	lessonAssignmentWeight = 0.25
)

// Module weighted-score blend. This is the passing score, distinct from
// Module (lesson-only, used for display/analytics).
const (
	WeightLessons     = 0.10
	WeightQuizzes     = 0.30
	WeightAssignments = 0.40
	WeightFinal       = 0.20
)

// LessonComponents are the raw inputs of a lesson score. Missing
// components stay 0, they never null-propagate.
type LessonComponents struct {
	ReadingProgress float64
	EngagementScore float64
	QuizScore       float64
	AssignmentScore float64
}

// Clamp bounds v to [0,100].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Lesson returns the weighted lesson score: reading 25%, engagement 25%,
// quiz component 25%, assignment component 25%.
func Lesson(c LessonComponents) float64 {
	return Clamp(c.ReadingProgress)*lessonReadingWeight +
		Clamp(c.EngagementScore)*lessonEngagementWeight +
		Clamp(c.QuizScore)*lessonQuizWeight +
		Clamp(c.AssignmentScore)*lessonAssignmentWeight
}

// Module returns the arithmetic mean of the given lesson scores.
// A module with zero attempted lessons scores 0, not NaN.
func Module(lessonScores []float64) float64 {
	return mean(lessonScores)
}

// ModuleWeighted blends the module's component scores into the passing
// score: lessons 10%, quizzes 30%, assignments 40%, final assessment 20%.
func ModuleWeighted(moduleScore, quizScore, assignmentScore, finalScore float64) float64 {
	return Clamp(moduleScore)*WeightLessons +
		Clamp(quizScore)*WeightQuizzes +
		Clamp(assignmentScore)*WeightAssignments +
		Clamp(finalScore)*WeightFinal
}

// Course returns the arithmetic mean of the weighted scores of started
// modules. Callers must only pass modules with at least one progress
// record; modules never started are excluded, not scored as 0.
func Course(moduleWeightedScores []float64) float64 {
	return mean(moduleWeightedScores)
}

// Round2 rounds to two decimal places; presentation boundary only, never
// use internally between tiers.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}
