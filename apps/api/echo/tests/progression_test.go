package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/darasa/backend/core/progression"
)

func fptr(f float64) *float64 { return &f }

func Test_progressionApi_moduleProgress(t *testing.T) {
	f := setup(t)

	tests := []httpTest{
		{
			name: "First module unlocks on read", method: http.MethodGet,
			path: "/v1/students/1/modules/10/progress", wantCode: http.StatusOK,
			wantData: marchallObj(t, progression.ModuleProgressView{
				ModuleID: 10, CourseID: 1, Status: progression.StatusUnlocked,
				RetakesRemaining: 2, IsReleased: true,
			}),
		},
		{
			name: "Second module is sequence-gated", method: http.MethodGet,
			path: "/v1/students/1/modules/20/progress", wantCode: http.StatusOK,
			wantData: marchallObj(t, progression.ModuleProgressView{
				ModuleID: 20, CourseID: 1, Status: progression.StatusLocked,
				RetakesRemaining: 2, IsReleased: true,
			}),
		},
		{
			name: "Bad path param", method: http.MethodGet,
			path: "/v1/students/abc/modules/10/progress", wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path)
			f.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_progressionApi_recordLessonProgress(t *testing.T) {
	f := setup(t)

	tests := []httpTest{
		{
			name: "Ping records and scores", method: http.MethodPost,
			path: "/v1/students/1/lessons/101/progress",
			body: marchallObj(t, progression.NewLessonProgress{ReadingProgress: 100, EngagementScore: 80}),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, progression.LessonScoreView{
				LessonID: 101, ModuleID: 10, LessonScore: 45,
				Completed: true, ModuleStatus: progression.StatusInProgress,
			}),
		},
		{
			name: "Out-of-range component", method: http.MethodPost,
			path: "/v1/students/1/lessons/101/progress",
			body: marchallObj(t, progression.NewLessonProgress{ReadingProgress: 150}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "Locked module rejects activity", method: http.MethodPost,
			path: "/v1/students/1/lessons/103/progress",
			body: marchallObj(t, progression.NewLessonProgress{ReadingProgress: 10}),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "module is not unlocked"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			f.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_progressionApi_submitAttempt(t *testing.T) {
	f := setup(t)

	tt := httpTest{
		name: "Submit scores and counts", method: http.MethodPost,
		path: "/v1/students/1/assessments/201/attempts",
		body: marchallObj(t, progression.NewAttempt{Score: fptr(90)}),
		wantCode: http.StatusCreated,
		wantData: marchallObj(t, progression.AttemptResult{
			AttemptID: 2, AttemptNumber: 1, AttemptsRemaining: 2, // pk 1 is the progress record
			ModuleStatus: progression.StatusInProgress, WeightedScore: 27, // quiz-only so far
		}),
	}
	req, rec := newRequest(tt.method, tt.path, tt.body)
	f.app.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)

	// exhaust the budget
	for i := 0; i < 2; i++ {
		req, rec = newRequest(http.MethodPost, tt.path, marchallObj(t, progression.NewAttempt{Score: fptr(90)}))
		f.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("attempt %d: code = %v", i+2, rec.Code)
		}
	}
	over := httpTest{
		name: "Limit reached", wantCode: http.StatusConflict,
		wantData: marchallObj(t, httpErr{Error: "attempt limit exceeded"}),
	}
	req, rec = newRequest(http.MethodPost, tt.path, marchallObj(t, progression.NewAttempt{Score: fptr(90)}))
	f.app.ServeHTTP(rec, req)
	checkCodeAndData(t, over, rec)
}

func Test_progressionApi_gradeAttempt(t *testing.T) {
	f := setup(t)

	// ungraded submission awaits an instructor
	res, err := f.progSvc.SubmitAttempt(context.Background(), 1, 202, progression.NewAttempt{})
	if err != nil {
		t.Fatalf("SubmitAttempt(): %v", err)
	}

	gradePath := fmt.Sprintf("/v1/attempts/%d/grade", res.AttemptID)
	tests := []httpTest{
		{
			name: "Missing grader", method: http.MethodPost,
			path: gradePath,
			body: marchallObj(t, map[string]interface{}{"score": 95}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "Grade lands", method: http.MethodPost,
			path: gradePath,
			body: marchallObj(t, progression.AttemptGrade{Score: 95, GraderID: 7}),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, progression.AttemptResult{
				AttemptID: res.AttemptID, AttemptNumber: 1, AttemptsRemaining: 2,
				ModuleStatus: progression.StatusInProgress, WeightedScore: 38, // assignment-only so far
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			f.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_progressionApi_attemptsRemaining(t *testing.T) {
	f := setup(t)

	tt := httpTest{
		method: http.MethodGet, path: "/v1/students/1/assessments/201/attempts-remaining",
		wantCode: http.StatusOK,
		wantData: marchallObj(t, map[string]int{"attempts_remaining": 3}),
	}
	req, rec := newRequest(tt.method, tt.path)
	f.app.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
}

func Test_progressionApi_requestRetake(t *testing.T) {
	f := setup(t)

	// nothing failed yet
	if _, err := f.progSvc.GetModuleProgress(context.Background(), 1, 10); err != nil {
		t.Fatalf("GetModuleProgress(): %v", err)
	}
	tt := httpTest{
		method: http.MethodPost, path: "/v1/students/1/modules/10/retake",
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, httpErr{Error: "only failed modules can be retaken"}),
	}
	req, rec := newRequest(tt.method, tt.path)
	f.app.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
}

func Test_progressionApi_courseProgress(t *testing.T) {
	f := setup(t)

	// touch module 1 so the course has a started module
	if _, err := f.progSvc.RecordLessonProgress(context.Background(), 1, 101, progression.NewLessonProgress{
		ReadingProgress: 100, EngagementScore: 100, QuizScore: fptr(100), AssignmentScore: fptr(100),
	}); err != nil {
		t.Fatalf("RecordLessonProgress(): %v", err)
	}

	want, err := f.progSvc.CourseProgress(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("CourseProgress(): %v", err)
	}
	tests := []httpTest{
		{
			method: http.MethodGet, path: "/v1/students/1/courses/1/progress",
			wantCode: http.StatusOK, wantData: marchallObj(t, want),
		},
		{
			method: http.MethodGet, path: "/v1/students/1/courses/1/score",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]float64{"course_score": 5}), // lessons 50 of a 2-lesson module
		},
	}
	for _, tt := range tests {
		req, rec := newRequest(tt.method, tt.path)
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	}
}
