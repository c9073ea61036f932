package progression_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/darasa/backend/core"
	"github.com/darasa/backend/core/progression"
	inmemdb "github.com/darasa/backend/storage/database/inmem"
)

type fixture struct {
	svc  *progression.Service
	repo progression.Repository
	dir  *inmemdb.Directory
	sink *core.RecordingSink
	conf *core.Config
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open(): %v", err)
	}
	repo := inmemdb.NewProgressionRepository(db)
	dir := inmemdb.NewDirectory()
	sink := &core.RecordingSink{}
	conf := core.NewTestConfig()
	svc := progression.NewService(repo, dir, dir, sink, conf, core.NopLogger{})

	past := time.Now().UTC().AddDate(0, -1, 0)

	// standard course: no time gates
	dir.AddCourse(progression.Course{ID: 1, Title: "Course 1", StartDate: past})
	dir.AddModule(progression.Module{
		ID: 10, CourseID: 1, Title: "Module 1", Ordinal: 1,
		LessonIDs: []int{101, 102},
		Assessments: []progression.Assessment{
			{ID: 201, ModuleID: 10, Type: progression.AssessmentQuiz, Required: true},
			{ID: 202, ModuleID: 10, Type: progression.AssessmentAssignment, Required: true},
			{ID: 203, ModuleID: 10, Type: progression.AssessmentFinal, Required: true},
		},
	})
	dir.AddModule(progression.Module{
		ID: 20, CourseID: 1, Title: "Module 2", Ordinal: 2,
		LessonIDs: []int{103},
		Assessments: []progression.Assessment{
			{ID: 204, ModuleID: 20, Type: progression.AssessmentQuiz, Required: true},
		},
	})

	// weekly-release course: module 2 releases in 6 days
	dir.AddCourse(progression.Course{ID: 2, Title: "Course 2", StartDate: time.Now().UTC().Add(-24 * time.Hour), ReleaseIntervalDays: 7})
	dir.AddModule(progression.Module{ID: 30, CourseID: 2, Title: "Week 1", Ordinal: 1, LessonIDs: []int{301}})
	dir.AddModule(progression.Module{
		ID: 40, CourseID: 2, Title: "Week 2", Ordinal: 2,
		LessonIDs: []int{401},
		Assessments: []progression.Assessment{
			{ID: 402, ModuleID: 40, Type: progression.AssessmentQuiz, Required: true},
		},
	})

	// one-quiz course: fails fast
	dir.AddCourse(progression.Course{ID: 3, Title: "Course 3", StartDate: past})
	dir.AddModule(progression.Module{
		ID: 60, CourseID: 3, Title: "Solo", Ordinal: 1,
		LessonIDs: []int{601},
		Assessments: []progression.Assessment{
			{ID: 610, ModuleID: 60, Type: progression.AssessmentQuiz, Required: true},
		},
	})

	dir.AddEnrollment(progression.Enrollment{ID: 1, StudentID: 1, CourseID: 1, Active: true})
	dir.AddEnrollment(progression.Enrollment{ID: 2, StudentID: 1, CourseID: 2, Active: true})
	dir.AddEnrollment(progression.Enrollment{ID: 3, StudentID: 1, CourseID: 3, Active: true})
	dir.AddEnrollment(progression.Enrollment{ID: 4, StudentID: 2, CourseID: 3, Active: true})

	return &fixture{svc: svc, repo: repo, dir: dir, sink: sink, conf: conf}
}

func fptr(f float64) *float64 { return &f }

func submit(t *testing.T, f *fixture, studentID, assessmentID int, sc float64) progression.AttemptResult {
	t.Helper()
	res, err := f.svc.SubmitAttempt(context.Background(), studentID, assessmentID, progression.NewAttempt{Score: fptr(sc)})
	if err != nil {
		t.Fatalf("SubmitAttempt(%d, %d): %v", studentID, assessmentID, err)
	}
	return res
}

func ping(t *testing.T, f *fixture, studentID, lessonID int, reading, engagement float64, quiz, assignment *float64) progression.LessonScoreView {
	t.Helper()
	view, err := f.svc.RecordLessonProgress(context.Background(), studentID, lessonID, progression.NewLessonProgress{
		ReadingProgress: reading,
		EngagementScore: engagement,
		QuizScore:       quiz,
		AssignmentScore: assignment,
	})
	if err != nil {
		t.Fatalf("RecordLessonProgress(%d, %d): %v", studentID, lessonID, err)
	}
	return view
}

// completeModule10 drives student 1 through module 10 to a passing finish:
// lessons maxed (100), quiz 90, assignment 85, final 80 -> weighted 87.
func completeModule10(t *testing.T, f *fixture) progression.AttemptResult {
	t.Helper()
	ping(t, f, 1, 101, 100, 100, fptr(100), fptr(100))
	ping(t, f, 1, 102, 100, 100, fptr(100), fptr(100))
	submit(t, f, 1, 201, 90)
	submit(t, f, 1, 202, 85)
	return submit(t, f, 1, 203, 80)
}

func TestService_GetModuleProgress(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// first read lazily creates the record unlocked
	view, err := f.svc.GetModuleProgress(ctx, 1, 10)
	if err != nil {
		t.Fatalf("GetModuleProgress(): %v", err)
	}
	if view.Status != progression.StatusUnlocked {
		t.Errorf("Status = %v, want unlocked", view.Status)
	}
	if !view.IsReleased {
		t.Error("IsReleased = false, want true")
	}
	if view.RetakesRemaining != f.conf.Engine.RetakeLimit {
		t.Errorf("RetakesRemaining = %d, want %d", view.RetakesRemaining, f.conf.Engine.RetakeLimit)
	}

	// module 2 stays locked behind the sequence gate
	view, err = f.svc.GetModuleProgress(ctx, 1, 20)
	if err != nil {
		t.Fatalf("GetModuleProgress(): %v", err)
	}
	if view.Status != progression.StatusLocked {
		t.Errorf("Status = %v, want locked", view.Status)
	}

	// no record persisted behind the gate
	if _, err = f.repo.GetModuleProgress(ctx, 1, 20); errors.Cause(err) != progression.ErrNotFound {
		t.Errorf("locked module persisted a record; err = %v", err)
	}

	// completing module 1 opens module 2
	completeModule10(t, f)
	view, err = f.svc.GetModuleProgress(ctx, 1, 20)
	if err != nil {
		t.Fatalf("GetModuleProgress(): %v", err)
	}
	if view.Status != progression.StatusUnlocked {
		t.Errorf("Status after predecessor completed = %v, want unlocked", view.Status)
	}
}

func TestService_RecordLessonProgress(t *testing.T) {
	f := setup(t)

	view := ping(t, f, 1, 101, 50, 40, nil, nil)
	if view.ModuleStatus != progression.StatusInProgress {
		t.Errorf("ModuleStatus = %v, want in_progress", view.ModuleStatus)
	}
	if view.Completed {
		t.Error("Completed = true at 50% reading")
	}
	if want := 22.5; view.LessonScore != want { // (50+40+0+0)/4
		t.Errorf("LessonScore = %v, want %v", view.LessonScore, want)
	}

	// progress never moves backwards
	view = ping(t, f, 1, 101, 30, 10, nil, nil)
	if want := 22.5; view.LessonScore != want {
		t.Errorf("LessonScore after lower ping = %v, want %v", view.LessonScore, want)
	}

	// reading 100 completes the lesson
	view = ping(t, f, 1, 101, 100, 80, fptr(90), fptr(70))
	if !view.Completed {
		t.Error("Completed = false at 100% reading")
	}
	if want := 85.0; view.LessonScore != want { // (100+80+90+70)/4
		t.Errorf("LessonScore = %v, want %v", view.LessonScore, want)
	}
}

func TestService_RecordLessonProgress_validation(t *testing.T) {
	f := setup(t)

	_, err := f.svc.RecordLessonProgress(context.Background(), 1, 101, progression.NewLessonProgress{ReadingProgress: 150})
	if err == nil {
		t.Fatal("RecordLessonProgress() accepted reading progress > 100")
	}

	// gated module rejects activity
	_, err = f.svc.RecordLessonProgress(context.Background(), 1, 103, progression.NewLessonProgress{ReadingProgress: 10})
	if errors.Cause(err) != progression.ErrModuleNotUnlocked {
		t.Errorf("locked module ping error = %v, want ErrModuleNotUnlocked", err)
	}
}

func TestService_SubmitAttempt_numberingAndLimit(t *testing.T) {
	f := setup(t)

	for i, wantRemaining := range []int{2, 1, 0} {
		res := submit(t, f, 1, 610, 10)
		if res.AttemptNumber != i+1 {
			t.Errorf("AttemptNumber = %d, want %d", res.AttemptNumber, i+1)
		}
		if res.AttemptsRemaining != wantRemaining {
			t.Errorf("AttemptsRemaining = %d, want %d", res.AttemptsRemaining, wantRemaining)
		}
	}

	_, err := f.svc.SubmitAttempt(context.Background(), 1, 610, progression.NewAttempt{Score: fptr(10)})
	if errors.Cause(err) != progression.ErrAttemptLimitExceeded {
		t.Errorf("4th attempt error = %v, want ErrAttemptLimitExceeded", err)
	}
}

func TestService_SubmitAttempt_completesModule(t *testing.T) {
	f := setup(t)

	res := completeModule10(t, f)
	if res.ModuleStatus != progression.StatusCompleted {
		t.Errorf("ModuleStatus = %v, want completed", res.ModuleStatus)
	}
	// 0.10*100 + 0.30*90 + 0.40*85 + 0.20*80
	if want := 87.0; res.WeightedScore != want {
		t.Errorf("WeightedScore = %v, want %v", res.WeightedScore, want)
	}

	view, err := f.svc.GetModuleProgress(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("GetModuleProgress(): %v", err)
	}
	if view.CompletedAt == nil {
		t.Error("CompletedAt = nil on a completed module")
	}

	var completed int
	for _, ev := range f.sink.Events() {
		if ev.Type == core.EventModuleCompleted {
			completed++
			if ev.ModuleID != 10 || ev.StudentID != 1 {
				t.Errorf("completed event = student %d module %d", ev.StudentID, ev.ModuleID)
			}
		}
	}
	if completed != 1 {
		t.Errorf("module.completed events = %d, want 1", completed)
	}

	// completed is terminal for submissions
	_, err = f.svc.SubmitAttempt(context.Background(), 1, 201, progression.NewAttempt{Score: fptr(100)})
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("submit on completed module error = %v, want validation error", err)
	}
}

func TestService_failAndRetake(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	obs := &recordingObserver{}
	f.svc.SetFailureObserver(obs)

	submit(t, f, 1, 610, 10)
	submit(t, f, 1, 610, 20)
	res := submit(t, f, 1, 610, 30)
	if res.ModuleStatus != progression.StatusFailed {
		t.Fatalf("ModuleStatus after exhausting attempts = %v, want failed", res.ModuleStatus)
	}
	if got := obs.calls(); got != 1 {
		t.Errorf("failure observer calls = %d, want 1", got)
	}

	var failedEvents int
	for _, ev := range f.sink.Events() {
		if ev.Type == core.EventModuleFailed {
			failedEvents++
		}
	}
	if failedEvents != 1 {
		t.Errorf("module.failed events = %d, want 1", failedEvents)
	}

	// failed module rejects further submissions
	_, err := f.svc.SubmitAttempt(ctx, 1, 610, progression.NewAttempt{Score: fptr(100)})
	if errors.Cause(err) != progression.ErrAttemptLimitExceeded {
		t.Errorf("submit on failed module error = %v, want ErrAttemptLimitExceeded", err)
	}

	// retake opens a fresh round; history is retained
	view, err := f.svc.RequestRetake(ctx, 1, 60)
	if err != nil {
		t.Fatalf("RequestRetake(): %v", err)
	}
	if view.Status != progression.StatusInProgress {
		t.Errorf("Status after retake = %v, want in_progress", view.Status)
	}
	if view.RetakesUsed != 1 {
		t.Errorf("RetakesUsed = %d, want 1", view.RetakesUsed)
	}
	history, err := f.svc.AttemptHistory(ctx, 1, 60)
	if err != nil {
		t.Fatalf("AttemptHistory(): %v", err)
	}
	if len(history) != 3 {
		t.Errorf("attempt history = %d rows, want 3 preserved", len(history))
	}

	// counters reset in the new round
	res = submit(t, f, 1, 610, 40)
	if res.AttemptNumber != 1 {
		t.Errorf("AttemptNumber in new round = %d, want 1", res.AttemptNumber)
	}

	// burn the remaining budget: fail round 1, retake, fail round 2
	submit(t, f, 1, 610, 10)
	submit(t, f, 1, 610, 10)
	if _, err = f.svc.RequestRetake(ctx, 1, 60); err != nil {
		t.Fatalf("RequestRetake(): %v", err)
	}
	submit(t, f, 1, 610, 10)
	submit(t, f, 1, 610, 10)
	submit(t, f, 1, 610, 10)

	_, err = f.svc.RequestRetake(ctx, 1, 60)
	if errors.Cause(err) != progression.ErrRetakeLimitExceeded {
		t.Errorf("3rd retake error = %v, want ErrRetakeLimitExceeded", err)
	}
}

func TestService_RequestRetake_notFailed(t *testing.T) {
	f := setup(t)

	ping(t, f, 1, 601, 10, 0, nil, nil) // in_progress
	_, err := f.svc.RequestRetake(context.Background(), 1, 60)
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("retake on in-progress module error = %v, want validation error", err)
	}
}

func TestService_pendingGradeDecides(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// lessons and two of three assessments done; final awaits manual grading
	ping(t, f, 1, 101, 100, 100, fptr(100), fptr(100))
	ping(t, f, 1, 102, 100, 100, fptr(100), fptr(100))
	submit(t, f, 1, 201, 90)
	submit(t, f, 1, 202, 85)
	res, err := f.svc.SubmitAttempt(ctx, 1, 203, progression.NewAttempt{})
	if err != nil {
		t.Fatalf("SubmitAttempt(pending): %v", err)
	}
	if res.ModuleStatus != progression.StatusInProgress {
		t.Fatalf("ModuleStatus with pending grade = %v, want in_progress", res.ModuleStatus)
	}

	graded, err := f.svc.GradeAttempt(ctx, res.AttemptID, progression.AttemptGrade{Score: 80, GraderID: 7})
	if err != nil {
		t.Fatalf("GradeAttempt(): %v", err)
	}
	if graded.ModuleStatus != progression.StatusCompleted {
		t.Errorf("ModuleStatus after grading = %v, want completed", graded.ModuleStatus)
	}
	if want := 87.0; graded.WeightedScore != want {
		t.Errorf("WeightedScore = %v, want %v", graded.WeightedScore, want)
	}
}

func TestService_pendingGradeBlocksFail(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	submit(t, f, 1, 610, 10)
	submit(t, f, 1, 610, 10)
	res, err := f.svc.SubmitAttempt(ctx, 1, 610, progression.NewAttempt{}) // 3rd, ungraded
	if err != nil {
		t.Fatalf("SubmitAttempt(pending): %v", err)
	}
	// attempts exhausted, but the pending grade holds the verdict open
	if res.ModuleStatus != progression.StatusInProgress {
		t.Fatalf("ModuleStatus = %v, want in_progress while grade pending", res.ModuleStatus)
	}

	graded, err := f.svc.GradeAttempt(ctx, res.AttemptID, progression.AttemptGrade{Score: 20, GraderID: 7})
	if err != nil {
		t.Fatalf("GradeAttempt(): %v", err)
	}
	if graded.ModuleStatus != progression.StatusFailed {
		t.Errorf("ModuleStatus after low grade = %v, want failed", graded.ModuleStatus)
	}
}

func TestService_concurrentSubmissions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// materialize the progress record before racing
	if _, err := f.svc.GetModuleProgress(ctx, 2, 60); err != nil {
		t.Fatalf("GetModuleProgress(): %v", err)
	}

	const workers = 5
	var wg sync.WaitGroup
	var mu sync.Mutex
	var numbers []int
	var limitErrs int

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			res, err := f.svc.SubmitAttempt(ctx, 2, 610, progression.NewAttempt{Score: fptr(50)})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Cause(err) == progression.ErrAttemptLimitExceeded {
					limitErrs++
				} else {
					t.Errorf("SubmitAttempt(): %v", err)
				}
				return
			}
			numbers = append(numbers, res.AttemptNumber)
		}()
	}
	wg.Wait()

	if limitErrs != 2 {
		t.Errorf("limit errors = %d, want 2", limitErrs)
	}
	sort.Ints(numbers)
	if len(numbers) != 3 || numbers[0] != 1 || numbers[1] != 2 || numbers[2] != 3 {
		t.Errorf("attempt numbers = %v, want [1 2 3]", numbers)
	}
}

func TestService_suspensionGuard(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.svc.SetSuspensionChecker(staticChecker(true))

	if _, err := f.svc.RecordLessonProgress(ctx, 1, 101, progression.NewLessonProgress{ReadingProgress: 10}); errors.Cause(err) != progression.ErrEnrollmentSuspended {
		t.Errorf("RecordLessonProgress error = %v, want ErrEnrollmentSuspended", err)
	}
	if _, err := f.svc.SubmitAttempt(ctx, 1, 201, progression.NewAttempt{Score: fptr(50)}); errors.Cause(err) != progression.ErrEnrollmentSuspended {
		t.Errorf("SubmitAttempt error = %v, want ErrEnrollmentSuspended", err)
	}
	if _, err := f.svc.RequestRetake(ctx, 1, 10); errors.Cause(err) != progression.ErrEnrollmentSuspended {
		t.Errorf("RequestRetake error = %v, want ErrEnrollmentSuspended", err)
	}

	// reads stay open
	if _, err := f.svc.GetModuleProgress(ctx, 1, 10); err != nil {
		t.Errorf("GetModuleProgress while suspended: %v", err)
	}
}

func TestService_timeGates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// week 1 released a day after start
	view, err := f.svc.GetModuleProgress(ctx, 1, 30)
	if err != nil {
		t.Fatalf("GetModuleProgress(): %v", err)
	}
	if view.Status != progression.StatusUnlocked {
		t.Errorf("week 1 status = %v, want unlocked", view.Status)
	}

	// week 2 releases 7 days after start
	view, err = f.svc.GetModuleProgress(ctx, 1, 40)
	if err != nil {
		t.Fatalf("GetModuleProgress(): %v", err)
	}
	if view.Status != progression.StatusLocked {
		t.Errorf("week 2 status = %v, want locked", view.Status)
	}
	if view.IsReleased {
		t.Error("week 2 IsReleased = true before the release date")
	}
	if view.ReleaseAt == nil {
		t.Error("week 2 ReleaseAt = nil, want the scheduled date")
	}

	if _, err = f.svc.RecordLessonProgress(ctx, 1, 401, progression.NewLessonProgress{ReadingProgress: 10}); errors.Cause(err) != progression.ErrModuleNotUnlocked {
		t.Errorf("gated lesson ping error = %v, want ErrModuleNotUnlocked", err)
	}
}

func TestService_CourseScore_startedOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	completeModule10(t, f)

	// module 2 unlocked but untouched: excluded, not scored as 0
	if _, err := f.svc.GetModuleProgress(ctx, 1, 20); err != nil {
		t.Fatalf("GetModuleProgress(): %v", err)
	}
	cs, err := f.svc.CourseScore(ctx, 1, 1)
	if err != nil {
		t.Fatalf("CourseScore(): %v", err)
	}
	if want := 87.0; cs != want {
		t.Errorf("CourseScore = %v, want %v (unstarted module excluded)", cs, want)
	}

	// starting module 2 pulls it into the mean
	ping(t, f, 1, 103, 100, 100, fptr(100), fptr(100)) // weighted = 0.10*100, quiz still 0
	cs, err = f.svc.CourseScore(ctx, 1, 1)
	if err != nil {
		t.Fatalf("CourseScore(): %v", err)
	}
	if want := 48.5; cs != want { // (87 + 10) / 2
		t.Errorf("CourseScore = %v, want %v", cs, want)
	}
}

func TestService_CourseProgress(t *testing.T) {
	f := setup(t)

	completeModule10(t, f)
	view, err := f.svc.CourseProgress(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("CourseProgress(): %v", err)
	}
	if len(view.Modules) != 2 {
		t.Fatalf("modules = %d, want 2", len(view.Modules))
	}
	if view.Modules[0].Status != progression.StatusCompleted {
		t.Errorf("module 1 status = %v, want completed", view.Modules[0].Status)
	}
	if view.Modules[1].ModuleID != 20 {
		t.Errorf("modules out of ordinal order: %v", view.Modules[1].ModuleID)
	}
	if want := 87.0; view.CourseScore != want {
		t.Errorf("CourseScore = %v, want %v", view.CourseScore, want)
	}
}

func TestService_SweepReleases(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if err := f.svc.SweepReleases(ctx); err != nil {
		t.Fatalf("SweepReleases(): %v", err)
	}

	// released modules got records without any student read
	mp, err := f.repo.GetModuleProgress(ctx, 1, 30)
	if err != nil {
		t.Fatalf("week 1 record after sweep: %v", err)
	}
	if mp.Status != progression.StatusUnlocked {
		t.Errorf("week 1 status = %v, want unlocked", mp.Status)
	}

	// gated module stays absent
	if _, err = f.repo.GetModuleProgress(ctx, 1, 40); errors.Cause(err) != progression.ErrNotFound {
		t.Errorf("week 2 after sweep: err = %v, want ErrNotFound", err)
	}
}

func TestService_AttemptsRemaining(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	n, err := f.svc.AttemptsRemaining(ctx, 1, 610)
	if err != nil {
		t.Fatalf("AttemptsRemaining(): %v", err)
	}
	if n != 3 {
		t.Errorf("AttemptsRemaining = %d, want 3", n)
	}

	submit(t, f, 1, 610, 50)
	if n, _ = f.svc.AttemptsRemaining(ctx, 1, 610); n != 2 {
		t.Errorf("AttemptsRemaining = %d, want 2", n)
	}
}

// seams

type staticChecker bool

func (c staticChecker) IsSuspended(context.Context, int, int) (bool, error) { return bool(c), nil }

type recordingObserver struct {
	mu sync.Mutex
	n  int
}

func (o *recordingObserver) ModuleFailed(context.Context, int, int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.n++
	return nil
}

func (o *recordingObserver) calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.n
}
