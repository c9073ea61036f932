package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	. "github.com/darasa/backend/apps/api/echo"
	"github.com/darasa/backend/core"
	"github.com/darasa/backend/core/override"
	"github.com/darasa/backend/core/progression"
	"github.com/darasa/backend/core/suspension"
	inmemdb "github.com/darasa/backend/storage/database/inmem"
)

type fixture struct {
	app      *Server
	progSvc  *progression.Service
	suspSvc  *suspension.Service
	progRepo progression.Repository
	suspRepo suspension.Repository
	dir      *inmemdb.Directory
	conf     *core.Config
}

func setup(t *testing.T) *fixture {
	t.Helper()

	// set up DB & repos
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open(): %v", err)
	}
	progRepo := inmemdb.NewProgressionRepository(db)
	suspRepo := inmemdb.NewSuspensionRepository(db)
	dir := inmemdb.NewDirectory()
	conf := core.NewTestConfig()

	// set up services
	progSvc := progression.NewService(progRepo, dir, dir, core.NopSink{}, conf, core.NopLogger{})
	suspSvc := suspension.NewService(suspRepo, progSvc, dir, dir, core.NopSink{}, conf, core.NopLogger{})
	overSvc := override.NewService(progRepo, dir, core.NopSink{}, conf, core.NopLogger{})
	progSvc.SetSuspensionChecker(suspSvc)
	progSvc.SetFailureObserver(suspSvc)

	// seed the catalog
	dir.AddCourse(progression.Course{ID: 1, Title: "Course 1", StartDate: time.Now().UTC().AddDate(0, -1, 0)})
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
	dir.AddEnrollment(progression.Enrollment{ID: 1, StudentID: 1, CourseID: 1, Active: true})

	// set up server
	app := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         core.NopLogger{},
		ProgressionSvc: progSvc,
		SuspensionSvc:  suspSvc,
		OverrideSvc:    overSvc,
	})
	return &fixture{
		app:      app,
		progSvc:  progSvc,
		suspSvc:  suspSvc,
		progRepo: progRepo,
		suspRepo: suspRepo,
		dir:      dir,
		conf:     conf,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	wantCode int
	wantData []byte
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return req, rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
