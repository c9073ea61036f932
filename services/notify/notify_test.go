package notifysvc

import (
	"net/mail"
	"strings"
	"sync"
	"testing"

	"github.com/darasa/backend/core"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (m *fakeMailer) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		if err := msg.Render(); err != nil {
			panic(err)
		}
		m.sent = append(m.sent, msg)
	}
}

func newNotifier() (*Notifier, *fakeMailer) {
	mailer := new(fakeMailer)
	book := StaticAddressBook{
		1: {Name: "Amina", Address: "amina@test.test"},
	}
	return NewNotifier(mailer, book, core.NopLogger{}), mailer
}

func TestNotifier_Emit(t *testing.T) {
	completed := core.NewEvent(core.EventModuleCompleted, 1)
	completed.Data["cumulative_score"] = 87.0
	failed := core.NewEvent(core.EventModuleFailed, 1)
	failed.Data["cumulative_score"] = 42.5
	suspended := core.NewEvent(core.EventStudentSuspended, 1)
	suspended.Data["reason"] = "2 failed modules with no retakes remaining"
	approved := core.NewEvent(core.EventAppealResolved, 1)
	approved.Data["approved"] = true
	denied := core.NewEvent(core.EventAppealResolved, 1)
	denied.Data["approved"] = false

	tests := []struct {
		name        string
		event       core.Event
		wantSubject string
		wantInBody  string
	}{
		{"module completed", completed, "Module completed", "score of 87.00"},
		{"module failed", failed, "Module failed", "Your score was 42.50"},
		{"suspended", suspended, "Course access suspended", "Reason: 2 failed modules"},
		{"appeal approved", approved, "Your appeal has been reviewed", "approved, your course access has been restored"},
		{"appeal denied", denied, "Your appeal has been reviewed", "denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, mailer := newNotifier()
			n.Emit(tt.event)

			if len(mailer.sent) != 1 {
				t.Fatalf("sent = %d messages, want 1", len(mailer.sent))
			}
			msg := mailer.sent[0]
			if msg.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", msg.Subject, tt.wantSubject)
			}
			if !strings.Contains(msg.TextContent, tt.wantInBody) {
				t.Errorf("body %q does not contain %q", msg.TextContent, tt.wantInBody)
			}
			want := []mail.Address{{Name: "Amina", Address: "amina@test.test"}}
			if len(msg.To) != 1 || msg.To[0] != want[0] {
				t.Errorf("To = %v, want %v", msg.To, want)
			}
		})
	}
}

func TestNotifier_Emit_skips(t *testing.T) {
	n, mailer := newNotifier()

	// unmapped event types are dropped
	n.Emit(core.NewEvent("module.unlocked", 1))
	if len(mailer.sent) != 0 {
		t.Errorf("sent = %d messages for an unmapped event, want 0", len(mailer.sent))
	}

	// no address on file: logged and skipped
	evt := core.NewEvent(core.EventModuleCompleted, 99)
	evt.Data["cumulative_score"] = 90.0
	n.Emit(evt)
	if len(mailer.sent) != 0 {
		t.Errorf("sent = %d messages for an unknown student, want 0", len(mailer.sent))
	}
}
