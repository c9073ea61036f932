package notifysvc

import (
	"fmt"
	"net/mail"

	"github.com/darasa/backend/core"
)

// AddressBook resolves a student id to a deliverable address. Student
// accounts live in a separate subsystem.
type AddressBook interface {
	StudentAddress(studentID int) (mail.Address, error)
}

// StaticAddressBook is a fixed studentID -> address mapping, for dev
// wiring and tests.
type StaticAddressBook map[int]mail.Address

var _ AddressBook = (StaticAddressBook)(nil)

func (b StaticAddressBook) StudentAddress(studentID int) (mail.Address, error) {
	addr, ok := b[studentID]
	if !ok {
		return mail.Address{}, fmt.Errorf("student %d: no address on file", studentID)
	}
	return addr, nil
}

// Notifier consumes engine events and mails the affected student.
type Notifier struct {
	mail core.EmailService
	book AddressBook
	log  core.Logger
}

var _ core.EventSink = (*Notifier)(nil)

func NewNotifier(mailSvc core.EmailService, book AddressBook, logger core.Logger) *Notifier {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Notifier{mail: mailSvc, book: book, log: logger}
}

func (n *Notifier) Emit(events ...core.Event) {
	for _, evt := range events {
		msg, ok := n.compose(evt)
		if !ok {
			continue
		}
		addr, err := n.book.StudentAddress(evt.StudentID)
		if err != nil {
			n.log.Warn(fmt.Sprintf("notify: no address for student %d", evt.StudentID), err)
			continue
		}
		msg.To = []mail.Address{addr}
		n.mail.SendMessages(msg)
	}
}

func (n *Notifier) compose(evt core.Event) (*core.EmailMessage, bool) {
	switch evt.Type {
	case core.EventModuleCompleted:
		return &core.EmailMessage{
			Subject:      "Module completed",
			TextTemplate: completedText,
			TemplateData: evt.Data,
		}, true
	case core.EventModuleFailed:
		return &core.EmailMessage{
			Subject:      "Module failed",
			TextTemplate: failedText,
			TemplateData: evt.Data,
		}, true
	case core.EventStudentSuspended:
		return &core.EmailMessage{
			Subject:      "Course access suspended",
			TextTemplate: suspendedText,
			TemplateData: evt.Data,
		}, true
	case core.EventAppealResolved:
		return &core.EmailMessage{
			Subject:      "Your appeal has been reviewed",
			TextTemplate: appealText,
			TemplateData: evt.Data,
		}, true
	case core.EventFullCreditGranted:
		return &core.EmailMessage{
			Subject:      "Full credit granted",
			TextTemplate: fullCreditText,
			TemplateData: evt.Data,
		}, true
	}
	return nil, false
}

const (
	completedText = `Congratulations!

You completed a module with a score of {{printf "%.2f" .cumulative_score}}.
`
	failedText = `Unfortunately you did not pass this module.

Your score was {{printf "%.2f" .cumulative_score}}. Check your course page for retake options.
`
	suspendedText = `Your access to this course has been suspended.

Reason: {{.reason}}

You may submit one appeal from your course page.
`
	appealText = `Your suspension appeal has been reviewed.

Decision: {{if .approved}}approved, your course access has been restored{{else}}denied{{end}}.
`
	fullCreditText = `An instructor granted you full credit for a module.
{{if .reason}}Reason: {{.reason}}{{end}}
`
)
