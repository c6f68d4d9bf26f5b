package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// ReminderSubject は返却リマインダーの件名。
const ReminderSubject = "Book Return Reminder"

var reminderTemplate = template.Must(template.New("reminder").Parse(
	`<h3>Return Reminder</h3>
<p>Please return <b>{{.Title}}</b> as soon as possible.</p>
{{- if .Deadline}}
<p>The return deadline was {{.Deadline}}.</p>
{{- end}}
`))

// ReturnReminder は借り手宛ての返却リマインダーを生成する。
// deadlineがnilの場合は期限の記載を省略する。
func ReturnReminder(to, bookTitle string, deadline *time.Time) (Message, error) {
	data := struct {
		Title    string
		Deadline string
	}{Title: bookTitle}
	if deadline != nil {
		data.Deadline = deadline.Format("Mon Jan 02 2006")
	}

	var buf bytes.Buffer
	if err := reminderTemplate.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("failed to render reminder: %w", err)
	}
	return Message{To: to, Subject: ReminderSubject, HTML: buf.String()}, nil
}
