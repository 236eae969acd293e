/*
template.go - Admin-configurable email templates with placeholder substitution

PURPOSE:
  Course admins may override the expiry and reminder emails per course.
  Templates carry {$a->name} placeholders substituted at send time. A
  blank template falls back to a built-in default; whether a configured
  body is HTML is inferred from the presence of markup.

PLACEHOLDERS:
  Body:    {$a->coursename} {$a->profileurl} {$a->link} {$a->fullname} {$a->email}
  Subject: {$a->coursename} {$a->fullname}
*/
package notify

import "strings"

// =============================================================================
// DEFAULT TEMPLATES
// =============================================================================

const (
	DefaultExpirySubject = "Course completion expired: {$a->coursename}"
	DefaultExpiryBody    = "Hi {$a->fullname},\n\n" +
		"Your completion of {$a->coursename} has expired and you are required " +
		"to complete it again.\n\nVisit the course here: {$a->link}\n"

	DefaultReminderSubject = "Course completion expiring soon: {$a->coursename}"
	DefaultReminderBody    = "Hi {$a->fullname},\n\n" +
		"Your completion of {$a->coursename} will expire soon. Please revisit " +
		"the course and complete it again before the due date.\n\n" +
		"Visit the course here: {$a->link}\n"

	DefaultGraceSubject = "Completion required: {$a->coursename}"
	DefaultGraceBody    = "Hi {$a->fullname},\n\n" +
		"You have been enrolled in {$a->coursename} and must complete it by " +
		"{$a->graceuntil}.\n\nVisit the course here: {$a->link}\n"

	DefaultDigestSubject = "Your course compliance summary"
	DefaultDigestGreet   = "Hi {$a->fullname},\n"
	DigestOutOfCompHead  = "\nThe following courses have expired:\n"
	DigestComingDueHead  = "\nThe following courses will expire soon:\n"
)

// TemplateData carries the per-recipient values substituted into a
// template.
type TemplateData struct {
	CourseName string
	ProfileURL string
	Link       string
	FullName   string
	Email      string
	GraceUntil string // formatted date, grace notices only
}

// Substitute replaces every known placeholder in tmpl.
func Substitute(tmpl string, d TemplateData) string {
	r := strings.NewReplacer(
		"{$a->coursename}", d.CourseName,
		"{$a->profileurl}", d.ProfileURL,
		"{$a->link}", d.Link,
		"{$a->fullname}", d.FullName,
		"{$a->email}", d.Email,
		"{$a->graceuntil}", d.GraceUntil,
	)
	return r.Replace(tmpl)
}

// IsHTML reports whether a configured template body carries markup.
// Presence of any tag opener counts; plain-text templates never contain
// a literal '<'.
func IsHTML(body string) bool { return strings.Contains(body, "<") }

// RenderSubject substitutes into the configured subject, falling back
// to the default when the configured value is blank.
func RenderSubject(configured, fallback string, d TemplateData) string {
	if strings.TrimSpace(configured) == "" {
		configured = fallback
	}
	return Substitute(configured, d)
}

// RenderBody substitutes into the configured body and returns both a
// plain-text and an HTML rendering. A blank configured body falls back
// to the default, which is always plain text.
func RenderBody(configured, fallback string, d TemplateData) (text, html string) {
	if strings.TrimSpace(configured) == "" {
		text = Substitute(fallback, d)
		return text, TextToHTML(text)
	}
	body := Substitute(configured, d)
	if !IsHTML(body) {
		return body, TextToHTML(body)
	}
	return StripTags(body), body
}

// TextToHTML converts a plain-text body to minimal HTML by turning
// newlines into line breaks.
func TextToHTML(text string) string {
	return strings.ReplaceAll(text, "\n", "<br>\n")
}

// StripTags produces a plain-text approximation of an HTML body by
// dropping everything between tag delimiters.
func StripTags(html string) string {
	var b strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
