/*
dispatcher.go - Composes and delivers recompletion notifications

PURPOSE:
  Turns a notification decision into a delivered email: renders the
  course's templates (or the defaults), sends through the configured
  Mailer, emits a reminder_sent event, and mirrors a copy to an
  optional third-party compliance address.

THIRD-PARTY COPY:
  When ThirdParty is configured, every delivered notification is
  followed by a copy to that address with a "(THIRD PARTY) " subject
  prefix. The copy is best-effort: a failure there never fails the
  primary delivery.

SEE ALSO:
  - decide.go: Decides WHETHER to send; this file decides WHAT
  - mailer.go: Delivery backends
*/
package notify

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/warp/compliance-engine/recompletion"
)

const thirdPartyPrefix = "(THIRD PARTY) "

// Dispatcher renders and delivers notification emails.
type Dispatcher struct {
	Mailer Mailer
	Events recompletion.EventSink

	// BaseURL is the host platform root, e.g. "https://lms.example.com".
	BaseURL string

	// ThirdParty, when non-empty, receives a prefixed copy of every
	// notification.
	ThirdParty Address

	Logger *log.Logger

	// Now is stubbed in tests. Defaults to time.Now.
	Now func() time.Time
}

func (d *Dispatcher) now() int64 {
	if d.Now != nil {
		return d.Now().Unix()
	}
	return time.Now().Unix()
}

func (d *Dispatcher) logf(format string, args ...interface{}) {
	if d.Logger != nil {
		d.Logger.Printf("[Dispatcher] "+format, args...)
	}
}

func (d *Dispatcher) courseLink(courseID int64) string {
	return fmt.Sprintf("%s/course/view.php?id=%d", d.BaseURL, courseID)
}

func (d *Dispatcher) profileURL(userID, courseID int64) string {
	return fmt.Sprintf("%s/user/view.php?id=%d&course=%d", d.BaseURL, userID, courseID)
}

func (d *Dispatcher) data(user recompletion.User, course recompletion.Course) TemplateData {
	return TemplateData{
		CourseName: course.FullName,
		ProfileURL: d.profileURL(user.ID, course.ID),
		Link:       d.courseLink(course.ID),
		FullName:   user.FullName,
		Email:      user.Email,
	}
}

// =============================================================================
// SINGLE-COURSE NOTIFICATIONS
// =============================================================================

// SendExpiry sends the "your completion has expired" email, rendered
// from the course's expiry template or the default.
func (d *Dispatcher) SendExpiry(ctx context.Context, user recompletion.User, course recompletion.Course, cfg recompletion.Config) error {
	td := d.data(user, course)
	subject := RenderSubject(cfg.ExpirySubject, DefaultExpirySubject, td)
	text, html := RenderBody(cfg.ExpiryBody, DefaultExpiryBody, td)
	return d.deliver(ctx, user, course.ID, subject, text, html)
}

// SendReminder sends the in-window reminder email.
func (d *Dispatcher) SendReminder(ctx context.Context, user recompletion.User, course recompletion.Course, cfg recompletion.Config) error {
	td := d.data(user, course)
	subject := RenderSubject(cfg.ReminderSubject, DefaultReminderSubject, td)
	text, html := RenderBody(cfg.ReminderBody, DefaultReminderBody, td)
	return d.deliver(ctx, user, course.ID, subject, text, html)
}

// SendGrace sends the one-time grace-period notice. Grace notices have
// no per-course template; the default is always used. graceUntil is
// the epoch second the grace window closes.
func (d *Dispatcher) SendGrace(ctx context.Context, user recompletion.User, course recompletion.Course, graceUntil int64) error {
	td := d.data(user, course)
	td.GraceUntil = formatDate(graceUntil, user.Timezone)
	subject := RenderSubject("", DefaultGraceSubject, td)
	text, html := RenderBody("", DefaultGraceBody, td)
	return d.deliver(ctx, user, course.ID, subject, text, html)
}

// =============================================================================
// BULK DIGEST
// =============================================================================

// DigestEntry is one course's line in a learner's digest.
type DigestEntry struct {
	CourseID   int64
	CourseName string
	ExpireAt   int64
}

// Digest accumulates one learner's entries across all their courses
// within a single run.
type Digest struct {
	OutOfComp []DigestEntry
	ComingDue []DigestEntry
}

// Add files an entry under its section.
func (g *Digest) Add(section DigestSection, e DigestEntry) {
	if section == SectionOutOfComp {
		g.OutOfComp = append(g.OutOfComp, e)
	} else {
		g.ComingDue = append(g.ComingDue, e)
	}
}

// Empty reports whether the digest has nothing to say.
func (g *Digest) Empty() bool {
	return len(g.OutOfComp) == 0 && len(g.ComingDue) == 0
}

// SendBulkDigest sends one consolidated email covering every expired
// and coming-due course for the learner. Both sections are sorted by
// ascending expiration date.
func (d *Dispatcher) SendBulkDigest(ctx context.Context, user recompletion.User, digest Digest) error {
	if digest.Empty() {
		return nil
	}
	sortByExpiration(digest.OutOfComp)
	sortByExpiration(digest.ComingDue)

	var text strings.Builder
	text.WriteString(Substitute(DefaultDigestGreet, TemplateData{FullName: user.FullName}))

	if len(digest.OutOfComp) > 0 {
		text.WriteString(DigestOutOfCompHead)
		for _, e := range digest.OutOfComp {
			fmt.Fprintf(&text, "%s expired on %s.\n", e.CourseName, formatDate(e.ExpireAt, user.Timezone))
		}
	}
	if len(digest.ComingDue) > 0 {
		text.WriteString(DigestComingDueHead)
		for _, e := range digest.ComingDue {
			fmt.Fprintf(&text, "%s will expire on %s.\n", e.CourseName, formatDate(e.ExpireAt, user.Timezone))
		}
	}

	var html strings.Builder
	html.WriteString(TextToHTML(Substitute(DefaultDigestGreet, TemplateData{FullName: user.FullName})))
	if len(digest.OutOfComp) > 0 {
		html.WriteString(TextToHTML(DigestOutOfCompHead))
		for _, e := range digest.OutOfComp {
			fmt.Fprintf(&html, "<br><a href='%s'>%s</a> expired on %s.\n",
				d.courseLink(e.CourseID), e.CourseName, formatDate(e.ExpireAt, user.Timezone))
		}
	}
	if len(digest.ComingDue) > 0 {
		html.WriteString(TextToHTML(DigestComingDueHead))
		for _, e := range digest.ComingDue {
			fmt.Fprintf(&html, "<br><a href='%s'>%s</a> will expire on %s.\n",
				d.courseLink(e.CourseID), e.CourseName, formatDate(e.ExpireAt, user.Timezone))
		}
	}

	// Digest events carry no single course; courseID 0 marks the
	// consolidated send.
	return d.deliver(ctx, user, 0, DefaultDigestSubject, text.String(), html.String())
}

func sortByExpiration(entries []DigestEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ExpireAt < entries[j].ExpireAt })
}

// =============================================================================
// DELIVERY
// =============================================================================

func (d *Dispatcher) deliver(ctx context.Context, user recompletion.User, courseID int64, subject, text, html string) error {
	msg := Message{
		To:       Address{Name: user.FullName, Email: user.Email},
		Subject:  subject,
		TextBody: text,
		HTMLBody: html,
	}
	if err := d.Mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send to %s: %w", user.Email, err)
	}

	ev := recompletion.NewEvent(recompletion.EventReminderSent, user.ID, courseID, d.now())
	ev.Detail = subject
	if err := d.Events.Record(ctx, ev); err != nil {
		d.logf("recording reminder_sent for user %d: %v", user.ID, err)
	}

	if d.ThirdParty.Email != "" {
		copyMsg := msg
		copyMsg.To = d.ThirdParty
		copyMsg.Subject = thirdPartyPrefix + subject
		if err := d.Mailer.Send(ctx, copyMsg); err != nil {
			d.logf("third-party copy to %s: %v", d.ThirdParty.Email, err)
		}
	}
	return nil
}

// formatDate renders an epoch second as a human date in the learner's
// timezone, falling back to UTC when the zone is unknown.
func formatDate(at int64, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		loc = time.UTC
	}
	return time.Unix(at, 0).In(loc).Format("January 2, 2006")
}
