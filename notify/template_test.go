package notify

import (
	"strings"
	"testing"
)

func sampleData() TemplateData {
	return TemplateData{
		CourseName: "Fire Safety",
		ProfileURL: "https://lms.example.com/user/view.php?id=7&course=10",
		Link:       "https://lms.example.com/course/view.php?id=10",
		FullName:   "Ada Lovelace",
		Email:      "ada@example.com",
	}
}

func TestSubstitute_AllPlaceholders(t *testing.T) {
	in := "{$a->fullname} <{$a->email}> must redo {$a->coursename}: {$a->link} ({$a->profileurl})"
	got := Substitute(in, sampleData())
	want := "Ada Lovelace <ada@example.com> must redo Fire Safety: " +
		"https://lms.example.com/course/view.php?id=10 " +
		"(https://lms.example.com/user/view.php?id=7&course=10)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSubstitute_UnknownPlaceholderLeftAlone(t *testing.T) {
	got := Substitute("hello {$a->nosuch}", sampleData())
	if got != "hello {$a->nosuch}" {
		t.Errorf("unknown placeholders must pass through, got %q", got)
	}
}

func TestRenderSubject_BlankFallsBack(t *testing.T) {
	got := RenderSubject("   ", DefaultExpirySubject, sampleData())
	if got != "Course completion expired: Fire Safety" {
		t.Errorf("blank subject must use the default, got %q", got)
	}
}

func TestRenderSubject_ConfiguredWins(t *testing.T) {
	got := RenderSubject("Redo {$a->coursename} now", DefaultExpirySubject, sampleData())
	if got != "Redo Fire Safety now" {
		t.Errorf("got %q", got)
	}
}

func TestRenderBody_PlainTextTemplate(t *testing.T) {
	text, html := RenderBody("Dear {$a->fullname},\nplease recomplete.", "", sampleData())
	if text != "Dear Ada Lovelace,\nplease recomplete." {
		t.Errorf("text = %q", text)
	}
	if !strings.Contains(html, "<br>") {
		t.Errorf("plain templates get a generated HTML rendering, got %q", html)
	}
}

func TestRenderBody_HTMLTemplateDetectedByMarkup(t *testing.T) {
	text, html := RenderBody("<p>Hi {$a->fullname}</p>", "", sampleData())
	if html != "<p>Hi Ada Lovelace</p>" {
		t.Errorf("html = %q", html)
	}
	if text != "Hi Ada Lovelace" {
		t.Errorf("text rendering must strip tags, got %q", text)
	}
}

func TestRenderBody_BlankUsesDefault(t *testing.T) {
	text, _ := RenderBody("", DefaultReminderBody, sampleData())
	if !strings.Contains(text, "Fire Safety") || !strings.Contains(text, "Ada Lovelace") {
		t.Errorf("default body must be substituted, got %q", text)
	}
}

func TestStripTags(t *testing.T) {
	got := StripTags("<p>one</p> <a href='x'>two</a>")
	if got != "one two" {
		t.Errorf("got %q", got)
	}
}
