/*
config.go - Per-course recompletion policy settings

PURPOSE:
  Courses store their recompletion policy as sparse name/value rows.
  This file defines the parsed form and the boundary conversions:
  admin-facing values are day-denominated, the engine works in seconds.

ABSENCE SEMANTICS:
  A missing key means "unset/default" (zero or disabled), never an
  error. The one exception is bulk notification, which defaults ON when
  the key is absent. The four email template keys default to "".

SEE ALSO:
  - duedate.go: Consumes durations from Config
  - reset/engine.go: Consumes archive/reset policy flags
*/
package recompletion

import "strconv"

// Setting names as stored per course.
const (
	SettingEnable                     = "enable"
	SettingRecompletionDuration       = "recompletionduration"
	SettingNotificationStart          = "notificationstart"
	SettingFrequency                  = "frequency"
	SettingGracePeriod                = "graceperiod"
	SettingBulkNotification           = "bulknotification"
	SettingRecompleteWithEquivalent   = "recompletewithequivalent"
	SettingAutoCompleteWithEquivalent = "autocompletewithequivalent"
	SettingArchiveCompletionData      = "archivecompletiondata"
	SettingDeleteGradeData            = "deletegradedata"
	SettingQuizData                   = "quizdata"
	SettingArchiveQuizData            = "archivequizdata"
	SettingScormData                  = "scormdata"
	SettingArchiveScormData           = "archivescormdata"
	SettingAssignData                 = "assigndata"
	SettingCertificateData            = "certificatedata"
	SettingArchiveCertificateData     = "archivecertificatedata"
	SettingEmailEnable                = "emailenable"
	SettingExpirySubject              = "expirysubject"
	SettingExpiryBody                 = "expirybody"
	SettingReminderSubject            = "remindersubject"
	SettingReminderBody               = "reminderbody"
)

// durationSettings are day-denominated at the API boundary and
// multiplied by DaySecs before storage.
var durationSettings = map[string]bool{
	SettingRecompletionDuration: true,
	SettingNotificationStart:    true,
	SettingFrequency:            true,
	SettingGracePeriod:          true,
}

// IsDurationSetting reports whether the named setting is day-denominated
// at the admin/API boundary.
func IsDurationSetting(name string) bool { return durationSettings[name] }

// ResetPolicy selects what a reset does to one activity type's data.
type ResetPolicy int

const (
	ResetNone         ResetPolicy = 0 // leave the activity data alone
	ResetDelete       ResetPolicy = 1 // archive (optionally) then delete
	ResetExtraAttempt ResetPolicy = 2 // grant additional attempts instead
)

// Config is the parsed recompletion policy for one course.
// All durations are seconds.
type Config struct {
	Enable                     bool
	RecompletionDuration       int64
	NotificationStart          int64
	Frequency                  int64
	GracePeriod                int64
	BulkNotification           bool
	RecompleteWithEquivalent   bool
	AutoCompleteWithEquivalent bool

	ArchiveCompletionData  bool
	DeleteGradeData        bool
	QuizData               ResetPolicy
	ArchiveQuizData        bool
	ScormData              ResetPolicy
	ArchiveScormData       bool
	AssignData             ResetPolicy
	CertificateData        ResetPolicy
	ArchiveCertificateData bool

	EmailEnable     bool
	ExpirySubject   string
	ExpiryBody      string
	ReminderSubject string
	ReminderBody    string
}

// ParseConfig builds a Config from the raw per-course setting rows.
// Missing keys degrade to their defaults; malformed numerics parse as 0.
func ParseConfig(raw map[string]string) Config {
	cfg := Config{
		Enable:                     flag(raw, SettingEnable),
		RecompletionDuration:       secs(raw, SettingRecompletionDuration),
		NotificationStart:          secs(raw, SettingNotificationStart),
		Frequency:                  secs(raw, SettingFrequency),
		GracePeriod:                secs(raw, SettingGracePeriod),
		RecompleteWithEquivalent:   flag(raw, SettingRecompleteWithEquivalent),
		AutoCompleteWithEquivalent: flag(raw, SettingAutoCompleteWithEquivalent),
		ArchiveCompletionData:      flag(raw, SettingArchiveCompletionData),
		DeleteGradeData:            flag(raw, SettingDeleteGradeData),
		QuizData:                   policy(raw, SettingQuizData),
		ArchiveQuizData:            flag(raw, SettingArchiveQuizData),
		ScormData:                  policy(raw, SettingScormData),
		ArchiveScormData:           flag(raw, SettingArchiveScormData),
		AssignData:                 policy(raw, SettingAssignData),
		CertificateData:            policy(raw, SettingCertificateData),
		ArchiveCertificateData:     flag(raw, SettingArchiveCertificateData),
		EmailEnable:                flag(raw, SettingEmailEnable),
		ExpirySubject:              raw[SettingExpirySubject],
		ExpiryBody:                 raw[SettingExpiryBody],
		ReminderSubject:            raw[SettingReminderSubject],
		ReminderBody:               raw[SettingReminderBody],
	}

	// Bulk notification defaults ON when the key was never written.
	if v, ok := raw[SettingBulkNotification]; ok {
		cfg.BulkNotification = v == "1"
	} else {
		cfg.BulkNotification = true
	}
	return cfg
}

// SameDayCycle reports whether any of the notification-relevant
// durations is under one day. Such courses never notify: same-day
// cycles exist only on misconfigured or test courses.
func (c Config) SameDayCycle() bool {
	return c.RecompletionDuration < DaySecs ||
		c.NotificationStart < DaySecs ||
		c.Frequency < DaySecs
}

func flag(raw map[string]string, name string) bool {
	return raw[name] == "1"
}

func secs(raw map[string]string, name string) int64 {
	n, _ := strconv.ParseInt(raw[name], 10, 64)
	return n
}

func policy(raw map[string]string, name string) ResetPolicy {
	n, _ := strconv.Atoi(raw[name])
	switch n {
	case 1:
		return ResetDelete
	case 2:
		return ResetExtraAttempt
	default:
		return ResetNone
	}
}

// DaysToSeconds converts an admin-facing day count to seconds.
func DaysToSeconds(days int64) int64 { return days * DaySecs }

// SecondsToDays converts a stored seconds value back to whole days for
// admin display.
func SecondsToDays(secs int64) int64 { return secs / DaySecs }
