package recompletion

import "testing"

func TestParseConfig_AbsentKeysDefault(t *testing.T) {
	cfg := ParseConfig(map[string]string{})

	if cfg.Enable {
		t.Error("enable should default off")
	}
	if cfg.RecompletionDuration != 0 || cfg.GracePeriod != 0 {
		t.Error("durations should default to zero")
	}
	if !cfg.BulkNotification {
		t.Error("bulk notification defaults ON when the key is absent")
	}
	if cfg.ExpirySubject != "" || cfg.ReminderBody != "" {
		t.Error("template keys should default to empty string")
	}
}

func TestParseConfig_BulkNotificationExplicitOff(t *testing.T) {
	cfg := ParseConfig(map[string]string{SettingBulkNotification: "0"})
	if cfg.BulkNotification {
		t.Error("bulknotification=0 must disable bulk mode")
	}
}

func TestParseConfig_ResetPolicies(t *testing.T) {
	tests := []struct {
		value string
		want  ResetPolicy
	}{
		{"", ResetNone},
		{"0", ResetNone},
		{"1", ResetDelete},
		{"2", ResetExtraAttempt},
		{"junk", ResetNone},
	}
	for _, tt := range tests {
		cfg := ParseConfig(map[string]string{SettingQuizData: tt.value})
		if cfg.QuizData != tt.want {
			t.Errorf("quizdata=%q parsed as %v, want %v", tt.value, cfg.QuizData, tt.want)
		}
	}
}

func TestSameDayCycle(t *testing.T) {
	full := ParseConfig(map[string]string{
		SettingRecompletionDuration: "259200",
		SettingNotificationStart:    "86400",
		SettingFrequency:            "86400",
	})
	if full.SameDayCycle() {
		t.Error("day-scale config must not be treated as a same-day cycle")
	}

	short := ParseConfig(map[string]string{
		SettingRecompletionDuration: "3600",
		SettingNotificationStart:    "86400",
		SettingFrequency:            "86400",
	})
	if !short.SameDayCycle() {
		t.Error("sub-day duration must suppress notifications")
	}
}

func TestDayConversion(t *testing.T) {
	if DaysToSeconds(3) != 259200 {
		t.Errorf("DaysToSeconds(3) = %d", DaysToSeconds(3))
	}
	if SecondsToDays(259200) != 3 {
		t.Errorf("SecondsToDays(259200) = %d", SecondsToDays(259200))
	}
}
