package util

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("DRAGENT_TEST_STR", "value")
	if got := GetEnv("DRAGENT_TEST_STR", "fallback"); got != "value" {
		t.Errorf("GetEnv = %q", got)
	}
	if got := GetEnv("DRAGENT_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("GetEnv default = %q", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		val  string
		want bool
	}{
		{"true", true},
		{"1", true},
		{"YES", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"off", false},
		{"garbage", true}, // invalid falls back to default
	}
	for _, tt := range tests {
		t.Setenv("DRAGENT_TEST_BOOL", tt.val)
		if got := ParseBoolEnv("DRAGENT_TEST_BOOL", true); got != tt.want {
			t.Errorf("ParseBoolEnv(%q) = %v, want %v", tt.val, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("DRAGENT_TEST_INT", "42")
	if got := ParseIntEnv("DRAGENT_TEST_INT", 7); got != 42 {
		t.Errorf("ParseIntEnv = %d", got)
	}
	t.Setenv("DRAGENT_TEST_INT", "not-a-number")
	if got := ParseIntEnv("DRAGENT_TEST_INT", 7); got != 7 {
		t.Errorf("ParseIntEnv invalid = %d", got)
	}
	if got := ParseIntEnv("DRAGENT_TEST_INT_UNSET", 7); got != 7 {
		t.Errorf("ParseIntEnv unset = %d", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("DRAGENT_TEST_DUR", "90s")
	if got := ParseDurationEnv("DRAGENT_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("ParseDurationEnv = %v", got)
	}
	t.Setenv("DRAGENT_TEST_DUR", "bogus")
	if got := ParseDurationEnv("DRAGENT_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("ParseDurationEnv invalid = %v", got)
	}
}
