// Package env contains utilities to manage environemnt variables
package env

import (
	"os"
	"testing"
)

func setupEnv(key, value string) func() {
	os.Setenv(key, value)
	return func() { os.Unsetenv(key) }
}

func TestGetEnv(t *testing.T) {
	unset := setupEnv("TEST_GETENV", "test-getenv")
	value := GetEnv("TEST_GETENV", "default")
	if value != "test-getenv" {
		t.Errorf("GetEnv failed: expected test-getenv got %s", value)
	}
	unset()
	value = GetEnv("TEST_GETENV", "default")
	if value != "default" {
		t.Errorf("GetEnv failed: expected default got %s", value)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	unset := setupEnv("TEST_GETENV", "2")
	value := GetEnvAsInt("TEST_GETENV", 6)
	if value != 2 {
		t.Errorf("GetEnv failed: expected 2 got %d", value)
	}
	unset()
	value = GetEnvAsInt("TEST_GETENV", 6)
	if value != 6 {
		t.Errorf("GetEnv failed: expected 6 got %d", value)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	unset := setupEnv("TEST_GETENV_BOOL", "true")
	if !GetEnvAsBool("TEST_GETENV_BOOL", false) {
		t.Errorf("GetEnvAsBool failed: expected true got false")
	}
	unset()
	if GetEnvAsBool("TEST_GETENV_BOOL", false) {
		t.Errorf("GetEnvAsBool failed: expected false got true")
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	unset := setupEnv("TEST_GETENV_DURATION", "1500")
	value := GetEnvAsDuration("TEST_GETENV_DURATION", 0)
	if value.Milliseconds() != 1500 {
		t.Errorf("GetEnvAsDuration failed: expected 1500ms got %v", value)
	}
	unset()
}

func TestGetEnvAsSlice(t *testing.T) {
	unset := setupEnv("TEST_GETENV_SLICE", "webmethods, news ,jobs")
	value := GetEnvAsSlice("TEST_GETENV_SLICE", nil, ",")
	expected := []string{"webmethods", "news", "jobs"}
	if len(value) != len(expected) {
		t.Fatalf("GetEnvAsSlice failed: expected %v got %v", expected, value)
	}
	for i := range expected {
		if value[i] != expected[i] {
			t.Errorf("GetEnvAsSlice failed: expected %v got %v", expected, value)
		}
	}
	unset()
	value = GetEnvAsSlice("TEST_GETENV_SLICE", []string{"default"}, ",")
	if len(value) != 1 || value[0] != "default" {
		t.Errorf("GetEnvAsSlice failed: expected default fallback got %v", value)
	}
}
