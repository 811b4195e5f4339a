package core

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// NowFunc is the clock used by the domain services. Mockable.
var NowFunc = time.Now

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Getwd tries to find the project root (the directory holding go.mod).
// go-test changes the working directory to the test package being run during tests,
// so we walk up until we find it. Falls back to the working directory.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	currDir := wd
	for {
		if _, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}

// Today returns the calendar date of `NowFunc()` in loc, formatted as YYYY-MM-DD.
func Today(loc *time.Location) string {
	return NowFunc().In(loc).Format(DateLayout)
}

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)
