package logstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pavelanni/teachmate/internal/model"
)

func intPtr(n int) *int { return &n }

func newTestLog(t *testing.T) *FeedbackLog {
	t.Helper()
	l, err := OpenFeedbackLog(t.TempDir())
	if err != nil {
		t.Fatalf("OpenFeedbackLog: %v", err)
	}
	return l
}

func entry(course string, ts time.Time) model.FeedbackEntry {
	return model.FeedbackEntry{
		Course:     course,
		Timestamp:  ts,
		WhatWorked: "labs",
		WhatDidNot: "pacing",
		Suggestion: "add a recap",
	}
}

func TestFeedbackLogEmpty(t *testing.T) {
	l := newTestLog(t)
	entries, err := l.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("LoadAll() on a new log = %d entries, want 0", len(entries))
	}
	if _, err := os.Stat(l.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Error("reading should not create the log file")
	}
}

func TestFeedbackLogAppendOrder(t *testing.T) {
	l := newTestLog(t)
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e1 := entry("CS101", t0)
	e2 := entry("MATH200", t0.Add(time.Hour))

	if err := l.Append(e1); err != nil {
		t.Fatalf("Append e1: %v", err)
	}
	if err := l.Append(e2); err != nil {
		t.Fatalf("Append e2: %v", err)
	}

	all, err := l.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 2 || all[0].Course != "CS101" || all[1].Course != "MATH200" {
		t.Fatalf("LoadAll() = %+v, want [e1, e2]", all)
	}
	if !all[0].Timestamp.Equal(t0) {
		t.Errorf("timestamp = %v, want %v", all[0].Timestamp, t0)
	}

	hist, err := l.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if hist[0].Course != "MATH200" || hist[1].Course != "CS101" {
		t.Errorf("History() should be newest first, got %s, %s", hist[0].Course, hist[1].Course)
	}
}

func TestFeedbackLogRating(t *testing.T) {
	l := newTestLog(t)
	e := model.FeedbackEntry{
		Course:     "CS101",
		Timestamp:  time.Now().UTC(),
		WhatWorked: "labs",
		WhatDidNot: "pacing",
		Suggestion: "slow down in week 3",
		Rating:     intPtr(4),
	}
	if err := l.Append(e); err != nil {
		t.Fatalf("Append: %v", err)
	}

	hist, err := l.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("History() = %d entries, want 1", len(hist))
	}
	if hist[0].Course != "CS101" || hist[0].Rating == nil || *hist[0].Rating != 4 {
		t.Errorf("History()[0] = %+v, want CS101 rated 4", hist[0])
	}
}

func TestFeedbackLogZeroRatingReadsAsAbsent(t *testing.T) {
	l := newTestLog(t)
	raw := `[
  {"course":"A","timestamp":"2026-03-01T09:00:00Z","what_worked":"x","what_did_not":"y","suggestion":"z","rating":0},
  {"course":"B","timestamp":"2026-03-02T09:00:00Z","what_worked":"x","what_did_not":"y","suggestion":"z","rating":null},
  {"course":"C","timestamp":"2026-03-03T09:00:00Z","what_worked":"x","what_did_not":"y","suggestion":"z","rating":5}
]`
	if err := os.WriteFile(l.Path(), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	all, err := l.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("LoadAll() = %d entries, want 3", len(all))
	}
	if all[0].Rating != nil || all[1].Rating != nil {
		t.Error("ratings of 0 and null should read as absent")
	}
	if !all[2].Rated() || *all[2].Rating != 5 {
		t.Errorf("rating 5 should survive, got %v", all[2].Rating)
	}
}

func TestFeedbackLogCorruption(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{{{ definitely not json"},
		{"truncated", `[{"course":"CS101","timestamp":"2026-03-01T09:00:00Z"`},
		{"wrong shape", `{"course":"CS101"}`},
		{"missing fields", `[{"course":"CS101"}]`},
		{"bad rating", `[{"course":"A","timestamp":"2026-03-01T09:00:00Z","what_worked":"x","what_did_not":"y","suggestion":"z","rating":"five"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLog(t)
			if err := os.WriteFile(l.Path(), []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			all, err := l.LoadAll()
			if err != nil {
				t.Fatalf("LoadAll() error = %v, want corruption treated as empty", err)
			}
			if len(all) != 0 {
				t.Errorf("LoadAll() = %d entries, want 0", len(all))
			}

			if err := l.Append(entry("CS101", time.Now().UTC())); err != nil {
				t.Fatalf("Append after corruption: %v", err)
			}
			all, err = l.LoadAll()
			if err != nil || len(all) != 1 {
				t.Fatalf("LoadAll() after append = %d entries, %v; want 1", len(all), err)
			}
			if _, err := os.Stat(l.Path() + ".corrupt"); err != nil {
				t.Errorf("corrupt content should be kept aside: %v", err)
			}
		})
	}
}

func TestFeedbackLogNoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenFeedbackLog(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		if err := l.Append(entry("CS101", time.Now().UTC().Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Name() != FeedbackFile {
		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, f.Name())
		}
		t.Errorf("data dir = %v, want only %s", names, FeedbackFile)
	}
}

func TestCorruptionError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := newJSONFile(path, feedbackSchema)
	if err != nil {
		t.Fatal(err)
	}
	var v []model.FeedbackEntry
	_, err = f.read(&v)
	var ce *CorruptionError
	if !errors.As(err, &ce) {
		t.Fatalf("read() error = %v, want *CorruptionError", err)
	}
	if ce.Path != path {
		t.Errorf("Path = %q, want %q", ce.Path, path)
	}
}

func newTestProfiles(t *testing.T) *ProfileStore {
	t.Helper()
	s, err := OpenProfileStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenProfileStore: %v", err)
	}
	return s
}

func TestProfileGetCreatesLazily(t *testing.T) {
	s := newTestProfiles(t)

	p, err := s.Get("ann")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Username != "ann" || !p.Empty() {
		t.Errorf("Get() = %+v, want empty profile for ann", p)
	}
	if _, err := os.Stat(s.Path()); err != nil {
		t.Errorf("first Get should persist the new profile: %v", err)
	}

	all, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 1 || all[0].Username != "ann" {
		t.Errorf("LoadAll() = %+v", all)
	}
}

func TestProfileUpsert(t *testing.T) {
	s := newTestProfiles(t)
	if _, err := s.Get("ann"); err != nil {
		t.Fatal(err)
	}

	want := model.UserProfile{Username: "ann", FullName: " Ann Lee ", Email: "ann@example.edu", Role: "Lecturer", Institution: "MIT"}
	if err := s.Upsert(want); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(model.UserProfile{Username: "bob", Role: "Professor"}); err != nil {
		t.Fatalf("Upsert bob: %v", err)
	}

	got, err := s.Get("ann")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.FullName != "Ann Lee" || got.Email != "ann@example.edu" || got.Role != "Lecturer" || got.Institution != "MIT" {
		t.Errorf("Get() after Upsert = %+v", got)
	}

	all, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 2 || all[0].Username != "ann" || all[1].Username != "bob" {
		t.Errorf("LoadAll() = %+v, want ann then bob", all)
	}
}

func TestProfileEmptyUsername(t *testing.T) {
	s := newTestProfiles(t)
	if _, err := s.Get("  "); err == nil {
		t.Error("Get with a blank username should fail")
	}
	if err := s.Upsert(model.UserProfile{}); err == nil {
		t.Error("Upsert with a blank username should fail")
	}
}

func TestProfileCorruption(t *testing.T) {
	s := newTestProfiles(t)
	if err := os.WriteFile(s.Path(), []byte(`["not", "a", "map"]`), 0o644); err != nil {
		t.Fatal(err)
	}

	all, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v, want corruption treated as empty", err)
	}
	if len(all) != 0 {
		t.Errorf("LoadAll() = %d profiles, want 0", len(all))
	}

	p, err := s.Get("ann")
	if err != nil {
		t.Fatalf("Get after corruption: %v", err)
	}
	if p.Username != "ann" {
		t.Errorf("Get() = %+v", p)
	}
}
