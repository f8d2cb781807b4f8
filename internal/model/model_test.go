package model

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewIDsAreValidAndDistinct(t *testing.T) {
	a, b := NewTraceID(), NewTraceID()
	if !a.IsValid() {
		t.Fatal("trace id is zero")
	}
	if a == b {
		t.Errorf("trace ids collide: %s", a)
	}
	if len(a.String()) != 32 {
		t.Errorf("trace id %q: want 32 hex chars", a)
	}

	s := NewSpanID()
	if !s.IsValid() {
		t.Fatal("span id is zero")
	}
	if len(s.String()) != 16 {
		t.Errorf("span id %q: want 16 hex chars", s)
	}
}

func TestSpanFinishClampsEnd(t *testing.T) {
	start := time.Unix(100, 0)
	s := NewSpan("tapwire.test", start)
	s.Finish(start.Add(-time.Second))
	if !s.End.Equal(start) {
		t.Errorf("end before start: got %v, want %v", s.End, start)
	}

	s.Finish(start.Add(time.Second))
	if want := start.Add(time.Second); !s.End.Equal(want) {
		t.Errorf("end = %v, want %v", s.End, want)
	}
}

func TestSpanCloneIsDeep(t *testing.T) {
	s := NewSpan("tapwire.test", time.Now())
	s.Attributes["nested"] = map[string]any{"k": "v"}
	s.Attributes["list"] = []any{map[string]any{"a": 1}}
	s.Attributes[KeyResponseBinary] = []byte("body")
	s.SetStatus(StatusOK, "")

	c := s.Clone()
	c.Attributes["nested"].(map[string]any)["k"] = "changed"
	c.Attributes["list"].([]any)[0].(map[string]any)["a"] = 2
	c.Attributes[KeyResponseBinary].([]byte)[0] = 'X'
	c.Status.Code = StatusError

	if got := s.Attributes["nested"].(map[string]any)["k"]; got != "v" {
		t.Errorf("nested map shared: %v", got)
	}
	if got := s.Attributes["list"].([]any)[0].(map[string]any)["a"]; got != 1 {
		t.Errorf("nested list shared: %v", got)
	}
	if got := s.Attributes[KeyResponseBinary].([]byte); !bytes.Equal(got, []byte("body")) {
		t.Errorf("binary shared: %q", got)
	}
	if s.Status.Code != StatusOK {
		t.Errorf("status shared: %v", s.Status.Code)
	}
}

func TestHasBinary(t *testing.T) {
	s := NewSpan("tapwire.test", time.Now())
	if s.HasBinary() {
		t.Fatal("new span reports binary")
	}
	s.Attributes[KeyRequestBinary] = []byte("{}")
	if !s.HasBinary() {
		t.Error("request binary not detected")
	}
}

func TestAttributesTruthy(t *testing.T) {
	a := Attributes{"t": true, "f": false, "s": "yes", "e": "", "fs": "False", "n": 0, "one": 1}
	tests := map[string]bool{
		"t":       true,
		"f":       false,
		"s":       true,
		"e":       false,
		"fs":      false,
		"n":       false,
		"one":     true,
		"missing": false,
	}
	for k, want := range tests {
		if got := a.Truthy(k); got != want {
			t.Errorf("Truthy(%q) = %v, want %v", k, got, want)
		}
	}
}

func TestCaptureEventImmutableAfterFinalize(t *testing.T) {
	ev := NewCaptureEvent("tapwire.http", time.Now(), nil)
	if !ev.SetAttribute("k", "v") {
		t.Fatal("set on open event failed")
	}

	boom := errors.New("boom")
	if !ev.Finalize(time.Now(), boom) {
		t.Fatal("first finalize failed")
	}
	if ev.Finalize(time.Now(), nil) {
		t.Error("second finalize took effect")
	}
	if ev.SetAttribute("k", "other") {
		t.Error("set after finalize took effect")
	}

	if !ev.Final() {
		t.Error("event not final")
	}
	if ev.Err != boom {
		t.Errorf("err = %v, want %v", ev.Err, boom)
	}
	if got := ev.Attributes()["k"]; got != "v" {
		t.Errorf("k = %v, want v", got)
	}
}

func TestStatusCodeNames(t *testing.T) {
	for code, want := range map[StatusCode]string{StatusOK: "OK", StatusError: "ERROR", StatusUnset: "UNSET"} {
		if got := code.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", code, got, want)
		}
	}
}

func TestReservedKeysDistinct(t *testing.T) {
	keys := []string{
		KeyProvider, KeyBillingSpan, KeyRequestBinary, KeyResponseBinary,
		KeyURL, KeyHost, KeyMethod, KeyStatusCode,
		KeyContentType, KeyContentEncoding, KeyResponseSize,
	}
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			t.Errorf("reserved key %q declared twice", k)
		}
		seen[k] = true
		if strings.HasPrefix(k, ResponseHeaderPrefix) || strings.HasPrefix(k, TagPrefix) {
			t.Errorf("reserved key %q collides with a prefixed namespace", k)
		}
	}
}
