// Copyright 2026 The Karnal64 Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type testWriter struct {
	lines []string
	fail  bool
	limit int
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	if w.limit > 0 && len(w.lines) >= w.limit {
		return len(bytes), nil
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	want := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("Writer lines mismatch (-want +got):\n%s", diff)
	}
}

func TestWriterAppendsNewline(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("no newline")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}
	if diff := cmp.Diff([]string{"no newline", "\n"}, tw.lines); diff != "" {
		t.Errorf("Writer lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLevels(t *testing.T) {
	tw := &testWriter{}
	l := BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}
	l.Debugf("debug %d", 1)
	l.Infof("info %d", 2)
	l.Warningf("warning %d", 3)
	if diff := cmp.Diff([]string{"info 2", "\n", "warning 3", "\n"}, tw.lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}

	l.SetLevel(Warning)
	if l.IsLogging(Info) {
		t.Errorf("IsLogging(Info) = true at level Warning")
	}
}

func TestGoogleEmitterFormat(t *testing.T) {
	var buf bytes.Buffer
	e := GoogleEmitter{&Writer{Next: &buf}}
	ts := time.Date(2026, time.March, 4, 5, 6, 7, 8000, time.UTC)
	e.Emit(Warning, ts, "hello %s", "kernel")

	got := buf.String()
	if !strings.HasPrefix(got, "W0304 05:06:07.000008 ") {
		t.Errorf("unexpected prefix: %q", got)
	}
	if !strings.HasSuffix(got, "] hello kernel\n") {
		t.Errorf("unexpected suffix: %q", got)
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tw := &testWriter{}
	l := RateLimitedLogger(&BasicLogger{Level: Debug, Emitter: &Writer{Next: tw}}, time.Hour)
	for i := 0; i < 10; i++ {
		l.Warningf("fault %d", i)
	}
	if diff := cmp.Diff([]string{"fault 0", "\n"}, tw.lines); diff != "" {
		t.Errorf("rate limited lines mismatch (-want +got):\n%s", diff)
	}
}

func TestRateLimitedLoggerSuppressedCount(t *testing.T) {
	tw := &testWriter{}
	l := RateLimitedLogger(&BasicLogger{Level: Debug, Emitter: &Writer{Next: tw}}, time.Hour)
	for i := 0; i < 4; i++ {
		l.Warningf("fault %d", i)
	}
	// Open the limiter; the next message carries the dropped count.
	l.(*rateLimitedLogger).limit.SetLimit(rate.Inf)
	l.Warningf("fault %d", 4)
	l.Warningf("fault %d", 5)
	want := []string{
		"fault 0", "\n",
		"fault 4 (3 similar messages suppressed)", "\n",
		"fault 5", "\n",
	}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("rate limited lines mismatch (-want +got):\n%s", diff)
	}
}

func TestRateLimitedLoggerLevel(t *testing.T) {
	tw := &testWriter{}
	l := RateLimitedLogger(&BasicLogger{Level: Warning, Emitter: &Writer{Next: tw}}, time.Hour)
	// Filtered messages must not consume the limiter.
	l.Debugf("debug")
	l.Infof("info")
	l.Warningf("warning")
	if diff := cmp.Diff([]string{"warning", "\n"}, tw.lines); diff != "" {
		t.Errorf("rate limited lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLogrusEmitter(t *testing.T) {
	var buf bytes.Buffer
	lr := logrus.New()
	lr.SetOutput(&buf)
	lr.SetLevel(logrus.DebugLevel)
	lr.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	e := NewLogrusEmitter(lr, logrus.Fields{"cpu": 0})
	e.Emit(Info, time.Now(), "booted %d tasks", 2)

	got := buf.String()
	for _, want := range []string{"level=info", `msg="booted 2 tasks"`, "cpu=0"} {
		if !strings.Contains(got, want) {
			t.Errorf("logrus output %q missing %q", got, want)
		}
	}
}
