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
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// Tests that Level can marshal/unmarshal properly.
func TestLevelMarshal(t *testing.T) {
	lvs := []Level{Warning, Info, Debug}
	for _, lv := range lvs {
		bs, err := lv.MarshalJSON()
		if err != nil {
			t.Errorf("error marshaling %v: %v", lv, err)
		}
		var lv2 Level
		if err := lv2.UnmarshalJSON(bs); err != nil {
			t.Errorf("error unmarshaling %v: %v", bs, err)
		}
		if lv != lv2 {
			t.Errorf("marshal/unmarshal level got %v wanted %v", lv2, lv)
		}
	}
}

// Test that integers can be properly unmarshaled.
func TestUnmarshalFromInt(t *testing.T) {
	tcs := []struct {
		i    int
		want Level
	}{
		{0, Warning},
		{1, Info},
		{2, Debug},
	}

	for _, tc := range tcs {
		j, err := json.Marshal(tc.i)
		if err != nil {
			t.Errorf("error marshaling %v: %v", tc.i, err)
		}
		var lv Level
		if err := lv.UnmarshalJSON(j); err != nil {
			t.Errorf("error unmarshaling %v: %v", j, err)
		}
		if lv != tc.want {
			t.Errorf("marshal/unmarshal %v got %v want %v", tc.i, lv, tc.want)
		}
	}
}

func TestLevelNames(t *testing.T) {
	for in, want := range map[string]Level{
		`"warning"`: Warning,
		`"INFO"`:    Info,
		`"Debug"`:   Debug,
	} {
		var lv Level
		if err := lv.UnmarshalJSON([]byte(in)); err != nil {
			t.Errorf("UnmarshalJSON(%s): %v", in, err)
			continue
		}
		if lv != want {
			t.Errorf("UnmarshalJSON(%s) = %v, want %v", in, lv, want)
		}
	}
	for _, in := range []string{`"trace"`, "3", "-1", "{}"} {
		var lv Level
		if err := lv.UnmarshalJSON([]byte(in)); err == nil {
			t.Errorf("UnmarshalJSON(%s) succeeded with %v", in, lv)
		}
	}
	if _, err := Level(7).MarshalJSON(); err == nil {
		t.Errorf("MarshalJSON(7) succeeded")
	}
}

func TestJSONEmitter(t *testing.T) {
	tw := &testWriter{}
	e := JSONEmitter{Writer: &Writer{Next: tw}}
	e.Emit(Info, time.Unix(0, 0).UTC(), "spawned task %d", 7)
	if len(tw.lines) == 0 {
		t.Fatalf("no output")
	}
	var got jsonLog
	if err := json.Unmarshal([]byte(tw.lines[0]), &got); err != nil {
		t.Fatalf("unmarshal %q: %v", tw.lines[0], err)
	}
	if got.Msg != "spawned task 7" || got.Level != Info {
		t.Errorf("got %+v", got)
	}
}

func TestJSONEmitterFields(t *testing.T) {
	tw := &testWriter{}
	e := JSONEmitter{
		Writer: &Writer{Next: tw},
		Fields: map[string]any{"pid": 42, "msg": "shadowed"},
	}
	e.Emit(Warning, time.Unix(0, 0).UTC(), "task %d faulted", 3)
	if len(tw.lines) == 0 {
		t.Fatalf("no output")
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(tw.lines[0]), &got); err != nil {
		t.Fatalf("unmarshal %q: %v", tw.lines[0], err)
	}
	want := map[string]any{
		"pid":   float64(42),
		"msg":   "task 3 faulted",
		"level": "warning",
		"time":  "1970-01-01T00:00:00Z",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	// A field that cannot be marshaled drops the fields, not the message.
	tw.lines = nil
	e.Fields = map[string]any{"bad": make(chan int)}
	e.Emit(Info, time.Unix(0, 0).UTC(), "still here")
	var rec jsonLog
	if err := json.Unmarshal([]byte(tw.lines[0]), &rec); err != nil || rec.Msg != "still here" {
		t.Errorf("got %q, %v", tw.lines[0], err)
	}
}
