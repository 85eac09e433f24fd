package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestBackendCallbackLevels(t *testing.T) {
	var buf bytes.Buffer
	SetSink(&buf)
	SetLevel(Debug)
	defer func() {
		SetSink(os.Stdout)
		SetLevel(Notice)
	}()

	cb := BackendCallback(New("backend-test"))

	type spec struct {
		level    int
		expLevel string
	}

	specs := []spec{
		{1, "ERROR"},
		{2, "WARNING"},
		{3, "NOTICE"},
		{4, "DEBUG"},
	}

	for index, s := range specs {
		buf.Reset()
		cb(s.level, "COMPILER", "message")
		out := buf.String()
		if !strings.Contains(out, "["+s.expLevel+"]") {
			t.Errorf("[spec %d] expected output to contain level %s; got %q", index, s.expLevel, out)
		}
		if !strings.Contains(out, "[    COMPILER] message") {
			t.Errorf("[spec %d] expected output to contain tagged message; got %q", index, out)
		}
	}

	buf.Reset()
	cb(0, "DISABLED", "message")
	if buf.Len() != 0 {
		t.Fatalf("expected level 0 messages to be dropped; got %q", buf.String())
	}
}
