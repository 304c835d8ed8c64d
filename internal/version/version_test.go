package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	b := Get()
	switch {
	case b.Version == "":
		t.Error("version should not be empty")
	case b.Commit == "":
		t.Error("commit should not be empty")
	case b.Date == "":
		t.Error("date should not be empty")
	case b.GoVersion == "":
		t.Error("go version should not be empty")
	}
}

func TestString(t *testing.T) {
	s := String()
	for _, part := range []string{"version=", "commit=", "date=", "go="} {
		if !strings.Contains(s, part) {
			t.Errorf("String() = %q, want it to contain %q", s, part)
		}
	}
}
