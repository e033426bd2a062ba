package version

import (
	"strings"
	"testing"
)

func TestStringIncludesBuildMetadata(t *testing.T) {
	t.Parallel()

	got := String()
	for _, want := range []string{"llmcompare", Version, Commit, Date} {
		if !strings.Contains(got, want) {
			t.Fatalf("String()=%q, want it to contain %q", got, want)
		}
	}
}

func TestUserAgent(t *testing.T) {
	t.Parallel()

	if got := UserAgent(); got != "llmcompare/"+Version {
		t.Fatalf("UserAgent()=%q", got)
	}
}
