package version

import "fmt"

// Set at build time with -ldflags "-X".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return fmt.Sprintf("llmcompare %s (%s, %s)", Version, Commit, Date)
}

// UserAgent is sent on outbound requests to span sources.
func UserAgent() string {
	return "llmcompare/" + Version
}
