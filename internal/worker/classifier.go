package worker

import (
	"regexp"
	"strings"
)

// LineKind categorizes a single line of a worker's stdout/stderr.
type LineKind string

const (
	LineKindReady   LineKind = "ready"
	LineKindError   LineKind = "error"
	LineKindWarning LineKind = "warning"
	LineKindPort    LineKind = "port"
	LineKindInfo    LineKind = "info"
)

// readySubstrings are checked literally (case-sensitive), matching the
// exact banners real worker builds emit on startup.
var readySubstrings = []string{
	"Server running",
	"Running on",
	"Starting server",
	"Web UI available at",
	"Server listening",
}

var errorSubstrings = []string{"ERROR", "error:", "Exception", "Traceback"}
var warningSubstrings = []string{"WARNING", "WARN", "warning:"}

var (
	loopbackPortRe    = regexp.MustCompile(`localhost:(\d+)`)
	loopbackIPPortRe  = regexp.MustCompile(`127\.0\.0\.1:(\d+)`)
	runningOnPortRe   = regexp.MustCompile(`Running on.*port (\d+)`)
)

// ClassifyLine inspects a single log line and reports what kind of signal
// it carries, in this precedence: ready signal, error, warning, port
// announcement, otherwise info. A ready-signal line wins even if it also
// contains the word "warning", since startup banners legitimately do.
func ClassifyLine(line string) LineKind {
	switch {
	case containsAny(line, readySubstrings) || loopbackPortRe.MatchString(line):
		return LineKindReady
	case containsAny(line, errorSubstrings):
		return LineKindError
	case containsAny(line, warningSubstrings):
		return LineKindWarning
	case isPortAnnouncement(line):
		return LineKindPort
	default:
		return LineKindInfo
	}
}

func isPortAnnouncement(line string) bool {
	return loopbackPortRe.MatchString(line) || loopbackIPPortRe.MatchString(line) || runningOnPortRe.MatchString(line)
}

func containsAny(line string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

// ExtractPort pulls the port number out of a port-announcement line, if
// any. Returns 0, false when line does not carry one.
func ExtractPort(line string) (int, bool) {
	for _, re := range []*regexp.Regexp{loopbackPortRe, loopbackIPPortRe, runningOnPortRe} {
		if match := re.FindStringSubmatch(line); match != nil {
			port := 0
			for _, r := range match[1] {
				if r < '0' || r > '9' {
					return 0, false
				}
				port = port*10 + int(r-'0')
			}
			return port, true
		}
	}
	return 0, false
}

// fatalSubstrings are scanned over a worker's accumulated error lines during
// the readiness poll; any hit marks the worker failed outright rather than
// leaving it to time out as "still starting".
var fatalSubstrings = []string{"ModuleNotFoundError", "No module named", "Fatal error", "Could not find model"}

// IsFatalLogLine reports whether line carries one of the known fatal
// startup failure patterns.
func IsFatalLogLine(line string) bool {
	return containsAny(line, fatalSubstrings)
}
