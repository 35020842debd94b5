package engine

import (
	"strings"

	"go.uber.org/zap"

	"github.com/jeanpaul/recall/internal/analysis"
)

// Report lists the expected names a response does not mention.
type Report struct {
	MissingFiles     []string
	MissingFunctions []string
}

// Passed reports whether every expected name was found.
func (r Report) Passed() bool {
	return len(r.MissingFiles) == 0 && len(r.MissingFunctions) == 0
}

// SelfCheck looks for each hinted file and function name in the response,
// case-insensitively. It only observes; the response is never changed.
func SelfCheck(response string, hints analysis.Hints) Report {
	lower := strings.ToLower(response)
	return Report{
		MissingFiles:     missing(lower, hints.FileNames),
		MissingFunctions: missing(lower, hints.FunctionNames),
	}
}

func missing(lowerResponse string, names []string) []string {
	var out []string
	for _, n := range names {
		if !strings.Contains(lowerResponse, strings.ToLower(n)) {
			out = append(out, n)
		}
	}
	return out
}

// Log writes the report at info level when it passed and warn otherwise.
func (r Report) Log(log *zap.Logger) {
	if r.Passed() {
		log.Info("self-check passed")
		return
	}
	log.Warn("self-check failed",
		zap.Strings("missing_files", r.MissingFiles),
		zap.Strings("missing_functions", r.MissingFunctions))
}
