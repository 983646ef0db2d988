package git

import (
	"strings"

	"github.com/muradrava/reportsync/internal/models"
)

// Recognized git messages, matched case-insensitively against combined
// output. The first matching group wins, in the order checked by Classify.
var (
	contentionMarkers = []string{
		"index.lock",
		".lock': file exists",
		"another git process seems to be running",
		"cannot lock ref",
		"unable to lock",
	}

	localChangeMarkers = []string{
		"your local changes to the following files would be overwritten",
		"please commit your changes or stash them",
		"untracked working tree files would be overwritten",
	}

	rejectedMarkers = []string{
		"[rejected]",
		"non-fast-forward",
		"updates were rejected",
		"fetch first",
	}

	divergenceMarkers = []string{
		"automatic merge failed",
		"merge conflict",
		"conflict (",
		"refusing to merge unrelated histories",
		"need to specify how to reconcile divergent branches",
		"you have unmerged paths",
		"you have not concluded your merge",
		"could not apply",
	}
)

// Classify turns the exit status and output of a git invocation into an
// Outcome. A nil error is always a success; a timeout is contention.
func Classify(output string, err error, timedOut bool) models.Outcome {
	if err == nil {
		return models.OutcomeSuccess
	}
	if timedOut {
		return models.OutcomeContention
	}

	out := strings.ToLower(output)
	switch {
	case containsAny(out, contentionMarkers):
		return models.OutcomeContention
	case containsAny(out, localChangeMarkers):
		return models.OutcomeLocalChanges
	case containsAny(out, rejectedMarkers):
		return models.OutcomeRejected
	case containsAny(out, divergenceMarkers):
		return models.OutcomeDivergence
	default:
		return models.OutcomeFailure
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
