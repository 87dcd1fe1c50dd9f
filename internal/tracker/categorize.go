package tracker

import (
	"strings"

	"github.com/ILLUVRSE/serverquality/internal/models"
)

// categoryKeywords is checked in order; the first match wins.
var categoryKeywords = []struct {
	category models.IssueCategory
	words    []string
}{
	{models.IssueConnection, []string{"connection", "connect", "refused", "unreachable", "network", "socket"}},
	{models.IssueConfiguration, []string{"config", "argument", "permission", "env var", "environment variable", "invalid option"}},
	{models.IssueDependencies, []string{"dependency", "dependencies", "module", "package not found", "no such package", "command not found"}},
	{models.IssueCompatibility, []string{"unsupported", "incompatible", "version mismatch", "requires version"}},
	{models.IssuePerformance, []string{"out of memory", "oomkilled", "too slow", "resource exhausted"}},
	{models.IssueMaintenance, []string{"deprecated", "archived", "no longer maintained"}},
}

// Categorize maps a failed install's error text to an outcome and an issue
// category. Any mention of a timeout turns the outcome into timeout; the
// category stays empty when nothing matches.
func Categorize(success bool, errMsg string) (models.InstallOutcome, models.IssueCategory) {
	if success {
		return models.OutcomeSuccess, ""
	}
	lower := strings.ToLower(errMsg)
	if lower == "" {
		return models.OutcomeFailure, ""
	}
	if strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") {
		return models.OutcomeTimeout, ""
	}
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(lower, w) {
				return models.OutcomeFailure, ck.category
			}
		}
	}
	return models.OutcomeFailure, ""
}
