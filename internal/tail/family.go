package tail

import "strings"

// Families recognized in file basenames. The problems/history prefixes win
// over the worker-pool substrings: a problems-*-main-process-N.ndjson file
// reports as problems, because the family reflects the event domain rather
// than which Zabbix worker wrote the file.
const (
	FamilyProblems    = "problems"
	FamilyHistory     = "history"
	FamilyMainProcess = "main-process"
	FamilyTaskManager = "task-manager"
	FamilyOther       = "other"
)

// Families lists every valid family tag.
var Families = []string{
	FamilyProblems,
	FamilyHistory,
	FamilyMainProcess,
	FamilyTaskManager,
	FamilyOther,
}

// FamilyFor classifies a file basename. First match wins.
func FamilyFor(base string) string {
	switch {
	case strings.HasPrefix(base, "problems-"):
		return FamilyProblems
	case strings.HasPrefix(base, "history-"):
		return FamilyHistory
	case strings.Contains(base, "main-process"):
		return FamilyMainProcess
	case strings.Contains(base, "task-manager"):
		return FamilyTaskManager
	default:
		return FamilyOther
	}
}

// ValidFamily reports whether s is a recognized family tag.
func ValidFamily(s string) bool {
	for _, f := range Families {
		if s == f {
			return true
		}
	}
	return false
}
