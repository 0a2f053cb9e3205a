package forwardedit

import (
	"github.com/pmezard/go-difflib/difflib"
)

// UnifiedDiff renders the change from old to new as a unified diff with
// three lines of context. It returns "" when the texts are equal.
func UnifiedDiff(name, old, new string) (string, error) {
	if old == new {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(old),
		B:        difflib.SplitLines(new),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	})
}
