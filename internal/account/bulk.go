package account

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	sidPattern   = regexp.MustCompile(`^AC[A-Za-z0-9]{32}$`)
	tokenPattern = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)
)

// ParseResult reports the outcome of parsing one bulk import blob.
type ParseResult struct {
	Accounts []*Account
	// Rejected maps 1-based line numbers to the reason the line was
	// skipped. Parsing is best effort: bad lines never abort the batch.
	Rejected map[int]string
	// Truncated is true when the blob held more lines than the limit.
	Truncated bool
}

// ParseBulk extracts credential pairs from an operator-pasted blob. Each
// line carries "SID TOKEN"; comma, colon, pipe and tab separators are
// normalized, and a bare token line is joined to a preceding bare-SID line.
// Duplicated SIDs keep the first occurrence.
func ParseBulk(blob string, limit int) ParseResult {
	res := ParseResult{Rejected: make(map[int]string)}

	lines := normalizeLines(blob)
	if limit > 0 && len(lines) > limit {
		lines = lines[:limit]
		res.Truncated = true
	}

	seen := make(map[string]struct{})
	for i, line := range lines {
		lineNo := i + 1
		parts := strings.Fields(line)
		if len(parts) < 2 {
			res.Rejected[lineNo] = "incomplete: both SID and token required"
			continue
		}
		sid, token := parts[0], parts[1]

		if err := validatePair(sid, token); err != nil {
			res.Rejected[lineNo] = err.Error()
			continue
		}
		if _, dup := seen[sid]; dup {
			res.Rejected[lineNo] = "duplicate SID"
			continue
		}
		seen[sid] = struct{}{}
		res.Accounts = append(res.Accounts, New(sid, token))
	}
	return res
}

// ValidatePair checks the credential shape without contacting the provider.
func ValidatePair(sid, token string) error {
	return validatePair(sid, token)
}

func validatePair(sid, token string) error {
	if !strings.HasPrefix(sid, "AC") {
		return fmt.Errorf("SID must start with AC")
	}
	if len(sid) != 34 {
		return fmt.Errorf("SID length invalid (%d chars, expected 34)", len(sid))
	}
	if !sidPattern.MatchString(sid) {
		return fmt.Errorf("SID format invalid")
	}
	if len(token) != 32 {
		return fmt.Errorf("token length invalid (%d chars, expected 32)", len(token))
	}
	if !tokenPattern.MatchString(token) {
		return fmt.Errorf("token format invalid")
	}
	return nil
}

var bulkSeparators = strings.NewReplacer(",", " ", ":", " ", "|", " ", "\t", " ")

func normalizeLines(blob string) []string {
	var out []string
	for _, raw := range strings.Split(blob, "\n") {
		line := strings.TrimSpace(bulkSeparators.Replace(raw))
		if line == "" || len(line) < 20 {
			continue
		}
		parts := strings.Fields(line)
		// A bare token line continues a preceding bare-SID line.
		if len(parts) == 1 && !strings.HasPrefix(parts[0], "AC") && len(out) > 0 {
			prev := strings.Fields(out[len(out)-1])
			if len(prev) == 1 && strings.HasPrefix(prev[0], "AC") {
				out[len(out)-1] = prev[0] + " " + parts[0]
				continue
			}
		}
		out = append(out, strings.Join(parts, " "))
	}
	return out
}
