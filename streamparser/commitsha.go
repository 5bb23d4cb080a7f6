package streamparser

import "regexp"

// Precedence mirrors original_source's extract_commit_sha: a full 40-hex
// SHA wins outright; otherwise the short form inside a `[branch sha]` git
// commit summary; otherwise a 7-8 hex token introduced by "commit",
// "committed", or "sha".
var (
	fullSHAPattern  = regexp.MustCompile(`\b[a-f0-9]{40}\b`)
	gitOutputPattern = regexp.MustCompile(`\[[\w\-/]+\s+([a-f0-9]{7,8})\]`)
	shortSHAPattern = regexp.MustCompile(`(?i)(?:commit|committed|sha)[:\s]+([a-f0-9]{7,8})\b`)
)

// extractCommitSHA returns the first matching commit hash in response, or
// "" if none of the three patterns match.
func extractCommitSHA(response string) string {
	if m := fullSHAPattern.FindString(response); m != "" {
		return m
	}
	if m := gitOutputPattern.FindStringSubmatch(response); m != nil {
		return m[1]
	}
	if m := shortSHAPattern.FindStringSubmatch(response); m != nil {
		return m[1]
	}
	return ""
}
