package browser

import "strings"

// closestText returns the candidate with the smallest edit distance to text
// after case and whitespace normalization.
func closestText(text string, candidates []string) string {
	query := normalizeText(text)
	if query == "" {
		return ""
	}
	best := ""
	bestScore := -1
	for _, candidate := range candidates {
		normalized := normalizeText(candidate)
		if normalized == "" {
			continue
		}
		score := levenshteinDistance(query, normalized)
		if bestScore == -1 || score < bestScore {
			bestScore = score
			best = candidate
		}
	}
	return best
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func levenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur := make([]int, len(b)+1)
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev = cur
	}
	return prev[len(b)]
}
