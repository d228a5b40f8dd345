// Package match ranks users by tag-list affinity.
package match

import (
	"sort"

	"github.com/cengZa/zhiyin-backend/internal/domain"
)

// Distance computes the edit distance between two tag sequences: the minimum
// number of single-tag insertions, deletions, or substitutions transforming
// one into the other. Tags are atomic tokens; order matters.
func Distance(a, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j-1]+cost, min(prev[j]+1, curr[j-1]+1))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Rank orders candidates by ascending distance to referenceTags and truncates
// to limit. Candidates with no tags and the reference user are excluded.
// Ties keep the candidates' input order (stable sort).
func Rank(referenceID string, referenceTags []string, candidates []domain.User, limit int) []domain.User {
	type scored struct {
		user     domain.User
		distance int
	}

	pool := make([]scored, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.ID == referenceID || len(candidate.Tags) == 0 {
			continue
		}
		pool = append(pool, scored{
			user:     candidate,
			distance: Distance(referenceTags, candidate.Tags),
		})
	}

	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].distance < pool[j].distance
	})

	if limit > 0 && len(pool) > limit {
		pool = pool[:limit]
	}
	ranked := make([]domain.User, 0, len(pool))
	for _, entry := range pool {
		ranked = append(ranked, entry.user)
	}
	return ranked
}
