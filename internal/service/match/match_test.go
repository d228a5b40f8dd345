package match

import (
	"testing"

	"github.com/cengZa/zhiyin-backend/internal/domain"
)

func TestDistance(t *testing.T) {
	cases := []struct {
		name string
		a    []string
		b    []string
		want int
	}{
		{name: "identical", a: []string{"go", "music"}, b: []string{"go", "music"}, want: 0},
		{name: "empty reference", a: nil, b: []string{"go", "music"}, want: 2},
		{name: "empty candidate", a: []string{"go"}, b: nil, want: 1},
		{name: "single substitution", a: []string{"go", "music"}, b: []string{"go", "movies"}, want: 1},
		{name: "insertion", a: []string{"go"}, b: []string{"go", "music"}, want: 1},
		{name: "disjoint", a: []string{"a", "b"}, b: []string{"c", "d", "e"}, want: 3},
		{name: "order matters", a: []string{"a", "b"}, b: []string{"b", "a"}, want: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Distance(tc.a, tc.b); got != tc.want {
				t.Fatalf("Distance(%v, %v) = %d, want %d", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := []string{"go", "hiking", "jazz"}
	b := []string{"rust", "hiking"}
	if Distance(a, b) != Distance(b, a) {
		t.Fatalf("distance is not symmetric: %d vs %d", Distance(a, b), Distance(b, a))
	}
}

func TestRankOrdersByAscendingDistance(t *testing.T) {
	reference := []string{"a", "b", "c"}
	pool := []domain.User{
		{ID: "far", Tags: []string{"x", "y", "z"}},
		{ID: "exact", Tags: []string{"a", "b", "c"}},
		{ID: "close", Tags: []string{"a", "b", "d"}},
	}

	ranked := Rank("me", reference, pool, 3)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 results, got %d", len(ranked))
	}
	if ranked[0].ID != "exact" {
		t.Fatalf("expected exact match first, got %q", ranked[0].ID)
	}
	if ranked[1].ID != "close" || ranked[2].ID != "far" {
		t.Fatalf("unexpected order: %q, %q", ranked[1].ID, ranked[2].ID)
	}
}

func TestRankExcludesSelfAndUntagged(t *testing.T) {
	reference := []string{"a"}
	pool := []domain.User{
		{ID: "me", Tags: []string{"a"}},
		{ID: "untagged", Tags: nil},
		{ID: "other", Tags: []string{"a"}},
	}

	ranked := Rank("me", reference, pool, 10)
	if len(ranked) != 1 {
		t.Fatalf("expected 1 result, got %d", len(ranked))
	}
	if ranked[0].ID != "other" {
		t.Fatalf("expected %q, got %q", "other", ranked[0].ID)
	}
}

func TestRankStableTieBreak(t *testing.T) {
	reference := []string{"a", "b"}
	pool := []domain.User{
		{ID: "first", Tags: []string{"a", "c"}},
		{ID: "second", Tags: []string{"a", "d"}},
		{ID: "third", Tags: []string{"a", "e"}},
	}

	ranked := Rank("me", reference, pool, 10)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 results, got %d", len(ranked))
	}
	// All candidates are distance 1; input order must hold.
	for i, want := range []string{"first", "second", "third"} {
		if ranked[i].ID != want {
			t.Fatalf("tie-break not stable at %d: got %q, want %q", i, ranked[i].ID, want)
		}
	}
}

func TestRankTruncatesToLimit(t *testing.T) {
	reference := []string{"a"}
	pool := []domain.User{
		{ID: "u1", Tags: []string{"a"}},
		{ID: "u2", Tags: []string{"a", "b"}},
		{ID: "u3", Tags: []string{"a", "b", "c"}},
	}

	ranked := Rank("me", reference, pool, 2)
	if len(ranked) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(ranked))
	}
	if ranked[0].ID != "u1" || ranked[1].ID != "u2" {
		t.Fatalf("unexpected winners: %q, %q", ranked[0].ID, ranked[1].ID)
	}
}
