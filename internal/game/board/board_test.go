package board

import "testing"

func TestManhattan(t *testing.T) {
	cases := []struct {
		a, b Position
		want int
	}{
		{Position{0, 0}, Position{0, 0}, 0},
		{Position{0, 0}, Position{3, 0}, 3},
		{Position{0, 0}, Position{2, 1}, 3},
		{Position{5, 5}, Position{2, 7}, 5},
		{Position{-1, 0}, Position{1, 0}, 2},
	}
	for _, tc := range cases {
		if got := Manhattan(tc.a, tc.b); got != tc.want {
			t.Errorf("Manhattan(%v, %v) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestGridContains(t *testing.T) {
	g := Grid{Width: 10, Height: 8}

	if !g.Contains(Position{0, 0}) {
		t.Error("origin should be inside")
	}
	if !g.Contains(Position{9, 7}) {
		t.Error("far corner should be inside")
	}
	for _, p := range []Position{{-1, 0}, {0, -1}, {10, 0}, {0, 8}} {
		if g.Contains(p) {
			t.Errorf("%v should be outside", p)
		}
	}
}

func TestPathExistsStraightLine(t *testing.T) {
	g := Grid{Width: 5, Height: 5}
	if !g.PathExists(Position{0, 0}, Position{3, 0}, 3, nil) {
		t.Error("open straight line should be reachable")
	}
	if g.PathExists(Position{0, 0}, Position{3, 0}, 2, nil) {
		t.Error("destination beyond step budget should be unreachable")
	}
}

func TestPathExistsAroundBlocker(t *testing.T) {
	g := Grid{Width: 5, Height: 5}
	occupied := map[Position]bool{{1, 0}: true}

	// Direct route blocked; detour through (0,1),(1,1),(2,1),(2,0) costs 4.
	if g.PathExists(Position{0, 0}, Position{2, 0}, 2, occupied) {
		t.Error("detour should not fit in 2 steps")
	}
	if !g.PathExists(Position{0, 0}, Position{2, 0}, 4, occupied) {
		t.Error("detour should fit in 4 steps")
	}
}

func TestPathExistsCorridorBlocked(t *testing.T) {
	g := Grid{Width: 3, Height: 1}
	occupied := map[Position]bool{{1, 0}: true}
	if g.PathExists(Position{0, 0}, Position{2, 0}, 10, occupied) {
		t.Error("fully blocked corridor should be unreachable")
	}
}

func TestPathExistsOccupiedDestination(t *testing.T) {
	g := Grid{Width: 5, Height: 5}
	occupied := map[Position]bool{{2, 0}: true}
	if g.PathExists(Position{0, 0}, Position{2, 0}, 5, occupied) {
		t.Error("occupied destination should be unreachable")
	}
}

func TestPathExistsSamePosition(t *testing.T) {
	g := Grid{Width: 5, Height: 5}
	if !g.PathExists(Position{2, 2}, Position{2, 2}, 0, nil) {
		t.Error("staying put is always possible")
	}
}
