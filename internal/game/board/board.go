package board

// Position identifies a cell on the match grid. The grid is axis-aligned
// with X growing east and Z growing north, matching the wire format.
type Position struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// Manhattan returns the Manhattan distance between two positions. All
// movement and ability range checks use this metric.
func Manhattan(a, b Position) int {
	return abs(a.X-b.X) + abs(a.Z-b.Z)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Grid describes the playable area of a match.
type Grid struct {
	Width  int
	Height int
}

// Contains reports whether p lies within the grid bounds.
func (g Grid) Contains(p Position) bool {
	return p.X >= 0 && p.X < g.Width && p.Z >= 0 && p.Z < g.Height
}

// PathExists reports whether a unit can reach dest from origin within
// maxSteps orthogonal moves without entering an occupied cell. dest itself
// must be unoccupied; origin is always considered passable.
func (g Grid) PathExists(origin, dest Position, maxSteps int, occupied map[Position]bool) bool {
	if origin == dest {
		return true
	}
	if !g.Contains(dest) || occupied[dest] {
		return false
	}

	type node struct {
		pos   Position
		steps int
	}

	visited := map[Position]bool{origin: true}
	queue := []node{{origin, 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.steps >= maxSteps {
			continue
		}

		for _, next := range []Position{
			{cur.pos.X + 1, cur.pos.Z},
			{cur.pos.X - 1, cur.pos.Z},
			{cur.pos.X, cur.pos.Z + 1},
			{cur.pos.X, cur.pos.Z - 1},
		} {
			if visited[next] || !g.Contains(next) || occupied[next] {
				continue
			}
			if next == dest {
				return true
			}
			visited[next] = true
			queue = append(queue, node{next, cur.steps + 1})
		}
	}

	return false
}
