package nav

// Fixed neighbor order keeps planned paths identical across runs.
var dirs = [4]Pos{{X: 1}, {X: -1}, {Z: 1}, {Z: -1}}

// planPath returns the cells to walk from start (exclusive) to target
// (inclusive), or ok=false when target cannot be reached. maxNodes bounds the
// search; 0 means unbounded.
func planPath(start, target Pos, maxNodes int, walkable func(Pos) bool) ([]Pos, bool) {
	if start == target {
		return nil, true
	}
	if !walkable(target) {
		return nil, false
	}
	prev := map[Pos]Pos{start: start}
	queue := []Pos{start}
	for head := 0; head < len(queue); head++ {
		if maxNodes > 0 && head >= maxNodes {
			return nil, false
		}
		cur := queue[head]
		for _, d := range dirs {
			np := Pos{X: cur.X + d.X, Z: cur.Z + d.Z}
			if _, seen := prev[np]; seen || !walkable(np) {
				continue
			}
			prev[np] = cur
			if np == target {
				return unwind(prev, start, target), true
			}
			queue = append(queue, np)
		}
	}
	return nil, false
}

func unwind(prev map[Pos]Pos, start, target Pos) []Pos {
	var rev []Pos
	for p := target; p != start; p = prev[p] {
		rev = append(rev, p)
	}
	out := make([]Pos, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out
}
