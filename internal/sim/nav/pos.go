package nav

// Pos is a walkable cell on the store floor.
type Pos struct {
	X int `json:"x" yaml:"x"`
	Z int `json:"z" yaml:"z"`
}

func DistXZ(a, b Pos) int {
	return abs(a.X-b.X) + abs(a.Z-b.Z)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
