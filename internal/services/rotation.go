package services

// NextIndex returns the rotation position after an optional advance. It wraps
// to 0 after the last city.
func NextIndex(index, count int, advance bool) int {
	if count <= 0 {
		return 0
	}
	if !advance {
		return index
	}
	return (index + 1) % count
}
