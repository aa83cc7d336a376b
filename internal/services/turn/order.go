package turn

// NextDrawer returns the player after current in order, wrapping to the
// first one when current is last or unknown. Empty order yields "".
func NextDrawer(order []string, current string) string {
	if len(order) == 0 {
		return ""
	}

	for i, id := range order {
		if id == current && i+1 < len(order) {
			return order[i+1]
		}
	}

	return order[0]
}
