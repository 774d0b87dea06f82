package backend

// VisibilityGate decides when anonymous visitors see the sign-up overlay.
type VisibilityGate struct {
	Threshold int
}

func (g VisibilityGate) ShowOverlay(authenticated bool, loaded int) bool {
	return !authenticated && loaded >= g.Threshold
}

// IsPartiallyHidden reports whether the item at index sits behind the overlay.
func (g VisibilityGate) IsPartiallyHidden(showOverlay bool, index, maxItems int) bool {
	if !showOverlay || index < g.Threshold {
		return false
	}
	return maxItems == 0 || index < maxItems
}
