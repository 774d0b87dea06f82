package backend

import "testing"

func TestVisibilityGateShowOverlay(t *testing.T) {
	gate := VisibilityGate{Threshold: 20}

	tests := []struct {
		authenticated bool
		loaded        int
		expected      bool
	}{
		{false, 0, false},
		{false, 19, false},
		{false, 20, true},
		{false, 22, true},
		{true, 20, false},
		{true, 22, false},
	}

	for i, tt := range tests {
		actual := gate.ShowOverlay(tt.authenticated, tt.loaded)
		if actual != tt.expected {
			t.Errorf("%d. ShowOverlay(%v, %d): expected %v, got %v", i, tt.authenticated, tt.loaded, tt.expected, actual)
		}
	}
}

func TestVisibilityGateIsPartiallyHidden(t *testing.T) {
	gate := VisibilityGate{Threshold: 20}

	tests := []struct {
		showOverlay bool
		index       int
		maxItems    int
		expected    bool
	}{
		{true, 19, 22, false},
		{true, 20, 22, true},
		{true, 21, 22, true},
		{true, 22, 22, false},
		{false, 21, 22, false},
		{true, 40, 0, true},
	}

	for i, tt := range tests {
		actual := gate.IsPartiallyHidden(tt.showOverlay, tt.index, tt.maxItems)
		if actual != tt.expected {
			t.Errorf("%d. IsPartiallyHidden(%v, %d, %d): expected %v, got %v", i, tt.showOverlay, tt.index, tt.maxItems, tt.expected, actual)
		}
	}
}
