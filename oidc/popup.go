// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"math"
	"strconv"
)

// PopupFeatures returns the window features which center a width x height
// popup over the window described by m.  The popup never starts left of or
// above the window.
func PopupFeatures(m WindowMetrics, width, height int) string {
	outerWidth, outerHeight := m.OuterWidth, m.OuterHeight
	if outerWidth == 0 {
		outerWidth = m.ClientWidth
	}
	if outerHeight == 0 {
		outerHeight = m.ClientHeight
	}

	left := math.Round(m.ScreenX) + (outerWidth-float64(width))/2
	top := math.Round(m.ScreenY) + (outerHeight-float64(height))/2.5
	if left < m.ScreenX {
		left = m.ScreenX
	}
	if top < m.ScreenY {
		top = m.ScreenY
	}

	return "width=" + strconv.Itoa(width) +
		",height=" + strconv.Itoa(height) +
		",left=" + formatPixels(left) +
		",top=" + formatPixels(top) +
		",dialog=yes,dependent=yes,scrollbars=yes,location=yes"
}

func formatPixels(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
