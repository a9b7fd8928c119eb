// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPopupFeatures(t *testing.T) {
	t.Parallel()
	const flags = ",dialog=yes,dependent=yes,scrollbars=yes,location=yes"
	tests := []struct {
		name   string
		m      WindowMetrics
		width  int
		height int
		want   string
	}{
		{
			name:   "centered",
			m:      WindowMetrics{ScreenX: 100, ScreenY: 50, OuterWidth: 1400, OuterHeight: 1000},
			width:  700,
			height: 500,
			want:   "width=700,height=500,left=450,top=250" + flags,
		},
		{
			name:   "client-size-fallback",
			m:      WindowMetrics{ClientWidth: 1000, ClientHeight: 750},
			width:  700,
			height: 500,
			want:   "width=700,height=500,left=150,top=100" + flags,
		},
		{
			name:   "fractional",
			m:      WindowMetrics{OuterWidth: 1001, OuterHeight: 501},
			width:  700,
			height: 500,
			want:   "width=700,height=500,left=150.5,top=0.4" + flags,
		},
		{
			name:   "clamped-to-window",
			m:      WindowMetrics{ScreenX: 30, ScreenY: 40, OuterWidth: 400, OuterHeight: 300},
			width:  700,
			height: 500,
			want:   "width=700,height=500,left=30,top=40" + flags,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, PopupFeatures(tt.m, tt.width, tt.height))
		})
	}
}
