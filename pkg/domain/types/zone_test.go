package types_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
)

func TestZoneOf(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		want     types.Zone
	}{
		{name: "at anchor", distance: 0, want: types.ZoneInner},
		{name: "just inside inner", distance: 0.4999, want: types.ZoneInner},
		{name: "inner bound is middle", distance: 0.5, want: types.ZoneMiddle},
		{name: "middle bound is outer", distance: 1.0, want: types.ZoneOuter},
		{name: "outer bound is far", distance: 1.5, want: types.ZoneFar},
		{name: "max distance", distance: 2.0, want: types.ZoneFar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, types.ZoneOf(tt.distance)).Equal(tt.want)
		})
	}
}
