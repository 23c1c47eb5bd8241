package rating_test

import (
	"math"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/service/rating"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want [4]float64
	}{
		{
			name: "plain lines",
			text: "Love: 0.9\nPower: 0.7\nWisdom: 0.8\nJustice: 0.85",
			want: [4]float64{0.9, 0.7, 0.8, 0.85},
		},
		{
			name: "json object",
			text: `{"love": 0.95, "power": 0.6, "wisdom": 0.75, "justice": 0.5}`,
			want: [4]float64{0.95, 0.6, 0.75, 0.5},
		},
		{
			name: "surrounding prose and markdown",
			text: "Here is my rating for mercy.\n\n**Love**: 0.9\n**Power** = .4\n- Wisdom: 0.70\n- Justice: 0.6\n\nMercy leans toward love.",
			want: [4]float64{0.9, 0.4, 0.7, 0.6},
		},
		{
			name: "percent units",
			text: "Love: 90%\nPower: 40 percent\nWisdom: 75%\nJustice: 100%",
			want: [4]float64{0.9, 0.4, 0.75, 1.0},
		},
		{
			name: "markdown table",
			text: "| Dimension | Score |\n|---|---|\n| Love | 0.8 |\n| Power | 0.3 |\n| Wisdom | 0.6 |\n| Justice | 0.2 |",
			want: [4]float64{0.8, 0.3, 0.6, 0.2},
		},
		{
			name: "last occurrence wins",
			text: "Love: 0.1\nPower: 0.1\nWisdom: 0.1\nJustice: 0.1\nCorrection:\nLove: 0.9\nPower: 0.2\nWisdom: 0.3\nJustice: 0.4",
			want: [4]float64{0.9, 0.2, 0.3, 0.4},
		},
		{
			name: "labelled form preferred over loose mention",
			text: "Love (scale 0-1): 0.8\nPower: 0.5\nWisdom: 0.5\nJustice: 0.5",
			want: [4]float64{0.8, 0.5, 0.5, 0.5},
		},
		{
			name: "slightly out of range values are clamped",
			text: "Love: 1.02\nPower: -0.01\nWisdom: 0.5\nJustice: 1.0",
			want: [4]float64{1.0, 0.0, 0.5, 1.0},
		},
		{
			name: "trailing sentence period and qualifier",
			text: "Love (compassion) 0.8\nPower - 0.3\nWisdom: 0.6.\nJustice: 0.2",
			want: [4]float64{0.8, 0.3, 0.6, 0.2},
		},
		{
			name: "case insensitive labels",
			text: "LOVE: 0.3 power: 0.4 WiSdOm: 0.5 justice: 0.6",
			want: [4]float64{0.3, 0.4, 0.5, 0.6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := rating.Parse(tt.text)
			gt.NoError(t, err).Required()
			got := c.Values()
			for i := range tt.want {
				gt.Bool(t, math.Abs(got[i]-tt.want[i]) < 1e-9).True()
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "refusal", text: "I cannot rate religious concepts."},
		{name: "missing justice", text: "Love: 0.9\nPower: 0.7\nWisdom: 0.8"},
		{name: "label without number", text: "Love: high\nPower: 0.7\nWisdom: 0.8\nJustice: 0.5"},
		{name: "ten point scale", text: "Love: 9\nPower: 7\nWisdom: 8\nJustice: 6"},
		{name: "negative value", text: "Love: -0.5\nPower: 0.7\nWisdom: 0.8\nJustice: 0.5"},
		{name: "percent over range", text: "Love: 150%\nPower: 0.7\nWisdom: 0.8\nJustice: 0.5"},
		{name: "template echo", text: "Love: <number>\nPower: <number>\nWisdom: <number>\nJustice: <number>"},
		{name: "label mentioned in prose with a later digit", text: "Love: 0.9\nPower: 0.5\nWisdom: 0.8\nI won't rate justice in 1 word."},
		{name: "label quoted in a heading", text: "Rating for \"Justice\" on a 0-1 scale:\nLove: 0.9\nPower: 0.5\nWisdom: 0.8"},
		{name: "exponent notation", text: "Love: 0.9\nPower: 0.5\nWisdom: 0.8\nJustice: 1e-1"},
		{name: "not applicable with aside", text: "Love: 0.9\nPower: 0.5\nWisdom: 0.8\nJustice: N/A (rated 0 by policy)"},
		{name: "fraction", text: "Love: 0.9\nPower: 0.5\nWisdom: 0.8\nJustice: 8/10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rating.Parse(tt.text)
			gt.Error(t, err).Is(model.ErrMalformedResponse)
		})
	}
}
