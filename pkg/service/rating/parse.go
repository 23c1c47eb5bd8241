package rating

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
)

// clampTolerance is how far outside [0,1] a value may stray and still be clamped
const clampTolerance = 0.05

// A value is the number right after the label. Only separators, a parenthesised
// qualifier or a spaced dash may sit between them, and the number must end at a word
// boundary: "1e-1" and "8/10" are not ratings.
var labelPattern = regexp.MustCompile(`(?i)\b(love|power|wisdom|justice)\b` +
	`(?:\s*\([^)\n]*\))?` +
	`(?:[\s:=|*_"'()–]|\s-\s)*` +
	`([+-]?(?:\d+(?:\.\d+)?|\.\d+))` +
	`(\s*%|\s*percent\b|[\w/.]*)`)

// Parse extracts the four labelled values from a model response. Surrounding prose,
// markdown, JSON and percent units are tolerated. When a label appears more than once
// the last occurrence wins.
func Parse(text string) (model.Coordinate, error) {
	found := lastMatches(labelPattern, text)

	var values [4]float64
	var missing []string
	for i, d := range types.Dimensions() {
		m, ok := found[d]
		if !ok {
			missing = append(missing, string(d))
			continue
		}

		v, err := interpret(m)
		if err != nil {
			return model.Coordinate{}, goerr.Wrap(err, "invalid dimension value",
				goerr.V("dimension", d),
				goerr.V(model.StageKey, model.StageParse))
		}
		values[i] = v
	}

	if len(missing) > 0 {
		return model.Coordinate{}, goerr.Wrap(model.ErrMalformedResponse, "missing dimension values",
			goerr.V("missing", missing),
			goerr.V(model.StageKey, model.StageParse))
	}

	coord, err := model.NewCoordinateFromValues(values)
	if err != nil {
		return model.Coordinate{}, goerr.Wrap(model.ErrMalformedResponse, "parsed values out of range",
			goerr.V("values", values),
			goerr.V(model.StageKey, model.StageParse))
	}
	return coord, nil
}

type match struct {
	number  string
	suffix  string
	percent bool
}

func lastMatches(pattern *regexp.Regexp, text string) map[types.Dimension]match {
	found := make(map[types.Dimension]match)
	for _, m := range pattern.FindAllStringSubmatch(text, -1) {
		d := types.Dimension(strings.ToLower(m[1]))
		suffix := strings.TrimSpace(m[3])
		found[d] = match{number: m[2], suffix: suffix, percent: suffix == "%" || strings.EqualFold(suffix, "percent")}
	}
	return found
}

func interpret(m match) (float64, error) {
	if !m.percent && m.suffix != "" && m.suffix != "." {
		return 0, goerr.Wrap(model.ErrMalformedResponse, "value is not a plain number",
			goerr.V("value", m.number+m.suffix))
	}
	v, err := strconv.ParseFloat(m.number, 64)
	if err != nil {
		return 0, goerr.Wrap(model.ErrMalformedResponse, "not a number", goerr.V("value", m.number))
	}
	if m.percent {
		v /= 100
	}

	if v < -clampTolerance || v > 1+clampTolerance {
		return 0, goerr.Wrap(model.ErrMalformedResponse, "value outside rating scale",
			goerr.V("value", v))
	}
	return model.Clamp(v), nil
}
