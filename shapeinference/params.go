// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/gomlx/convshape/types/shapes"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Parameter names read by ParseConvParams.
const (
	ParamKernel    = "kernel"
	ParamStrides   = "strides"
	ParamDilations = "dilations"
	ParamPadsBegin = "pads_begin"
	ParamPadsEnd   = "pads_end"
	ParamAutoPad   = "auto_pad"
	ParamOutput    = "output"
	ParamGroup     = "group"

	// BlobWeights is the name of the weights blob, used to infer the number of output channels.
	BlobWeights = "weights"
)

const (
	minConvRank     = 3
	legacySpatialXY = 2
)

// ConvParams are the resolved parameters of a convolution layer.
//
// The per-axis slices have one value per spatial axis and are stored innermost-first: index 0 refers
// to the last axis of the input, index 1 to the one before it, and so on. Parameters are written
// outermost-first in the configuration (e.g. kernel "kH,kW"), and ParseConvParams reverses them.
type ConvParams struct {
	Kernel    []int
	Strides   []int
	Dilations []int // A dilation of 0 means no dilation, same as 1.
	PadsBegin []int
	PadsEnd   []int

	OutputChannels int
	Group          int
	AutoPad        PadMode
}

// SpatialRank returns the number of spatial axes the parameters were resolved for.
func (p *ConvParams) SpatialRank() int { return len(p.Kernel) }

// Validate checks that the parameters are consistent among themselves and with the given input shape.
// It returns a ConfigurationError otherwise.
//
// ParseConvParams already calls it, it only needs to be called for a manually constructed ConvParams.
func (p *ConvParams) Validate(input shapes.Shape) error {
	if err := checkInputRank(input); err != nil {
		return err
	}
	for axis, dim := range input.Dimensions {
		if dim <= 0 {
			return configErrorf(input, "input axis %d has non-positive dimension %d", axis, dim)
		}
	}
	rank := input.Rank()
	spatialRank := rank - 2
	for _, param := range []struct {
		name     string
		values   []int
		minValue int
	}{
		{ParamKernel, p.Kernel, 1},
		{ParamStrides, p.Strides, 1},
		{ParamDilations, p.Dilations, 0},
		{ParamPadsBegin, p.PadsBegin, 0},
		{ParamPadsEnd, p.PadsEnd, 0},
	} {
		if len(param.values) != spatialRank {
			return configErrorf(input, "parameter/rank mismatch: %q has %d values, but the input has %d spatial axes",
				param.name, len(param.values), spatialRank)
		}
		for i, value := range param.values {
			if value < param.minValue {
				return configErrorf(input, "%q for axis %d is %d, it must be >= %d",
					param.name, rank-1-i, value, param.minValue)
			}
		}
	}
	if !p.AutoPad.IsAPadMode() {
		return configErrorf(input, "unknown padding mode %s", p.AutoPad)
	}
	if p.OutputChannels < 1 {
		return configErrorf(input, "%q (number of output channels) is %d, it must be >= 1", ParamOutput, p.OutputChannels)
	}
	if p.Group < 1 {
		return configErrorf(input, "%q is %d, it must be >= 1", ParamGroup, p.Group)
	}
	if inputChannels := input.Dim(1); inputChannels%p.Group != 0 {
		return configErrorf(input, "input channels %d must be divisible by %q=%d", inputChannels, ParamGroup, p.Group)
	}
	if p.OutputChannels%p.Group != 0 {
		return configErrorf(input, "output channels %d must be divisible by %q=%d", p.OutputChannels, ParamGroup, p.Group)
	}
	return nil
}

// checkInputRank returns a ConfigurationError if input is not a valid shape laid out as
// [batch, channels, spatial...].
func checkInputRank(input shapes.Shape) error {
	if !input.Ok() {
		return configErrorf(input, "invalid rank: missing or invalid input shape")
	}
	if err := input.CheckMinRank(minConvRank); err != nil {
		return configErrorf(input, "invalid rank: %v, axes must be [batch, channels, spatial...]", err)
	}
	return nil
}

// ParseConvParams resolves the parameters of a convolution layer from its untyped params, and validates
// them against the first input shape.
//
// The recognized parameters are:
//
//   - "kernel": kernel size per spatial axis. Required.
//   - "strides", "dilations": per spatial axis, default to all 1s.
//   - "auto_pad": one of "valid", "same_upper" or "same_lower" (case-sensitive). Any other value,
//     including none, selects PadExplicit.
//   - "pads_begin", "pads_end": padding per spatial axis. Required for PadExplicit, otherwise
//     they default to 0 and are not used.
//   - "output": number of output channels. If missing, the leading dimension of the "weights" blob
//     is used, if one was given.
//   - "group": number of channel groups, defaults to 1.
//
// If "kernel" is missing, the legacy 2D keys are accepted instead: "kernel-x", "kernel-y" (required),
// "stride-x", "stride-y", "dilation-x", "dilation-y" (default 1), "pad-x", "pad-y" (required for
// PadExplicit) and "pad-r", "pad-b" (default to "pad-x" and "pad-y").
//
// Any failure is returned as a ConfigurationError.
func ParseConvParams(inputs []shapes.Shape, params Params, blobs map[string]shapes.Shape) (*ConvParams, error) {
	if len(inputs) == 0 {
		return nil, configErrorf(shapes.Invalid(), "missing input: convolution requires at least one input tensor")
	}
	input := inputs[0]
	if err := checkInputRank(input); err != nil {
		return nil, err
	}
	spatialRank := input.Rank() - 2
	r := &paramReader{params: params, input: input}

	p := &ConvParams{}
	p.AutoPad = ParsePadMode(r.stringOr(ParamAutoPad, ""))
	explicit := p.AutoPad == PadExplicit
	if r.has(ParamKernel) {
		p.Kernel = r.axes(ParamKernel, spatialRank, 0, true)
		p.Strides = r.axes(ParamStrides, spatialRank, 1, false)
		p.Dilations = r.axes(ParamDilations, spatialRank, 1, false)
		p.PadsBegin = r.axes(ParamPadsBegin, spatialRank, 0, explicit)
		p.PadsEnd = r.axes(ParamPadsEnd, spatialRank, 0, explicit)
	} else if r.has("kernel-x") || r.has("kernel-y") {
		if spatialRank != legacySpatialXY {
			return nil, configErrorf(input, "parameter/rank mismatch: legacy \"kernel-x\"/\"kernel-y\" parameters "+
				"require exactly %d spatial axes, input has %d", legacySpatialXY, spatialRank)
		}
		// Legacy keys are already innermost-first: x (width) then y (height).
		p.Kernel = []int{r.int("kernel-x"), r.int("kernel-y")}
		p.Strides = []int{r.intOr("stride-x", 1), r.intOr("stride-y", 1)}
		p.Dilations = []int{r.intOr("dilation-x", 1), r.intOr("dilation-y", 1)}
		if explicit {
			p.PadsBegin = []int{r.int("pad-x"), r.int("pad-y")}
		} else {
			p.PadsBegin = []int{r.intOr("pad-x", 0), r.intOr("pad-y", 0)}
		}
		p.PadsEnd = []int{r.intOr("pad-r", p.PadsBegin[0]), r.intOr("pad-b", p.PadsBegin[1])}
	} else {
		return nil, configErrorf(input, "missing %q parameter", ParamKernel)
	}

	if r.has(ParamOutput) {
		p.OutputChannels = r.int(ParamOutput)
	} else if weights, found := blobs[BlobWeights]; found && weights.Rank() > 0 {
		p.OutputChannels = weights.Dimensions[0]
	} else if r.err == nil {
		r.err = configErrorf(input, "missing %q parameter (number of output channels) and no %q blob to infer it from",
			ParamOutput, BlobWeights)
	}
	p.Group = r.intOr(ParamGroup, 1)

	if r.err != nil {
		return nil, r.err
	}
	if err := p.Validate(input); err != nil {
		return nil, err
	}
	return p, nil
}

// paramReader reads typed values from Params, keeping the first error found.
// After an error, all reads return zero values.
type paramReader struct {
	params Params
	input  shapes.Shape
	err    error
}

func (r *paramReader) has(name string) bool {
	_, found := r.params[name]
	return found
}

func (r *paramReader) fail(err error, name string) {
	if r.err == nil {
		r.err = configErrorf(r.input, "invalid %q parameter: %v", name, err)
	}
}

// int returns a required integer parameter.
func (r *paramReader) int(name string) int {
	if r.err != nil {
		return 0
	}
	if !r.has(name) {
		r.err = configErrorf(r.input, "missing %q parameter", name)
		return 0
	}
	value, err := toInt(r.params[name])
	if err != nil {
		r.fail(err, name)
	}
	return value
}

// intOr returns an integer parameter if present or the given defaultValue.
func (r *paramReader) intOr(name string, defaultValue int) int {
	if !r.has(name) {
		return defaultValue
	}
	return r.int(name)
}

// stringOr returns a string parameter if present or the given defaultValue.
func (r *paramReader) stringOr(name string, defaultValue string) string {
	value, found := r.params[name]
	if !found || r.err != nil {
		return defaultValue
	}
	str, err := cast.ToStringE(value)
	if err != nil {
		r.fail(err, name)
		return defaultValue
	}
	return str
}

// axes returns the integer list parameter with one value per spatial axis, reversed to innermost-first order.
// If the parameter is absent and not required, all axes are set to defaultValue.
func (r *paramReader) axes(name string, spatialRank, defaultValue int, required bool) []int {
	if r.err != nil {
		return nil
	}
	if !r.has(name) {
		if required {
			r.err = configErrorf(r.input, "missing %q parameter", name)
			return nil
		}
		values := make([]int, spatialRank)
		for i := range values {
			values[i] = defaultValue
		}
		return values
	}
	values, err := toInts(r.params[name])
	if err != nil {
		r.fail(err, name)
		return nil
	}
	if len(values) != spatialRank {
		r.err = configErrorf(r.input, "parameter/rank mismatch: %q has %d values %v, but the input has %d spatial axes",
			name, len(values), values, spatialRank)
		return nil
	}
	slices.Reverse(values)
	return values
}

// toInt converts a scalar parameter value to an int.
//
// Strings are parsed as decimal integers, and floats are only accepted if they hold an integral value
// (YAML and JSON decoders may produce 3.0 for 3). Booleans and anything else are rejected.
func toInt(value any) (int, error) {
	switch v := value.(type) {
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, errors.Wrapf(err, "cannot parse %q as an integer", v)
		}
		return i, nil
	case bool:
		return 0, errors.Errorf("boolean %v is not an integer", v)
	case float32:
		return integralFloat(float64(v))
	case float64:
		return integralFloat(v)
	case uint:
		if uint64(v) > math.MaxInt {
			return 0, errors.Errorf("value %d overflows int", v)
		}
	case uint64:
		if v > math.MaxInt {
			return 0, errors.Errorf("value %d overflows int", v)
		}
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
	default:
		return 0, errors.Errorf("value %v of type %T is not an integer", value, value)
	}
	i, err := cast.ToIntE(value)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return i, nil
}

func integralFloat(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || f < math.MinInt || f >= math.MaxInt {
		return 0, errors.Errorf("value %v is not an integer", f)
	}
	return int(f), nil
}

// toInts converts a list parameter value to a new []int.
// Strings are split on commas and white spaces, slices (including []any) are converted element by
// element with toInt, and a scalar is taken as a list of one value.
func toInts(value any) ([]int, error) {
	if str, ok := value.(string); ok {
		fields := strings.FieldsFunc(str, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
		values := make([]int, 0, len(fields))
		for _, field := range fields {
			i, err := toInt(field)
			if err != nil {
				return nil, err
			}
			values = append(values, i)
		}
		return values, nil
	}
	list := reflect.ValueOf(value)
	if list.Kind() != reflect.Slice && list.Kind() != reflect.Array {
		i, err := toInt(value)
		if err != nil {
			return nil, err
		}
		return []int{i}, nil
	}
	values := make([]int, list.Len())
	for ii := range values {
		var err error
		values[ii], err = toInt(list.Index(ii).Interface())
		if err != nil {
			return nil, errors.WithMessagef(err, "element #%d", ii)
		}
	}
	return values, nil
}
