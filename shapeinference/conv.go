// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"math"

	"github.com/gomlx/convshape/types/shapes"
)

// EffectiveKernelDim returns the span covered by a kernel of size kernelDim along one axis, once dilation is applied.
//
// A dilation of 0 is taken as no dilation.
func EffectiveKernelDim(kernelDim, dilation int) int {
	if dilation > 0 {
		return (kernelDim-1)*dilation + 1
	}
	return kernelDim
}

// ConvOutputDim returns the output dimension of one spatial axis of a convolution, for the given padding mode.
//
// All modes are computed with integer arithmetic, rounding as follows:
//
//   - PadValid: ceil((inputDim - effectiveKernelDim + 1) / stride)
//   - PadSameUpper: ceil(inputDim / stride)
//   - PadSameLower: floor(inputDim / stride)
//   - PadExplicit: floor((inputDim + padBegin + padEnd - effectiveKernelDim) / stride) + 1
//
// The result can be zero or negative if the kernel doesn't fit: it is up to the caller to check it.
// stride must be positive, and inputDim+padBegin+padEnd must fit in an int.
func ConvOutputDim(mode PadMode, inputDim, effectiveKernelDim, stride, padBegin, padEnd int) int {
	switch mode {
	case PadValid:
		return ceilDiv(inputDim-effectiveKernelDim+1, stride)
	case PadSameUpper:
		return ceilDiv(inputDim, stride)
	case PadSameLower:
		return floorDiv(inputDim, stride)
	default:
		return floorDiv(inputDim+padBegin+padEnd-effectiveKernelDim, stride) + 1
	}
}

// floorDiv returns floor(a/b) for b > 0, also for negative a.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}

// ceilDiv returns ceil(a/b) for b > 0, also for negative a.
func ceilDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a > 0 {
		q++
	}
	return q
}

// ConvOp returns the output shape of a convolution applied to input with the given parameters.
//
// The output shape is [batch, p.OutputChannels, spatial...], with the batch dimension and the dtype taken from
// input, and the spatial axes in the same order as in the input.
//
// It returns a ConfigurationError if p is not valid for input, and a ShapeComputationError if the
// dimension of some spatial output axis is not positive or can't be represented in an int.
// It never modifies input or p.
func ConvOp(input shapes.Shape, p *ConvParams) (shapes.Shape, error) {
	if p == nil {
		return shapes.Invalid(), configErrorf(input, "missing convolution parameters")
	}
	if err := p.Validate(input); err != nil {
		return shapes.Invalid(), err
	}
	rank := input.Rank()
	spatialRank := rank - 2

	// Output dimensions, innermost axis first like the parameters.
	outputDims := make([]int, spatialRank)
	for i := range outputDims {
		inputDim := input.Dimensions[rank-1-i]
		if dilation := p.Dilations[i]; dilation > 0 && p.Kernel[i]-1 > (math.MaxInt-1)/dilation {
			return shapes.Invalid(), shapeErrorf(input, "effective kernel for axis %d overflows int (kernel=%d, dilation=%d)",
				rank-1-i, p.Kernel[i], dilation)
		}
		if p.AutoPad == PadExplicit && p.PadsBegin[i] > math.MaxInt-inputDim-p.PadsEnd[i] {
			return shapes.Invalid(), shapeErrorf(input, "padded dimension for axis %d overflows int (dim=%d, pads=[%d, %d])",
				rank-1-i, inputDim, p.PadsBegin[i], p.PadsEnd[i])
		}
		kernelDim := EffectiveKernelDim(p.Kernel[i], p.Dilations[i])
		outputDims[i] = ConvOutputDim(p.AutoPad, inputDim, kernelDim, p.Strides[i], p.PadsBegin[i], p.PadsEnd[i])
	}
	for i, dim := range outputDims {
		if dim < 0 {
			return shapes.Invalid(), shapeErrorf(input, "negative output extent %d for axis %d with %s padding "+
				"(kernel=%d, dilation=%d, stride=%d, pads=[%d, %d])",
				dim, rank-1-i, p.AutoPad, p.Kernel[i], p.Dilations[i], p.Strides[i], p.PadsBegin[i], p.PadsEnd[i])
		}
	}
	for i, dim := range outputDims {
		if dim == 0 {
			return shapes.Invalid(), shapeErrorf(input, "zero output extent for axis %d with %s padding "+
				"(kernel=%d, dilation=%d, stride=%d, pads=[%d, %d])",
				rank-1-i, p.AutoPad, p.Kernel[i], p.Dilations[i], p.Strides[i], p.PadsBegin[i], p.PadsEnd[i])
		}
	}

	output := shapes.Shape{DType: input.DType, Dimensions: make([]int, 0, rank)}
	output.Dimensions = append(output.Dimensions, input.Dimensions[0], p.OutputChannels)
	for i := spatialRank - 1; i >= 0; i-- {
		output.Dimensions = append(output.Dimensions, outputDims[i])
	}
	return output, nil
}

// ConvShapeProp implements Impl for the convolution-family layer types, that share the same output shape formula.
//
// The first input is the data tensor laid out as [batch, channels, spatial...]; the following inputs
// (offsets, weights, bias) don't affect the output shape.
type ConvShapeProp struct {
	layerType            string
	minInputs, maxInputs int
}

var _ Impl = (*ConvShapeProp)(nil)

// NewConvShapeProp returns the shape inference for a convolution layer type that takes between minInputs
// and maxInputs inputs.
func NewConvShapeProp(layerType string, minInputs, maxInputs int) *ConvShapeProp {
	return &ConvShapeProp{layerType: layerType, minInputs: minInputs, maxInputs: maxInputs}
}

// Type returns the layer type name.
func (c *ConvShapeProp) Type() string { return c.layerType }

// InferShapes implements Impl. It appends one output shape.
func (c *ConvShapeProp) InferShapes(inputs []shapes.Shape, params Params, blobs map[string]shapes.Shape,
	outShapes []shapes.Shape) ([]shapes.Shape, error) {
	if len(inputs) > 0 && (len(inputs) < c.minInputs || len(inputs) > c.maxInputs) {
		err := configErrorf(inputs[0], "expected %d to %d inputs, got %d", c.minInputs, c.maxInputs, len(inputs))
		return outShapes, withLayerType(err, c.layerType)
	}
	p, err := ParseConvParams(inputs, params, blobs)
	if err != nil {
		return outShapes, withLayerType(err, c.layerType)
	}
	output, err := ConvOp(inputs[0], p)
	if err != nil {
		return outShapes, withLayerType(err, c.layerType)
	}
	return append(outShapes, output), nil
}
