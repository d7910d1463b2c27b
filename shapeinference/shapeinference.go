// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeinference calculates the output shape of convolution-family layers and validates their
// parameters, without running any kernel.
//
// It is the per-layer unit of a graph-level shape propagation (see package shapeprop): given the shapes
// of the inputs of a layer and its untyped parameters, it returns the shape of its output, so memory can
// be planned and downstream layers validated before anything executes.
//
// The work is split in two steps:
//
//   - ParseConvParams resolves and type-checks the parameters into a ConvParams, returning a
//     ConfigurationError if they are malformed or don't match the input rank.
//   - ConvOp applies the output-dimension formula of the selected PadMode, returning a
//     ShapeComputationError if some output axis would not have a positive dimension.
//
// Layer types are registered by name (see Register and Get), and each registered Impl appends exactly one
// shape per output to the caller's results, or nothing at all on error.
//
// Everything here is a pure function of its inputs, and safe to call concurrently.
package shapeinference

import (
	"github.com/gomlx/convshape/types/shapes"
)

// Params holds the untyped parameters of a layer, keyed by name.
//
// Integer lists can be given as text ("3,3" or "3 3"), as Go slices of any integer type or as
// []any (as decoded from YAML or JSON). Scalars can be given as text or as numbers.
type Params map[string]any

// Impl infers the output shapes of one layer type.
type Impl interface {
	// InferShapes appends the shapes of the outputs of the layer to outShapes and returns the
	// extended slice.
	//
	// inputs are the shapes of the inputs of the layer, in order. blobs are the shapes of the
	// auxiliary tensors (weights, biases) keyed by name, and may be nil.
	//
	// On error, outShapes is returned unchanged.
	InferShapes(inputs []shapes.Shape, params Params, blobs map[string]shapes.Shape, outShapes []shapes.Shape) ([]shapes.Shape, error)
}
