// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"fmt"
	"testing"

	"github.com/gomlx/convshape/types/shapes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestErrors(t *testing.T) {
	input := S(F32, 1, 3, 7, 7)
	impl, found := Get(LayerConvolution)
	require.True(t, found)

	_, err := impl.InferShapes([]shapes.Shape{input},
		Params{"kernel": "9,9", "pads_begin": "0,0", "pads_end": "0,0", "output": 2}, nil, nil)
	require.Error(t, err)
	var shapeErr *ShapeComputationError
	require.True(t, errors.As(err, &shapeErr))
	require.Equal(t, LayerConvolution, shapeErr.LayerType)
	require.True(t, input.Equal(shapeErr.Input))
	require.False(t, IsConfigurationError(err))

	// The offending input shape is printed in the message.
	require.Contains(t, err.Error(), input.String())
	require.Contains(t, err.Error(), "Convolution layer")
	require.Contains(t, fmt.Sprintf("%v", err), "negative output extent")
	require.Contains(t, fmt.Sprintf("%q", err), "negative output extent")

	// "%+v" includes where the error was created.
	require.Contains(t, fmt.Sprintf("%+v", err), "ConvOp")

	// Wrapping preserves the error kind.
	wrapped := errors.Wrap(err, "layer conv1")
	require.True(t, IsShapeComputationError(wrapped))

	_, err = impl.InferShapes(nil, Params{}, nil, nil)
	var configErr *ConfigurationError
	require.True(t, errors.As(err, &configErr))
	require.False(t, configErr.Input.Ok())
	require.NotContains(t, err.Error(), "input shape")
	require.NotNil(t, errors.Unwrap(configErr))
}
