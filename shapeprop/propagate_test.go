// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeprop

import (
	"context"
	"fmt"
	"testing"

	"github.com/gomlx/convshape/shapeinference"
	"github.com/gomlx/convshape/types/shapes"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S creates a shape with the DefaultDType.
func S(dims ...int) shapes.Shape { return shapes.Make(DefaultDType, dims...) }

func conv(name string, inputs []string, params shapeinference.Params) *Layer {
	return &Layer{Name: name, Type: shapeinference.LayerConvolution, Inputs: inputs, Params: params}
}

// panickingImpl is a registered layer type that always panics.
type panickingImpl struct{}

func (panickingImpl) InferShapes(_ []shapes.Shape, _ shapeinference.Params, _ map[string]shapes.Shape, _ []shapes.Shape) ([]shapes.Shape, error) {
	exceptions.Panicf("not implemented")
	return nil, nil
}

func init() {
	shapeinference.Register("TestPanicking", panickingImpl{})
}

func TestPropagate(t *testing.T) {
	net, err := ParseNetwork([]byte(stemYAML))
	require.NoError(t, err)
	for _, parallelism := range []int{0, 1, 4, -1} {
		t.Run(fmt.Sprintf("parallelism=%d", parallelism), func(t *testing.T) {
			result, err := Propagate(context.Background(), net, WithParallelism(parallelism))
			require.NoError(t, err)
			require.Equal(t, []string{"conv1", "conv2"}, result.Order)
			require.Equal(t, 2, result.Waves)
			// (224 + 6 - 7) / 2 + 1 = 112
			assert.Equal(t, []shapes.Shape{shapes.Make(dtypes.Float16, 1, 64, 112, 112)}, result.Shapes["conv1"])
			// ceil(112 / 2) = 56, output channels from the weights blob.
			assert.Equal(t, []shapes.Shape{shapes.Make(dtypes.Float16, 1, 128, 56, 56)}, result.Shapes["conv2"])
		})
	}
}

func TestPropagateWaves(t *testing.T) {
	// Two branches from the same input, joined by a deformable convolution using the second as offsets.
	net := MakeNetwork(map[string][]int{"x": {2, 8, 16, 16}},
		&Layer{Name: "deform", Type: shapeinference.LayerDeformableConvolution, Inputs: []string{"branch_a", "branch_b:0"},
			Params: shapeinference.Params{"kernel": "3,3", "auto_pad": "same_upper", "output": 4}},
		conv("branch_b", []string{"x"}, shapeinference.Params{"kernel": "3,3", "auto_pad": "same_lower", "output": 18}),
		conv("branch_a", []string{"x"}, shapeinference.Params{"kernel": "3,3", "strides": "2,2",
			"pads_begin": "1,1", "pads_end": "1,1", "output": 16}),
	)
	result, err := Propagate(context.Background(), net, WithParallelism(2))
	require.NoError(t, err)
	require.Equal(t, 2, result.Waves)
	require.Equal(t, []string{"branch_a", "branch_b", "deform"}, result.Order)
	assert.True(t, result.Shapes["branch_a"][0].Equal(S(2, 16, 8, 8)))
	assert.True(t, result.Shapes["branch_b"][0].Equal(S(2, 18, 16, 16)))
	assert.True(t, result.Shapes["deform"][0].Equal(S(2, 4, 8, 8)))
}

func TestPropagateErrors(t *testing.T) {
	input := map[string][]int{"x": {1, 3, 7, 7}}
	validParams := shapeinference.Params{"kernel": "3,3", "auto_pad": "valid", "output": 4}
	testCases := []struct {
		name          string
		net           *Network
		expectedError string
		check         func(t *testing.T, err error)
	}{
		{
			name:          "duplicate layer",
			net:           MakeNetwork(input, conv("c", []string{"x"}, validParams), conv("c", []string{"x"}, validParams)),
			expectedError: `duplicate layer name "c"`,
		},
		{
			name:          "layer named like an input",
			net:           MakeNetwork(input, conv("x", []string{"x"}, validParams)),
			expectedError: "also the name of a network input",
		},
		{
			name:          "unknown layer type",
			net:           MakeNetwork(input, &Layer{Name: "p", Type: "Pooling", Inputs: []string{"x"}}),
			expectedError: `unsupported type "Pooling"`,
		},
		{
			name:          "dangling reference",
			net:           MakeNetwork(input, conv("c", []string{"y"}, validParams)),
			expectedError: "unknown layer or network input",
		},
		{
			name:          "invalid port",
			net:           MakeNetwork(input, conv("c", []string{"x:a"}, validParams)),
			expectedError: "invalid port",
		},
		{
			name:          "port out of range",
			net:           MakeNetwork(input, conv("c1", []string{"x"}, validParams), conv("c2", []string{"c1:1"}, validParams)),
			expectedError: `layer "c1" has 1 output(s), port 1 requested`,
		},
		{
			name: "cycle",
			net: MakeNetwork(input, conv("c0", []string{"x"}, validParams),
				conv("c1", []string{"c2"}, validParams), conv("c2", []string{"c1"}, validParams)),
			expectedError: "cycle among layers [c1 c2]",
		},
		{
			name: "shape computation error keeps its type",
			net: MakeNetwork(input, conv("c1", []string{"x"}, validParams),
				conv("c2", []string{"c1"}, shapeinference.Params{"kernel": "7,7", "auto_pad": "valid", "output": 4})),
			expectedError: `layer "c2"`,
			check: func(t *testing.T, err error) {
				require.True(t, shapeinference.IsShapeComputationError(err))
				require.ErrorContains(t, err, "negative output extent")
			},
		},
		{
			name:          "configuration error keeps its type",
			net:           MakeNetwork(input, conv("c1", []string{"x"}, shapeinference.Params{"kernel": "3", "output": 4})),
			expectedError: "parameter/rank mismatch",
			check: func(t *testing.T, err error) {
				require.True(t, shapeinference.IsConfigurationError(err))
			},
		},
		{
			name:          "panic is converted to error",
			net:           MakeNetwork(input, &Layer{Name: "boom", Type: "TestPanicking", Inputs: []string{"x"}}),
			expectedError: `layer "boom" (TestPanicking) panicked`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Propagate(context.Background(), tc.net, WithParallelism(2))
			require.ErrorContains(t, err, tc.expectedError)
			if tc.check != nil {
				tc.check(t, err)
			}
		})
	}

	_, err := Propagate(context.Background(), nil)
	require.Error(t, err)
}

func TestPropagateCancelled(t *testing.T) {
	net := MakeNetwork(map[string][]int{"x": {1, 3, 7, 7}},
		conv("c", []string{"x"}, shapeinference.Params{"kernel": "3,3", "auto_pad": "valid", "output": 4}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Propagate(ctx, net)
	require.ErrorIs(t, err, context.Canceled)

	// Sanity check: the same network succeeds with a live context.
	result := must.M1(Propagate(context.Background(), net))
	require.True(t, result.Shapes["c"][0].Equal(S(1, 4, 5, 5)))
}

func TestSplitReference(t *testing.T) {
	testCases := []struct {
		ref           string
		name          string
		port          int
		expectedError string
	}{
		{ref: "conv1", name: "conv1"},
		{ref: "conv1:0", name: "conv1"},
		{ref: "split:2", name: "split", port: 2},
		{ref: ":1", expectedError: "empty name"},
		{ref: "conv1:-1", expectedError: "invalid port"},
		{ref: "conv1:a", expectedError: "invalid port"},
	}
	for _, tc := range testCases {
		t.Run(tc.ref, func(t *testing.T) {
			name, port, err := SplitReference(tc.ref)
			if tc.expectedError != "" {
				require.ErrorContains(t, err, tc.expectedError)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.name, name)
			require.Equal(t, tc.port, port)
		})
	}
}

func TestResultLookup(t *testing.T) {
	net := MakeNetwork(map[string][]int{"x": {1, 3, 7, 7}},
		conv("c", []string{"x:0"}, shapeinference.Params{"kernel": "3,3", "auto_pad": "valid", "output": 4}))
	result := must.M1(Propagate(context.Background(), net))
	require.True(t, must.M1(result.Lookup(net, "x")).Equal(S(1, 3, 7, 7)))
	require.True(t, must.M1(result.Lookup(net, "x:0")).Equal(S(1, 3, 7, 7)))
	require.True(t, must.M1(result.Lookup(net, "c:0")).Equal(S(1, 4, 5, 5)))
	_, err := result.Lookup(net, "x:1")
	require.ErrorContains(t, err, "only port 0")
	_, err = result.Lookup(net, "c:1")
	require.Error(t, err)
	_, err = result.Lookup(net, "missing")
	require.Error(t, err)
}
