// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeprop

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/convshape/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

const stemYAML = `
dtype: float16
inputs:
  image: [1, 3, 224, 224]
layers:
  - name: conv1
    type: Convolution
    inputs: [image]
    params: {kernel: "7,7", strides: "2,2", pads_begin: "3,3", pads_end: "3,3", output: 64}
  - name: conv2
    type: Convolution
    inputs: [conv1]
    params:
      kernel: [3, 3]
      strides: [2, 2]
      auto_pad: same_upper
    blobs:
      weights: [128, 64, 3, 3]
`

func TestParseNetwork(t *testing.T) {
	net, err := ParseNetwork([]byte(stemYAML))
	require.NoError(t, err)
	require.True(t, net.Inputs["image"].Equal(shapes.Make(dtypes.Float16, 1, 3, 224, 224)))
	require.Len(t, net.Layers, 2)

	conv2 := net.Layers[1]
	require.Equal(t, "conv2", conv2.Name)
	require.Equal(t, []string{"conv1"}, conv2.Inputs)
	require.Equal(t, "same_upper", conv2.Params["auto_pad"])
	require.True(t, conv2.Blobs["weights"].Equal(shapes.Make(dtypes.Float16, 128, 64, 3, 3)))

	_, err = ParseNetwork([]byte("inputs: {image: [1, 0, 3]}"))
	require.ErrorContains(t, err, `input "image"`)
	_, err = ParseNetwork([]byte("dtype: complex7\ninputs: {image: [1, 3, 3]}"))
	require.ErrorContains(t, err, "unknown dtype")
	_, err = ParseNetwork([]byte("layers: []"))
	require.ErrorContains(t, err, "no inputs")
	_, err = ParseNetwork([]byte("inputs: [[["))
	require.Error(t, err)
}

func TestLoadNetwork(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(stemYAML), 0o644))
	net := must.M1(LoadNetwork(path))
	require.Len(t, net.Layers, 2)

	_, err := LoadNetwork(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseHelpers(t *testing.T) {
	require.Equal(t, []int{1, 3, 7, 7}, must.M1(ParseDimensions("1,3,7,7")))
	require.Equal(t, []int{1, 3, 7, 7}, must.M1(ParseDimensions("1x3x7x7")))
	require.Equal(t, []int{1, 3, 7, 7}, must.M1(ParseDimensions("1, 3 7x7")))
	_, err := ParseDimensions("")
	require.Error(t, err)
	_, err = ParseDimensions("1,a")
	require.Error(t, err)

	require.Equal(t, dtypes.Float32, must.M1(ParseDType("Float32")))
	require.Equal(t, dtypes.BFloat16, must.M1(ParseDType("bfloat16")))
	require.Equal(t, dtypes.Float32, must.M1(ParseDType("f32")))
	require.Equal(t, dtypes.Int64, must.M1(ParseDType(" int64 ")))
	_, err = ParseDType("float8")
	require.ErrorContains(t, err, "unknown dtype")
	_, err = ParseDType("InvalidDType")
	require.ErrorContains(t, err, "invalid dtype")

	require.Panics(t, func() { MakeNetwork(map[string][]int{"x": {1, -1, 3}}) })
}
