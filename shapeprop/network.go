// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeprop

import (
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/convshape/shapeinference"
	"github.com/gomlx/convshape/types/shapes"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Network is the description of a network for shape propagation: the shapes of its inputs and its layers.
type Network struct {
	// Inputs are the shapes of the network inputs, by name.
	Inputs map[string]shapes.Shape

	// Layers can be given in any order, Propagate sorts them topologically.
	Layers []*Layer
}

// Layer is one layer of a Network.
type Layer struct {
	Name string
	Type string

	// Inputs refer to network inputs or to outputs of other layers, either as "name" (the first output)
	// or as "name:port".
	Inputs []string

	Params shapeinference.Params

	// Blobs are the shapes of the auxiliary tensors of the layer (weights, biases), by name.
	Blobs map[string]shapes.Shape
}

// networkConfig is the YAML representation of a Network.
type networkConfig struct {
	DType  string           `yaml:"dtype"`
	Inputs map[string][]int `yaml:"inputs"`
	Layers []layerConfig    `yaml:"layers"`
}

type layerConfig struct {
	Name   string           `yaml:"name"`
	Type   string           `yaml:"type"`
	Inputs []string         `yaml:"inputs"`
	Params map[string]any   `yaml:"params"`
	Blobs  map[string][]int `yaml:"blobs"`
}

// DefaultDType is used for the inputs of a network description that doesn't set "dtype".
var DefaultDType = dtypes.Float32

// ParseDType returns the dtype for the given name or alias, e.g. "Float32", "float32" or "f32".
func ParseDType(name string) (dtypes.DType, error) {
	name = strings.TrimSpace(name)
	dtype, err := dtypes.DTypeString(name)
	if err != nil {
		var found bool
		dtype, found = dtypes.MapOfNames[name]
		if !found {
			return dtypes.InvalidDType, errors.Errorf("unknown dtype %q", name)
		}
	}
	if dtype == dtypes.InvalidDType {
		return dtypes.InvalidDType, errors.Errorf("invalid dtype %q", name)
	}
	return dtype, nil
}

// ParseDimensions parses a list of dimensions separated by commas, spaces or "x", e.g. "1,3,224,224" or "1x3x224x224".
// It doesn't check that they are positive, see shapes.FromDimensions.
func ParseDimensions(text string) ([]int, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ' ' || r == 'x' })
	if len(fields) == 0 {
		return nil, errors.Errorf("no dimensions in %q", text)
	}
	dims := make([]int, 0, len(fields))
	for _, field := range fields {
		dim, err := strconv.Atoi(field)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid dimension %q in %q", field, text)
		}
		dims = append(dims, dim)
	}
	return dims, nil
}

// LoadNetwork reads a YAML network description from the file in path. See ParseNetwork.
func LoadNetwork(path string) (*Network, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read network description")
	}
	net, err := ParseNetwork(contents)
	if err != nil {
		return nil, errors.WithMessagef(err, "network description in %q", path)
	}
	return net, nil
}

// ParseNetwork parses a YAML network description. Example:
//
//	dtype: float32
//	inputs:
//	  image: [1, 3, 224, 224]
//	layers:
//	  - name: conv1
//	    type: Convolution
//	    inputs: [image]
//	    params: {kernel: "7,7", strides: "2,2", pads_begin: "3,3", pads_end: "3,3", output: 64}
//	  - name: conv2
//	    type: Convolution
//	    inputs: [conv1]
//	    params: {kernel: [3, 3], auto_pad: same_upper}
//	    blobs:
//	      weights: [128, 64, 3, 3]
//
// The dtype defaults to DefaultDType, and blobs take the dtype of the network.
func ParseNetwork(contents []byte) (*Network, error) {
	var config networkConfig
	if err := yaml.Unmarshal(contents, &config); err != nil {
		return nil, errors.Wrapf(err, "failed to parse network description")
	}
	return config.toNetwork()
}

func (c *networkConfig) toNetwork() (net *Network, err error) {
	dtype := DefaultDType
	if c.DType != "" {
		dtype, err = ParseDType(c.DType)
		if err != nil {
			return nil, err
		}
	}
	if len(c.Inputs) == 0 {
		return nil, errors.New("network description has no inputs")
	}
	net = &Network{Inputs: make(map[string]shapes.Shape, len(c.Inputs))}
	for name, dims := range c.Inputs {
		net.Inputs[name], err = shapes.FromDimensions(dtype, dims)
		if err != nil {
			return nil, errors.WithMessagef(err, "input %q", name)
		}
	}
	for _, lc := range c.Layers {
		layer := &Layer{
			Name:   lc.Name,
			Type:   lc.Type,
			Inputs: lc.Inputs,
			Params: shapeinference.Params(lc.Params),
		}
		if len(lc.Blobs) > 0 {
			layer.Blobs = make(map[string]shapes.Shape, len(lc.Blobs))
			for blobName, dims := range lc.Blobs {
				layer.Blobs[blobName], err = shapes.FromDimensions(dtype, dims)
				if err != nil {
					return nil, errors.WithMessagef(err, "layer %q blob %q", lc.Name, blobName)
				}
			}
		}
		net.Layers = append(net.Layers, layer)
	}
	return net, nil
}

// MakeNetwork is a convenience constructor for tests and small tools: it takes the input shapes as
// "name" -> dimensions with DefaultDType, and panics on invalid dimensions.
func MakeNetwork(inputs map[string][]int, layers ...*Layer) *Network {
	net := &Network{Inputs: make(map[string]shapes.Shape, len(inputs)), Layers: layers}
	for name, dims := range inputs {
		shape, err := shapes.FromDimensions(DefaultDType, dims)
		if err != nil {
			exceptions.Panicf("MakeNetwork: input %q: %v", name, err)
		}
		net.Inputs[name] = shape
	}
	return net
}
