package main

import (
	"github.com/gomlx/convshape/shapeinference"
	"github.com/gomlx/convshape/shapeprop"
	"github.com/gomlx/convshape/types/shapes"
	"github.com/pkg/errors"
)

// Name of the input and of the layer of the network built from the command line flags.
const (
	singleInputName = "input"
	singleLayerName = "layer"
)

// layerFlags are the values of the flags that describe a single layer.
type layerFlags struct {
	LayerType, Input, DType     string
	Kernel, Strides, Dilations  string
	PadsBegin, PadsEnd, AutoPad string
	Output, Group               int
}

func layerFlagsFromCommandLine() layerFlags {
	return layerFlags{
		LayerType: *flagLayerType,
		Input:     *flagInput,
		DType:     *flagDType,
		Kernel:    *flagKernel,
		Strides:   *flagStrides,
		Dilations: *flagDilations,
		PadsBegin: *flagPadsBegin,
		PadsEnd:   *flagPadsEnd,
		AutoPad:   *flagAutoPad,
		Output:    *flagOutput,
		Group:     *flagGroup,
	}
}

// singleLayerNetwork builds a network with one input and one layer from the flags.
// Parameters not given are left to the layer defaults.
func singleLayerNetwork(f layerFlags) (*shapeprop.Network, error) {
	if f.Input == "" {
		return nil, errors.New("missing -input dimensions, or a -network description")
	}
	dims, err := shapeprop.ParseDimensions(f.Input)
	if err != nil {
		return nil, errors.WithMessage(err, "-input")
	}
	dtype, err := shapeprop.ParseDType(f.DType)
	if err != nil {
		return nil, errors.WithMessage(err, "-dtype")
	}
	input, err := shapes.FromDimensions(dtype, dims)
	if err != nil {
		return nil, errors.WithMessage(err, "-input")
	}

	params := make(shapeinference.Params)
	for key, value := range map[string]string{
		shapeinference.ParamKernel:    f.Kernel,
		shapeinference.ParamStrides:   f.Strides,
		shapeinference.ParamDilations: f.Dilations,
		shapeinference.ParamPadsBegin: f.PadsBegin,
		shapeinference.ParamPadsEnd:   f.PadsEnd,
		shapeinference.ParamAutoPad:   f.AutoPad,
	} {
		if value != "" {
			params[key] = value
		}
	}
	output := f.Output
	if output == 0 && input.Rank() >= 2 {
		output = input.Dimensions[1]
	}
	params[shapeinference.ParamOutput] = output
	params[shapeinference.ParamGroup] = f.Group

	layer := &shapeprop.Layer{
		Name:   singleLayerName,
		Type:   f.LayerType,
		Inputs: []string{singleInputName},
		Params: params,
	}
	if f.LayerType == shapeinference.LayerDeformableConvolution {
		// The offsets don't affect the output shape.
		layer.Inputs = append(layer.Inputs, singleInputName)
	}
	return &shapeprop.Network{
		Inputs: map[string]shapes.Shape{singleInputName: input},
		Layers: []*shapeprop.Layer{layer},
	}, nil
}
