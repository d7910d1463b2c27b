// convshape prints the output shapes of convolution layers.
//
// It either takes a single layer from the command line flags:
//
//	convshape -input=1,3,224,224 -kernel=7,7 -strides=2,2 -pads_begin=3,3 -pads_end=3,3 -output=64
//
// Or a YAML network description (see shapeprop.ParseNetwork) with -network:
//
//	convshape -network=resnet_stem.yaml -parallelism=4
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/gomlx/convshape/shapeprop"
	"k8s.io/klog/v2"
)

var (
	flagNetwork     = flag.String("network", "", "YAML file with the network description. If set, the single layer flags are ignored.")
	flagParallelism = flag.Int("parallelism", runtime.NumCPU(), "Maximum number of layers inferred in parallel: 0 disables parallelism and -1 means unlimited.")

	flagLayerType = flag.String("type", "Convolution", "Layer type of the single layer.")
	flagInput     = flag.String("input", "", "Input dimensions of the single layer as [batch, channels, spatial...], e.g. \"1,3,224,224\".")
	flagDType     = flag.String("dtype", "float32", "DType of the input of the single layer.")
	flagKernel    = flag.String("kernel", "", "Kernel dimensions, outermost spatial axis first, e.g. \"3,3\".")
	flagStrides   = flag.String("strides", "", "Strides, outermost spatial axis first. Defaults to 1 for every axis.")
	flagDilations = flag.String("dilations", "", "Dilations, outermost spatial axis first. Defaults to 1 for every axis.")
	flagPadsBegin = flag.String("pads_begin", "", "Padding at the start of each spatial axis, for explicit padding.")
	flagPadsEnd   = flag.String("pads_end", "", "Padding at the end of each spatial axis, for explicit padding.")
	flagAutoPad   = flag.String("auto_pad", "", "Padding mode: \"valid\", \"same_upper\" or \"same_lower\". Anything else means explicit padding.")
	flagOutput    = flag.Int("output", 0, "Number of output channels. If 0, the number of input channels is used.")
	flagGroup     = flag.Int("group", 1, "Number of groups the channels are split into.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Errorf("Unexpected arguments %q. See 'convshape -help'.", flag.Args())
		os.Exit(1)
	}

	var (
		net   *shapeprop.Network
		err   error
		title string
	)
	if *flagNetwork != "" {
		net, err = shapeprop.LoadNetwork(*flagNetwork)
		title = *flagNetwork
	} else {
		net, err = singleLayerNetwork(layerFlagsFromCommandLine())
		title = *flagLayerType
	}
	if err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}

	result, err := shapeprop.Propagate(context.Background(), net, shapeprop.WithParallelism(*flagParallelism))
	if err != nil {
		klog.Errorf("Shape inference failed: %v", err)
		klog.V(1).Infof("%+v", err)
		os.Exit(1)
	}
	fmt.Println(titleStyle.Render(title))
	fmt.Println(report(net, result).Render())
}
