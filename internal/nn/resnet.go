package nn

import (
	"math/rand"

	"github.com/pkg/errors"
)

type Family string

const (
	ResNet18 Family = "resnet18"
	ResNet50 Family = "resnet50"
)

const (
	DefaultWidth     = 16
	DefaultInputSize = 64
	DefaultChannels  = 3
	minInputSize     = 32
)

var ErrUnknownFamily = errors.New("unknown model family")

func ParseFamily(s string) (Family, error) {
	switch Family(s) {
	case ResNet18, ResNet50:
		return Family(s), nil
	}
	return "", errors.Wrapf(ErrUnknownFamily, "%q (want %q or %q)", s, ResNet18, ResNet50)
}

// Architecture fully determines the shape of a model's parameters.
// Width is the channel count of the first stage (64 in the published ResNets).
type Architecture struct {
	Family    Family
	Classes   int
	InputSize int
	Width     int
	Channels  int
}

func (a Architecture) Validate() error {
	if _, err := ParseFamily(string(a.Family)); err != nil {
		return err
	}
	if a.Classes < 2 {
		return errors.Errorf("at least 2 classes are required, got %v", a.Classes)
	}
	if a.InputSize < minInputSize {
		return errors.Errorf("input size %v is smaller than %v", a.InputSize, minInputSize)
	}
	if a.Width < 1 || a.Channels < 1 {
		return errors.Errorf("bad width %v or channels %v", a.Width, a.Channels)
	}
	return nil
}

// NewModel builds a freshly initialized network: a 7×7/2 stem with 3×3/2 max
// pooling, four stages of residual blocks, global average pooling and a
// linear head with Arch.Classes outputs.
func NewModel(arch Architecture, rnd *rand.Rand) (*Model, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	var units = []Layer{
		NewConv2D(arch.Channels, arch.Width, 7, 2, 3).InitWeightsHe(rnd),
		NewReLU(),
		NewMaxPool2D(3, 2, 1),
	}

	var stageBlocks []int
	var expansion int
	switch arch.Family {
	case ResNet18:
		stageBlocks = []int{2, 2, 2, 2}
		expansion = 1
	case ResNet50:
		stageBlocks = []int{3, 4, 6, 3}
		expansion = bottleneckExpansion
	}

	var inC = arch.Width
	for stage, blocks := range stageBlocks {
		var midC = arch.Width << stage
		for block := 0; block < blocks; block++ {
			var stride = 1
			if stage > 0 && block == 0 {
				stride = 2
			}
			if arch.Family == ResNet18 {
				units = append(units, NewBasicBlock(rnd, inC, midC, stride))
			} else {
				units = append(units, NewBottleneck(rnd, inC, midC, stride))
			}
			inC = midC * expansion
		}
	}

	units = append(units,
		NewGlobalAvgPool(),
		NewLinear(inC, arch.Classes).InitWeights(rnd))

	return newModel(arch, units), nil
}
