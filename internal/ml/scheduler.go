package ml

const (
	DefaultPlateauFactor   = 0.1
	DefaultPlateauPatience = 3
	plateauThreshold       = 1e-4
)

// PlateauScheduler lowers the learning rate when a minimized metric stops
// improving for more than Patience consecutive steps.
type PlateauScheduler struct {
	Factor    float64
	Patience  int
	best      float64
	hasBest   bool
	badEpochs int
}

func NewPlateauScheduler(factor float64, patience int) *PlateauScheduler {
	return &PlateauScheduler{
		Factor:   factor,
		Patience: patience,
	}
}

// Step reports whether the learning rate of opt was reduced.
func (s *PlateauScheduler) Step(metric float64, opt *Adam) bool {
	if !s.hasBest || metric < s.best*(1-plateauThreshold) {
		s.best = metric
		s.hasBest = true
		s.badEpochs = 0
		return false
	}
	s.badEpochs++
	if s.badEpochs > s.Patience {
		opt.LearningRate *= s.Factor
		s.badEpochs = 0
		return true
	}
	return false
}
