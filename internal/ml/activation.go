package ml

type IActivationFn interface {
	Sigma(x float64) float64
	SigmaPrime(x float64) float64
}

type ReLuActivation struct{}

func (*ReLuActivation) Sigma(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func (*ReLuActivation) SigmaPrime(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}
