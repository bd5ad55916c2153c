package searcher

import (
	"fmt"
	"math"

	"github.com/edoakes/tunekit/pkg/model"
	"github.com/edoakes/tunekit/pkg/prand"
)

func sampleAll(h model.Hyperparameters, rand *prand.State) model.HParamSample {
	results := make(model.HParamSample)
	h.Each(func(name string, param model.Hyperparameter) {
		results[name] = sampleOne(param, rand)
	})
	return results
}

func sampleOne(h model.Hyperparameter, rand *prand.State) interface{} {
	switch {
	case h.ConstHyperparameter != nil:
		return h.ConstHyperparameter.Val
	case h.IntHyperparameter != nil:
		p := h.IntHyperparameter
		return p.Minval + rand.Intn(p.Maxval-p.Minval)
	case h.DoubleHyperparameter != nil:
		p := h.DoubleHyperparameter
		return rand.Uniform(p.Minval, p.Maxval)
	case h.LogHyperparameter != nil:
		p := h.LogHyperparameter
		return math.Pow(p.Base, rand.Uniform(p.Minval, p.Maxval))
	case h.CategoricalHyperparameter != nil:
		p := h.CategoricalHyperparameter
		return p.Vals[rand.Intn(len(p.Vals))]
	case h.NestedHyperparameter != nil:
		return map[string]interface{}(sampleAll(h.NestedHyperparameter.Vals, rand))
	default:
		panic(fmt.Sprintf("unexpected hyperparameter type: %+v", h))
	}
}
