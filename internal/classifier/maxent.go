package classifier

// Maximum-entropy (multinomial softmax regression) learner: the linear
// candidate in the ensemble-select strategy. Trained with full-batch
// gradient descent and a small L2 penalty; deterministic for a given
// sample order.

const maxEntL2 = 1e-4

type maxEntModel struct {
	Classes int         `json:"classes"`
	Weights [][]float64 `json:"weights"` // [class][feature], bias in the last slot
}

func (m *maxEntModel) score(x []float64) []float64 {
	scores := make([]float64, m.Classes)
	for k, w := range m.Weights {
		s := w[len(w)-1] // bias
		for j, v := range x {
			if j < len(w)-1 {
				s += w[j] * v
			}
		}
		scores[k] = s
	}
	return scores
}

func fitMaxEnt(x [][]float64, y []int, classes int, cfg Config) *maxEntModel {
	n := len(x)
	dims := len(x[0])
	epochs := cfg.Iterations
	if epochs <= 0 {
		epochs = 300
	}
	lr := cfg.LearningRate
	if lr <= 0 {
		lr = 0.5
	}

	model := &maxEntModel{Classes: classes, Weights: make([][]float64, classes)}
	for k := range model.Weights {
		model.Weights[k] = make([]float64, dims+1)
	}

	grad := make([][]float64, classes)
	for k := range grad {
		grad[k] = make([]float64, dims+1)
	}
	probs := make([]float64, classes)

	for epoch := 0; epoch < epochs; epoch++ {
		for k := range grad {
			for j := range grad[k] {
				grad[k][j] = 0
			}
		}

		for i := range x {
			softmaxInto(model.score(x[i]), probs)
			for k := 0; k < classes; k++ {
				coef := probs[k]
				if y[i] == k {
					coef -= 1
				}
				for j, v := range x[i] {
					grad[k][j] += coef * v
				}
				grad[k][dims] += coef
			}
		}

		scale := lr / float64(n)
		for k := range model.Weights {
			for j := range model.Weights[k] {
				model.Weights[k][j] -= scale*grad[k][j] + lr*maxEntL2*model.Weights[k][j]
			}
		}
	}
	return model
}
