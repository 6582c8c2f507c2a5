package mlmodel

import "math"

// Training hyperparameters. Batch gradient descent on standardized
// features converges well within these bounds for the feature count
// involved.
const (
	learningRate = 0.1
	epochs       = 300
	l2Penalty    = 0.01
)

// logisticModel is a binary logistic regression classifier trained with
// batch gradient descent
type logisticModel struct {
	weights []float64
	bias    float64
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// fitLogistic trains a logistic regression on standardized features.
// labels must contain 0/1 values aligned with the matrix rows.
func fitLogistic(matrix [][]float64, labels []float64) *logisticModel {
	if len(matrix) == 0 {
		return &logisticModel{}
	}

	cols := len(matrix[0])
	m := &logisticModel{weights: make([]float64, cols)}
	n := float64(len(matrix))

	for epoch := 0; epoch < epochs; epoch++ {
		gradW := make([]float64, cols)
		var gradB float64

		for i, row := range matrix {
			err := m.predictProba(row) - labels[i]
			for j, v := range row {
				gradW[j] += err * v
			}
			gradB += err
		}

		for j := range m.weights {
			m.weights[j] -= learningRate * (gradW[j]/n + l2Penalty*m.weights[j])
		}
		m.bias -= learningRate * gradB / n
	}

	return m
}

// predictProba returns the duplicate probability for one standardized
// feature vector
func (m *logisticModel) predictProba(features []float64) float64 {
	z := m.bias
	for j, w := range m.weights {
		if j < len(features) {
			z += w * features[j]
		}
	}
	return sigmoid(z)
}

// accuracy computes the training accuracy at a 0.5 decision boundary
func (m *logisticModel) accuracy(matrix [][]float64, labels []float64) float64 {
	if len(matrix) == 0 {
		return 0
	}

	correct := 0
	for i, row := range matrix {
		predicted := 0.0
		if m.predictProba(row) > 0.5 {
			predicted = 1
		}
		if predicted == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(matrix))
}

// statisticalDetector scores a posting by its largest per-feature
// z-score against the training distribution. It needs no labels and
// backs up the classifier on feature patterns the labels never covered.
type statisticalDetector struct {
	means []float64
	stds  []float64
}

// fitStatistical computes the per-feature distribution of the raw
// (unstandardized) training matrix
func fitStatistical(matrix [][]float64) *statisticalDetector {
	s := fitStandardizer(matrix)
	return &statisticalDetector{means: s.means, stds: s.stds}
}

// anomalyProba maps the largest absolute z-score across features onto
// a 0-1 scale. A z of 3 or more saturates at 1.
func (d *statisticalDetector) anomalyProba(features []float64) float64 {
	if len(d.means) == 0 {
		return 0
	}

	var maxZ float64
	for j, v := range features {
		if j >= len(d.means) {
			break
		}
		z := math.Abs((v - d.means[j]) / d.stds[j])
		if z > maxZ {
			maxZ = z
		}
	}

	return math.Min(maxZ/3, 1)
}

// Ensemble blend weights: the supervised classifier dominates, the
// statistical detector contributes a label-free signal
const (
	logisticWeight    = 0.7
	statisticalWeight = 0.3
)

func ensembleProba(logisticProba, statisticalProba float64) float64 {
	return logisticWeight*logisticProba + statisticalWeight*statisticalProba
}
