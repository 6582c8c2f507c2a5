package mlmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"

	"gl-audit-service/internal/detector"
	"gl-audit-service/internal/models"
	auditerrors "gl-audit-service/pkg/errors"
	"gl-audit-service/pkg/logger"
)

// MinTrainingRecords is the minimum usable batch size for training.
// Smaller batches produce a SKIPPED result, never an error.
const MinTrainingRecords = 10

// predictionRiskScale converts a duplicate probability to the 0-25
// score band the ML layer contributes
const predictionRiskScale = 25

// TrainingStatus describes the outcome of a training request
type TrainingStatus string

const (
	TrainingCompleted TrainingStatus = "COMPLETED"
	TrainingSkipped   TrainingStatus = "SKIPPED"
	TrainingUnchanged TrainingStatus = "ALREADY_TRAINED"
	TrainingFailed    TrainingStatus = "FAILED"
)

// TrainingMetrics summarizes the fit quality of a training run
type TrainingMetrics struct {
	Accuracy     float64 `json:"accuracy"`
	PositiveRate float64 `json:"positive_rate"`
}

// TrainingState records what the model was trained on. DatasetID is a
// content hash of the ordered batch, so training is repeated only when
// the underlying data actually changes.
type TrainingState struct {
	DatasetID     string          `json:"dataset_id"`
	Trained       bool            `json:"trained"`
	SampleCount   int             `json:"sample_count"`
	PositiveCount int             `json:"positive_count"`
	FeatureNames  []string        `json:"feature_names"`
	Metrics       TrainingMetrics `json:"metrics"`
	TrainedAt     time.Time       `json:"trained_at"`
}

// TrainOptions controls a training request
type TrainOptions struct {
	// ForceRetrain trains even when the dataset identity matches the
	// previous run
	ForceRetrain bool
}

// TrainingResult is the outcome of one Train call
type TrainingResult struct {
	Status TrainingStatus `json:"status"`
	Reason string         `json:"reason,omitempty"`
	State  *TrainingState `json:"state,omitempty"`
}

// Prediction is the model output for one posting
type Prediction struct {
	PostingID            string  `json:"posting_id"`
	DuplicateProbability float64 `json:"duplicate_probability"`
	RiskScore            int     `json:"risk_score"`
	IsDuplicate          bool    `json:"is_duplicate"`
}

// DuplicateModel is the trainable duplicate classifier. It is safe for
// concurrent use; a failed retrain leaves the previous model intact.
type DuplicateModel struct {
	mu sync.Mutex

	logistic    *logisticModel
	statistical *statisticalDetector
	scaler      *standardizer
	state       TrainingState

	logger logger.Logger
}

// NewDuplicateModel creates an untrained model
func NewDuplicateModel(log logger.Logger) *DuplicateModel {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &DuplicateModel{
		logger: log.WithComponent("ml-model"),
	}
}

// DatasetID computes the content identity of an ordered batch: the
// hex SHA-256 over each posting's ID and normalized amount in order.
// Reordering or changing any record changes the identity.
func DatasetID(postings []*models.GLPosting) string {
	h := sha256.New()
	for _, p := range postings {
		fmt.Fprintf(h, "%s|%s\n", p.ID, p.Amount.String())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Train fits the model on the batch using the rule-based duplicate
// report as the label source: a posting is a positive example when it
// belongs to at least one duplicate group.
//
// Batches with fewer than MinTrainingRecords usable postings return a
// SKIPPED result. A batch whose dataset identity matches the previous
// successful run returns the existing state without retraining unless
// opts.ForceRetrain is set.
func (m *DuplicateModel) Train(postings []*models.GLPosting, report *detector.DuplicateReport, opts TrainOptions) (*TrainingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	usable := make([]*models.GLPosting, 0, len(postings))
	for _, p := range postings {
		if p.HasValidAmount() {
			usable = append(usable, p)
		}
	}

	if len(usable) < MinTrainingRecords {
		reason := auditerrors.InsufficientDataError(len(usable), MinTrainingRecords).Message
		m.logger.WithField("usable", len(usable)).Info("Training skipped: insufficient data")
		return &TrainingResult{Status: TrainingSkipped, Reason: reason}, nil
	}

	datasetID := DatasetID(usable)
	if m.state.Trained && m.state.DatasetID == datasetID && !opts.ForceRetrain {
		m.logger.WithField("dataset_id", datasetID).Debug("Training skipped: dataset unchanged")
		state := m.state
		return &TrainingResult{
			Status: TrainingUnchanged,
			Reason: "model already trained on this dataset",
			State:  &state,
		}, nil
	}

	op := logger.NewOperationLogger("model_training", m.logger).
		WithField("samples", len(usable))

	duplicateIDs := map[string]struct{}{}
	if report != nil {
		duplicateIDs = report.PostingIDSet()
	}

	labels := make([]float64, len(usable))
	positives := 0
	for i, p := range usable {
		if _, ok := duplicateIDs[p.ID]; ok {
			labels[i] = 1
			positives++
		}
	}

	op.Step("feature_extraction")
	raw := extractMatrix(usable)
	scaler := fitStandardizer(raw)
	scaled := scaler.transformMatrix(raw)

	op.Step("model_fitting")
	logistic := fitLogistic(scaled, labels)
	statistical := fitStatistical(raw)

	accuracy := logistic.accuracy(scaled, labels)
	if math.IsNaN(accuracy) {
		err := auditerrors.TrainingError("model fitting",
			fmt.Errorf("non-finite accuracy on %d samples", len(usable)))
		op.Error(err, "Training failed")
		return &TrainingResult{Status: TrainingFailed, Reason: err.Message}, err
	}

	// Swap in the new model only after the full fit succeeded
	m.logistic = logistic
	m.statistical = statistical
	m.scaler = scaler
	m.state = TrainingState{
		DatasetID:     datasetID,
		Trained:       true,
		SampleCount:   len(usable),
		PositiveCount: positives,
		FeatureNames:  append([]string(nil), FeatureNames...),
		Metrics: TrainingMetrics{
			Accuracy:     accuracy,
			PositiveRate: float64(positives) / float64(len(usable)),
		},
		TrainedAt: time.Now(),
	}

	op.WithField("accuracy", fmt.Sprintf("%.3f", accuracy)).
		WithField("positives", positives).
		Success("Model training completed")

	state := m.state
	return &TrainingResult{Status: TrainingCompleted, State: &state}, nil
}

// IsTrained reports whether a successful training run has completed
func (m *DuplicateModel) IsTrained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Trained
}

// State returns a copy of the current training state
func (m *DuplicateModel) State() TrainingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Predict scores a batch with the trained model. Calling Predict before
// a successful Train returns a ModelNotTrainedError.
func (m *DuplicateModel) Predict(postings []*models.GLPosting) ([]Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Trained {
		return nil, auditerrors.ModelNotTrainedError("prediction")
	}

	predictions := make([]Prediction, 0, len(postings))
	for _, p := range postings {
		raw := extractFeatures(p)
		proba := ensembleProba(
			m.logistic.predictProba(m.scaler.transform(raw)),
			m.statistical.anomalyProba(raw),
		)

		predictions = append(predictions, Prediction{
			PostingID:            p.ID,
			DuplicateProbability: proba,
			RiskScore:            int(math.Round(proba * predictionRiskScale)),
			IsDuplicate:          proba > 0.5,
		})
	}

	return predictions, nil
}

// EnrichGroups attaches model confidence to each duplicate group: the
// mean member probability, its scaled risk score, and the boolean
// prediction. Group order, membership and rule scores are untouched.
func (m *DuplicateModel) EnrichGroups(report *detector.DuplicateReport) error {
	if report == nil || len(report.Groups) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Trained {
		return auditerrors.ModelNotTrainedError("group enrichment")
	}

	for _, g := range report.Groups {
		if len(g.Members) == 0 {
			continue
		}

		var sum float64
		for _, member := range g.Members {
			raw := extractFeatures(member)
			sum += ensembleProba(
				m.logistic.predictProba(m.scaler.transform(raw)),
				m.statistical.anomalyProba(raw),
			)
		}

		confidence := sum / float64(len(g.Members))
		g.MLConfidence = confidence
		g.MLRiskScore = int(math.Round(confidence * predictionRiskScale))
		g.MLPrediction = confidence > 0.5
	}

	return nil
}

// ModelInfo returns a display summary of the model
func (m *DuplicateModel) ModelInfo() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := map[string]interface{}{
		"trained":       m.state.Trained,
		"feature_names": FeatureNames,
		"min_records":   MinTrainingRecords,
	}
	if m.state.Trained {
		info["dataset_id"] = m.state.DatasetID
		info["sample_count"] = m.state.SampleCount
		info["positive_count"] = m.state.PositiveCount
		info["accuracy"] = m.state.Metrics.Accuracy
		info["trained_at"] = m.state.TrainedAt.Format(time.RFC3339)
	}
	return info
}
