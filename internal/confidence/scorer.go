// Package confidence scores generated SQL from the amount of retrieved context.
package confidence

// Scorer turns the number of retrieved schema documents into a confidence value in [0, 1].
type Scorer interface {
	Score(retrieved int) float64
}

// Step is one threshold of a StepScorer.
type Step struct {
	MinDocuments int
	Score        float64
}

// StepScorer is a coarse heuristic, not a calibrated probability.
type StepScorer struct {
	floor float64
	steps []Step
}

var _ Scorer = (*StepScorer)(nil)

// NewStepScorer returns the default scale: 0 documents 0.4, 1 0.6, 2 0.75, 3 or more 0.9.
func NewStepScorer() *StepScorer {
	return &StepScorer{
		floor: 0.4,
		steps: []Step{
			{MinDocuments: 1, Score: 0.6},
			{MinDocuments: 2, Score: 0.75},
			{MinDocuments: 3, Score: 0.9},
		},
	}
}

// NewCustomStepScorer builds a scorer from thresholds sorted by MinDocuments.
func NewCustomStepScorer(floor float64, steps []Step) *StepScorer {
	return &StepScorer{floor: floor, steps: steps}
}

// Score returns the score of the highest threshold reached.
func (s *StepScorer) Score(retrieved int) float64 {
	score := s.floor
	for _, step := range s.steps {
		if retrieved >= step.MinDocuments {
			score = step.Score
		}
	}
	return score
}
