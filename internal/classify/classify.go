// Package classify maps the model's scalar malignancy probability onto
// class labels, confidence figures, and clinical risk tiers.
package classify

// Class labels for the binary classifier.
const (
	LabelBenign    = "Benign (Non-Cancerous)"
	LabelMalignant = "Malignant (Cancerous)"
)

// Result is the classification derived from one prediction score.
type Result struct {
	Class          int     `json:"class"`
	Label          string  `json:"label"`
	Score          float32 `json:"confidence_score"`
	ConfidencePct  float32 `json:"confidence_percentage"`
	Risk           string  `json:"-"`
	Recommendation string  `json:"-"`
}

// FromScore buckets a probability into class, label, confidence, and risk
// tier. Threshold is 0.5; confidence is expressed relative to the chosen
// class, so a 0.1 score is 90% confidence in benign.
func FromScore(score float32) Result {
	r := Result{Score: score}
	if score >= 0.5 {
		r.Class = 1
		r.Label = LabelMalignant
		r.ConfidencePct = score * 100
	} else {
		r.Class = 0
		r.Label = LabelBenign
		r.ConfidencePct = (1 - score) * 100
	}
	r.Risk, r.Recommendation = riskTier(r.Class, score)
	return r
}

// riskTier is the static score-to-tier lookup.
func riskTier(class int, score float32) (string, string) {
	if class == 1 {
		if score >= 0.75 {
			return "High Risk", "Immediate specialist consultation and biopsy recommended"
		}
		return "Moderate Risk", "Further diagnostic tests and specialist review advised"
	}
	if score <= 0.25 {
		return "Low Risk", "Routine monitoring recommended"
	}
	return "Borderline", "Follow-up imaging in 6-12 months advised"
}
