// Package classifier turns per-frame pose estimates into a discrete action,
// a confidence and a movement flag.
package classifier

import (
	"github.com/ayusman/neuropose/internal/pose"
)

// Action is the discrete label assigned to a pose.
type Action string

const (
	// Neutral means neither wrist is extended above its shoulder.
	Neutral Action = "neutral"
	// Punch means at least one wrist is extended above its shoulder.
	Punch Action = "punch"
)

// Confidence holds the fixed confidence reported for each classification branch.
type Confidence struct {
	Neutral     float64
	SinglePunch float64
	DoublePunch float64
}

// Config holds the geometric thresholds for classification.
type Config struct {
	// MovementThreshold is the per-keypoint displacement in pixels above which
	// a frame counts as movement.
	MovementThreshold float64

	// ExtensionMargin is how far in pixels a wrist must sit above its shoulder
	// for that side to count as extended.
	ExtensionMargin float64

	Confidence Confidence
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		MovementThreshold: 10,
		ExtensionMargin:   100,
		Confidence: Confidence{
			Neutral:     0.9,
			SinglePunch: 0.75,
			DoublePunch: 0.95,
		},
	}
}

// Result is the outcome of classifying one frame.
type Result struct {
	Action     Action
	Confidence float64
	Movement   bool
	// JointScore is the mean model score of the four joints the heuristic
	// reads. It does not feed Confidence.
	JointScore float64
	Keypoints  pose.Estimate
}

// Classifier classifies consecutive estimates from one camera.
// It is not safe for concurrent use; one detection loop owns it.
type Classifier struct {
	config   Config
	previous pose.Estimate
}

// New creates a Classifier. A zero Config means DefaultConfig. Otherwise a
// zero MovementThreshold or Confidence falls back to its default, while
// ExtensionMargin is used as given so a margin of 0 stays expressible.
func New(config Config) *Classifier {
	def := DefaultConfig()
	if config == (Config{}) {
		return &Classifier{config: def}
	}
	if config.MovementThreshold <= 0 {
		config.MovementThreshold = def.MovementThreshold
	}
	if config.Confidence == (Confidence{}) {
		config.Confidence = def.Confidence
	}
	return &Classifier{config: config}
}

// Config returns the thresholds in use.
func (c *Classifier) Config() Config {
	return c.config
}

// Classify runs movement detection against the previous estimate, then
// classifies est. It returns false when one of the four required joints is
// missing; the previous estimate is still replaced in that case.
func (c *Classifier) Classify(est pose.Estimate) (Result, bool) {
	movement := c.detectMovement(est)

	action, confidence, score, ok := c.classify(est)
	if !ok {
		return Result{}, false
	}

	return Result{
		Action:     action,
		Confidence: confidence,
		Movement:   movement,
		JointScore: score,
		Keypoints:  est.Clone(),
	}, true
}

// Reset forgets the previous estimate so the next frame seeds movement
// detection again.
func (c *Classifier) Reset() {
	c.previous = nil
}

// detectMovement compares est with the previous estimate and stores a copy of
// est for the next call. The first call always reports no movement.
func (c *Classifier) detectMovement(est pose.Estimate) bool {
	prev := c.previous
	c.previous = est.Clone()

	if prev == nil {
		return false
	}
	return Moved(prev, est, c.config.MovementThreshold)
}

func (c *Classifier) classify(est pose.Estimate) (Action, float64, float64, bool) {
	leftWrist, ok1 := est.Find(pose.LeftWrist)
	leftShoulder, ok2 := est.Find(pose.LeftShoulder)
	rightWrist, ok3 := est.Find(pose.RightWrist)
	rightShoulder, ok4 := est.Find(pose.RightShoulder)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return "", 0, 0, false
	}

	score := (leftWrist.Score + leftShoulder.Score + rightWrist.Score + rightShoulder.Score) / 4

	left := Extended(leftWrist, leftShoulder, c.config.ExtensionMargin)
	right := Extended(rightWrist, rightShoulder, c.config.ExtensionMargin)

	switch {
	case left && right:
		return Punch, c.config.Confidence.DoublePunch, score, true
	case left || right:
		return Punch, c.config.Confidence.SinglePunch, score, true
	default:
		return Neutral, c.config.Confidence.Neutral, score, true
	}
}

// Extended reports whether wrist sits more than margin pixels above shoulder.
func Extended(wrist, shoulder pose.Keypoint, margin float64) bool {
	return wrist.Y < shoulder.Y-margin
}

// Moved reports whether any keypoint present in both estimates under the same
// name moved more than threshold pixels.
func Moved(prev, cur pose.Estimate, threshold float64) bool {
	before := prev.Index()
	for _, kp := range cur {
		old, ok := before[kp.Name]
		if !ok {
			continue
		}
		if pose.Distance(old, kp) > threshold {
			return true
		}
	}
	return false
}
