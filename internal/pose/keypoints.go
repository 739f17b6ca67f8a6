// Package pose provides the keypoint types shared by estimators, the classifier
// and display consumers.
package pose

import "math"

// Joint names following the COCO / MoveNet convention.
const (
	Nose          = "nose"
	LeftEye       = "left_eye"
	RightEye      = "right_eye"
	LeftEar       = "left_ear"
	RightEar      = "right_ear"
	LeftShoulder  = "left_shoulder"
	RightShoulder = "right_shoulder"
	LeftElbow     = "left_elbow"
	RightElbow    = "right_elbow"
	LeftWrist     = "left_wrist"
	RightWrist    = "right_wrist"
	LeftHip       = "left_hip"
	RightHip      = "right_hip"
	LeftKnee      = "left_knee"
	RightKnee     = "right_knee"
	LeftAnkle     = "left_ankle"
	RightAnkle    = "right_ankle"
)

// Names lists the joints in model output order.
var Names = [...]string{
	Nose, LeftEye, RightEye, LeftEar, RightEar,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow,
	LeftWrist, RightWrist, LeftHip, RightHip,
	LeftKnee, RightKnee, LeftAnkle, RightAnkle,
}

// NumKeypoints is the number of joints a full-body estimate carries.
const NumKeypoints = len(Names)

// Skeleton lists the joint pairs drawn as limbs.
var Skeleton = [][2]string{
	{Nose, LeftEye},
	{Nose, RightEye},
	{LeftEye, LeftEar},
	{RightEye, RightEar},
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow},
	{RightShoulder, RightElbow},
	{LeftElbow, LeftWrist},
	{RightElbow, RightWrist},
	{LeftShoulder, LeftHip},
	{RightShoulder, RightHip},
	{LeftHip, RightHip},
	{LeftHip, LeftKnee},
	{RightHip, RightKnee},
	{LeftKnee, LeftAnkle},
	{RightKnee, RightAnkle},
}

// Keypoint is one named anatomical landmark in frame pixel coordinates.
// Y grows downward.
type Keypoint struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// Estimate is the full set of keypoints for one frame.
type Estimate []Keypoint

// Distance returns the Euclidean distance between two keypoints.
func Distance(a, b Keypoint) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Find returns the keypoint with the given name.
func (e Estimate) Find(name string) (Keypoint, bool) {
	for _, kp := range e {
		if kp.Name == name {
			return kp, true
		}
	}
	return Keypoint{}, false
}

// Index returns the keypoints keyed by name. Later duplicates win.
func (e Estimate) Index() map[string]Keypoint {
	m := make(map[string]Keypoint, len(e))
	for _, kp := range e {
		m[kp.Name] = kp
	}
	return m
}

// Clone returns a copy that shares no memory with e.
func (e Estimate) Clone() Estimate {
	if e == nil {
		return nil
	}
	out := make(Estimate, len(e))
	copy(out, e)
	return out
}

// Filter returns the keypoints whose score is at least minScore.
// A minScore of zero or less returns e unchanged.
func (e Estimate) Filter(minScore float64) Estimate {
	if minScore <= 0 {
		return e
	}
	out := make(Estimate, 0, len(e))
	for _, kp := range e {
		if kp.Score >= minScore {
			out = append(out, kp)
		}
	}
	return out
}
