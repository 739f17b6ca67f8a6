package estimator

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/neuropose/internal/pose"
)

// minPoseScore is the best keypoint score below which a frame is treated as
// having nobody in view.
const minPoseScore = 0.1

// MoveNet implements Estimator with a single-pose MoveNet ONNX export run by
// the OpenCV DNN module. The export must take a float NCHW input of
// InputSize x InputSize RGB pixels in the 0-255 range and produce a
// [1,1,17,3] tensor of normalized (y, x, score) triples.
type MoveNet struct {
	net       gocv.Net
	config    Config
	mu        sync.Mutex
	inputSize image.Point
}

// NewMoveNet loads the model at config.ModelPath.
func NewMoveNet(config Config) (*MoveNet, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, config.ModelPath)
	}

	net := gocv.ReadNetFromONNX(config.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("load movenet model from %s", config.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	size := config.InputSize
	if size <= 0 {
		size = DefaultConfig().InputSize
	}

	return &MoveNet{
		net:       net,
		config:    config,
		inputSize: image.Pt(size, size),
	}, nil
}

// Estimate runs the model over frame. The forward pass cannot be interrupted,
// so ctx is only checked before it starts.
func (m *MoveNet) Estimate(ctx context.Context, frame *gocv.Mat) (pose.Estimate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	blob := gocv.BlobFromImage(*frame, 1.0, m.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")

	output := m.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read model output: %w", err)
	}

	return decodeMoveNet(data, frame.Cols(), frame.Rows())
}

// Close releases the network.
func (m *MoveNet) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}

// decodeMoveNet converts the flat (y, x, score) output into an estimate in
// pixel coordinates of a width x height frame.
func decodeMoveNet(data []float32, width, height int) (pose.Estimate, error) {
	if len(data) < pose.NumKeypoints*3 {
		return nil, fmt.Errorf("model output has %d values, want %d", len(data), pose.NumKeypoints*3)
	}

	var best float64
	est := make(pose.Estimate, pose.NumKeypoints)
	for i, name := range pose.Names {
		y := float64(data[i*3])
		x := float64(data[i*3+1])
		score := float64(data[i*3+2])

		est[i] = pose.Keypoint{
			Name:  name,
			X:     x * float64(width),
			Y:     y * float64(height),
			Score: score,
		}
		if score > best {
			best = score
		}
	}

	if best < minPoseScore {
		return pose.Estimate{}, nil
	}
	return est, nil
}
