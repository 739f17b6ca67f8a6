package capture

import (
	"errors"
	"sync"
	"testing"

	"gocv.io/x/gocv"
)

// fakeDevice stands in for a gocv.VideoCapture.
type fakeDevice struct {
	mu     sync.Mutex
	opened bool
	// reads scripts Read results in order: "frame", "empty" or "fail".
	// An exhausted script keeps returning frames.
	reads  []string
	props  map[gocv.VideoCaptureProperties]float64
	closed bool
}

func newFakeDevice(reads ...string) *fakeDevice {
	return &fakeDevice{
		opened: true,
		reads:  reads,
		props:  make(map[gocv.VideoCaptureProperties]float64),
	}
}

func (d *fakeDevice) Read(m *gocv.Mat) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := "frame"
	if len(d.reads) > 0 {
		next, d.reads = d.reads[0], d.reads[1:]
	}
	switch next {
	case "fail":
		return false
	case "empty":
		return true
	}
	frame := gocv.NewMatWithSize(DefaultHeight, DefaultWidth, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.CopyTo(m)
	return true
}

func (d *fakeDevice) IsOpened() bool { return d.opened }

func (d *fakeDevice) Set(prop gocv.VideoCaptureProperties, param float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.props[prop] = param
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func cameraWith(dev *fakeDevice, openErr error) *cameraImpl {
	return &cameraImpl{
		open: func(int) (device, error) {
			if openErr != nil {
				return nil, openErr
			}
			return dev, nil
		},
		fps: DefaultFPS,
	}
}

func TestCamera_Open(t *testing.T) {
	t.Run("configures 640x480 at the current rate", func(t *testing.T) {
		dev := newFakeDevice()
		cam := cameraWith(dev, nil)
		cam.SetFPS(15)

		if err := cam.Open(); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if !cam.IsOpen() {
			t.Error("IsOpen() should be true after Open()")
		}

		want := map[gocv.VideoCaptureProperties]float64{
			gocv.VideoCaptureFrameWidth:  DefaultWidth,
			gocv.VideoCaptureFrameHeight: DefaultHeight,
			gocv.VideoCaptureFPS:         15,
		}
		for prop, v := range want {
			if dev.props[prop] != v {
				t.Errorf("property %v = %f, want %f", prop, dev.props[prop], v)
			}
		}
	})

	t.Run("open error is permission denied", func(t *testing.T) {
		cause := errors.New("device busy")
		cam := cameraWith(nil, cause)

		err := cam.Open()
		if !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("Open() error = %v, want ErrPermissionDenied", err)
		}
		if cam.IsOpen() {
			t.Error("IsOpen() should be false after a failed Open()")
		}
	})

	t.Run("device that is not opened is released", func(t *testing.T) {
		dev := newFakeDevice()
		dev.opened = false
		cam := cameraWith(dev, nil)

		if err := cam.Open(); !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("Open() error = %v, want ErrPermissionDenied", err)
		}
		if !dev.closed {
			t.Error("unopened device should be closed")
		}
	})
}

func TestCamera_ReadFrame(t *testing.T) {
	tests := []struct {
		name    string
		read    string
		wantErr error
	}{
		{"frame", "frame", nil},
		{"failed read", "fail", ErrFrameNotReady},
		{"empty frame", "empty", ErrFrameNotReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := cameraWith(newFakeDevice(tt.read), nil)
			if err := cam.Open(); err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer cam.Close()

			mat, err := cam.ReadFrame()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadFrame() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if mat != nil {
					t.Error("ReadFrame() should not return a frame with an error")
				}
				return
			}
			defer mat.Close()
			if mat.Cols() != DefaultWidth || mat.Rows() != DefaultHeight {
				t.Errorf("frame = %dx%d, want %dx%d", mat.Cols(), mat.Rows(), DefaultWidth, DefaultHeight)
			}
		})
	}

	t.Run("not ready then recovers", func(t *testing.T) {
		cam := cameraWith(newFakeDevice("empty", "fail", "frame"), nil)
		cam.Open()
		defer cam.Close()

		for i := 0; i < 2; i++ {
			if _, err := cam.ReadFrame(); !errors.Is(err, ErrFrameNotReady) {
				t.Fatalf("read %d error = %v, want ErrFrameNotReady", i, err)
			}
		}
		mat, err := cam.ReadFrame()
		if err != nil {
			t.Fatalf("third read error = %v", err)
		}
		mat.Close()
	})

	t.Run("not open", func(t *testing.T) {
		cam := NewCamera(0)
		if _, err := cam.ReadFrame(); !errors.Is(err, ErrCameraNotOpen) {
			t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
		}
	})
}

func TestCamera_SetFPS(t *testing.T) {
	dev := newFakeDevice()
	cam := cameraWith(dev, nil)

	if cam.FPS() != DefaultFPS {
		t.Errorf("FPS() = %d, want default %d", cam.FPS(), DefaultFPS)
	}

	if err := cam.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer cam.Close()

	cam.SetFPS(10)
	if cam.FPS() != 10 || dev.props[gocv.VideoCaptureFPS] != 10 {
		t.Errorf("FPS() = %d, device fps = %f, want 10", cam.FPS(), dev.props[gocv.VideoCaptureFPS])
	}

	for _, bad := range []int{0, -5} {
		cam.SetFPS(bad)
		if cam.FPS() != 10 {
			t.Errorf("SetFPS(%d) changed FPS to %d", bad, cam.FPS())
		}
	}
}

func TestCamera_Close(t *testing.T) {
	dev := newFakeDevice()
	cam := cameraWith(dev, nil)

	if err := cam.Close(); err != nil {
		t.Errorf("Close() before Open() error = %v", err)
	}

	cam.Open()
	if err := cam.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !dev.closed || cam.IsOpen() {
		t.Error("Close() should release the device")
	}
	if _, err := cam.ReadFrame(); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() after Close() error = %v, want ErrCameraNotOpen", err)
	}
}

func TestCamera_Device(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping camera hardware test in short mode")
	}

	cam := NewCamera(0)
	if err := cam.Open(); err != nil {
		if !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("Open() error = %v, want ErrPermissionDenied", err)
		}
		t.Skipf("skipping test - camera not available: %v", err)
	}
	defer cam.Close()

	mat, err := cam.ReadFrame()
	if errors.Is(err, ErrFrameNotReady) {
		t.Skip("camera opened but has no frame yet")
	}
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	mat.Close()
}
