// Package overlay draws the detected skeleton and the current action onto
// camera frames for the MJPEG stream.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/neuropose/internal/classifier"
	"github.com/ayusman/neuropose/internal/pose"
	"github.com/ayusman/neuropose/internal/session"
)

// MinScore is the keypoint score a joint needs to be drawn.
const MinScore = 0.5

var (
	neutralLine  = color.RGBA{R: 0, G: 225, B: 255, A: 255}
	neutralPoint = color.RGBA{R: 0, G: 201, B: 255, A: 255}
	punchLine    = color.RGBA{R: 255, G: 62, B: 136, A: 255}
	punchPoint   = color.RGBA{R: 255, G: 0, B: 110, A: 255}
	idleText     = color.RGBA{R: 180, G: 180, B: 180, A: 255}
)

// Segment is one skeleton bone with both ends confidently placed.
type Segment struct {
	From, To pose.Keypoint
}

// Segments returns the skeleton bones of est whose joints both score above
// minScore.
func Segments(est pose.Estimate, minScore float64) []Segment {
	index := est.Index()
	var segs []Segment
	for _, pair := range pose.Skeleton {
		from, ok1 := index[pair[0]]
		to, ok2 := index[pair[1]]
		if !ok1 || !ok2 || from.Score <= minScore || to.Score <= minScore {
			continue
		}
		segs = append(segs, Segment{From: from, To: to})
	}
	return segs
}

// Label is the caption drawn in the frame corner.
func Label(st session.State) string {
	label := fmt.Sprintf("%s %.0f%%", st.Action, st.Confidence*100)
	if st.Idle {
		label += " (idle)"
	}
	return label
}

// Draw renders st's skeleton and label onto img in place.
func Draw(img *gocv.Mat, st session.State) {
	line, point := neutralLine, neutralPoint
	if st.Action == classifier.Punch {
		line, point = punchLine, punchPoint
	}

	for _, seg := range Segments(st.Keypoints, MinScore) {
		gocv.Line(img, pt(seg.From), pt(seg.To), line, 3)
	}
	for _, kp := range st.Keypoints {
		if kp.Score > MinScore {
			gocv.Circle(img, pt(kp), 5, point, -1)
		}
	}

	text := point
	if st.Idle {
		text = idleText
	}
	gocv.PutText(img, Label(st), image.Pt(12, 32), gocv.FontHersheySimplex, 0.9, text, 2)
}

// Encode returns img as JPEG bytes.
func Encode(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases the native buffer, which Close frees.
	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func pt(kp pose.Keypoint) image.Point {
	return image.Pt(int(kp.X), int(kp.Y))
}
