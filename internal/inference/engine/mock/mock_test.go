package mock

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/yungbote/recycleright-backend/internal/inference/engine"
)

func samplePNG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	img.Set(0, 0, color.Gray{Y: 255 - shade})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestInferDeterministic(t *testing.T) {
	e := New(nil)
	img := samplePNG(t, 40)
	a, err := e.Infer(context.Background(), img)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	b, _ := e.Infer(context.Background(), img)
	if a.Label != b.Label || a.Confidence != b.Confidence {
		t.Fatalf("non-deterministic: %+v vs %+v", a, b)
	}
	if a.Confidence < 0.30 || a.Confidence > 0.99 {
		t.Fatalf("confidence out of range: %v", a.Confidence)
	}
	if len(a.Candidates) != 3 || a.Candidates[0].Label != a.Label {
		t.Fatalf("candidates=%+v", a.Candidates)
	}
}

func TestInferRejectsGarbage(t *testing.T) {
	if _, err := New(nil).Infer(context.Background(), []byte("nope")); !errors.Is(err, engine.ErrImageUnreadable) {
		t.Fatalf("err=%v", err)
	}
}
