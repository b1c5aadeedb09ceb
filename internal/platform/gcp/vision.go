package gcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

var (
	// ErrInvalidImage is returned when Vision rejects the image payload.
	ErrInvalidImage = errors.New("gcp vision: invalid image")
	// ErrVisionUnavailable covers auth, quota and transport failures.
	ErrVisionUnavailable = errors.New("gcp vision: unavailable")
)

// Label is one label or localized object reported by Cloud Vision.
type Label struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	MID         string  `json:"mid,omitempty"`
	Object      bool    `json:"object,omitempty"`
}

type LabelDetector interface {
	DetectLabels(ctx context.Context, img []byte, maxResults int) ([]Label, error)
	Close() error
}

type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

type visionLabelDetector struct {
	log      *logger.Logger
	annotate annotateFunc
	closeFn  func() error
	timeout  time.Duration
}

func NewLabelDetector(ctx context.Context, log *logger.Logger, timeout time.Duration) (LabelDetector, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := vision.NewImageAnnotatorClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	annotate := func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return c.BatchAnnotateImages(ctx, req)
	}
	return newLabelDetector(log, annotate, c.Close, timeout), nil
}

func newLabelDetector(log *logger.Logger, annotate annotateFunc, closeFn func() error, timeout time.Duration) *visionLabelDetector {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &visionLabelDetector{
		log:      log.With("service", "gcp.LabelDetector"),
		annotate: annotate,
		closeFn:  closeFn,
		timeout:  timeout,
	}
}

func (d *visionLabelDetector) Close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// DetectLabels runs label detection and object localization in one request and
// returns both, merged and sorted by score.
func (d *visionLabelDetector) DetectLabels(ctx context.Context, img []byte, maxResults int) ([]Label, error) {
	if len(img) == 0 {
		return nil, ErrInvalidImage
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req := &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{Content: img},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: int32(maxResults)},
			{Type: visionpb.Feature_OBJECT_LOCALIZATION, MaxResults: int32(maxResults)},
		},
	}
	resp, err := d.annotate(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{req},
	})
	if err != nil {
		return nil, mapVisionError(err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return nil, nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Code != 0 {
		if codes.Code(r0.Error.Code) == codes.InvalidArgument {
			return nil, fmt.Errorf("%w: %s", ErrInvalidImage, r0.Error.Message)
		}
		return nil, fmt.Errorf("%w: %s", ErrVisionUnavailable, r0.Error.Message)
	}

	labels := make([]Label, 0, len(r0.LabelAnnotations)+len(r0.LocalizedObjectAnnotations))
	for _, a := range r0.LocalizedObjectAnnotations {
		if a == nil || strings.TrimSpace(a.Name) == "" {
			continue
		}
		labels = append(labels, Label{Description: a.Name, Score: float64(a.Score), MID: a.Mid, Object: true})
	}
	for _, a := range r0.LabelAnnotations {
		if a == nil || strings.TrimSpace(a.Description) == "" {
			continue
		}
		labels = append(labels, Label{Description: a.Description, Score: float64(a.Score), MID: a.Mid})
	}
	sort.SliceStable(labels, func(i, j int) bool { return labels[i].Score > labels[j].Score })
	d.log.Debug("vision labels detected", "count", len(labels))
	return labels, nil
}

func mapVisionError(err error) error {
	switch status.Code(err) {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %v", ErrInvalidImage, err)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", ErrVisionUnavailable, context.DeadlineExceeded)
	default:
		return fmt.Errorf("%w: %v", ErrVisionUnavailable, err)
	}
}
