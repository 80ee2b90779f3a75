// Package vision turns photo bytes into face embeddings.
package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"path/filepath"

	"github.com/abhishekdev057/studio-face-photos/internal/config"
	"github.com/abhishekdev057/studio-face-photos/internal/models"
)

// Extractor is the face-extraction oracle: photo bytes in, zero or more
// fixed-dimension embeddings out. Face count and embedding values are the
// model's business; callers only route the results.
type Extractor interface {
	Extract(ctx context.Context, imageData []byte) ([]models.Embedding, error)
}

// ExtractorFunc adapts a plain function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, imageData []byte) ([]models.Embedding, error)

func (f ExtractorFunc) Extract(ctx context.Context, imageData []byte) ([]models.Embedding, error) {
	return f(ctx, imageData)
}

// ONNXExtractor chains a RetinaFace detector and an embedding model.
type ONNXExtractor struct {
	detector *Detector
	embedder *Embedder
	logger   *slog.Logger
}

// NewONNXExtractor loads both models from cfg.ModelsDir.
func NewONNXExtractor(cfg config.VisionConfig, embeddingDim int, logger *slog.Logger) (*ONNXExtractor, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "face_embed.onnx")

	logger.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold))
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	logger.Info("loading embedding model", "path", embPath, "dim", embeddingDim)
	emb, err := NewEmbedder(embPath, embeddingDim)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &ONNXExtractor{detector: det, embedder: emb, logger: logger}, nil
}

// Extract detects faces and embeds each crop. A photo with no detectable
// faces returns an empty slice and no error.
func (e *ONNXExtractor) Extract(ctx context.Context, imageData []byte) ([]models.Embedding, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decode photo: %w", err)
	}

	bounds := img.Bounds()
	detections, err := e.detector.Detect(
		toCHW(img, e.detector.inputW, e.detector.inputH, 127.5, 128.0),
		bounds.Dx(), bounds.Dy(),
	)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	embeddings := make([]models.Embedding, 0, len(detections))
	for _, det := range detections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		crop := cropFace(img, det.BBox)
		if crop == nil {
			continue
		}
		vec, err := e.embedder.Embed(toCHW(crop, e.embedder.inputW, e.embedder.inputH, 127.5, 127.5))
		if err != nil {
			return nil, fmt.Errorf("embed face: %w", err)
		}
		embeddings = append(embeddings, vec)
	}
	return embeddings, nil
}

func (e *ONNXExtractor) Close() {
	e.detector.Close()
	e.embedder.Close()
}

// toCHW converts an image into the [3][H][W] float32 layout ONNX models
// expect, applying (pixel - mean) / std per channel.
func toCHW(img image.Image, targetW, targetH int, mean, std float32) []float32 {
	resized := nearestResize(img, targetW, targetH)
	bounds := resized.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	data := make([]float32, 3*h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			idx := y*w + x
			data[0*h*w+idx] = (float32(r>>8) - mean) / std
			data[1*h*w+idx] = (float32(g>>8) - mean) / std
			data[2*h*w+idx] = (float32(b>>8) - mean) / std
		}
	}
	return data
}

// nearestResize is a fast nearest-neighbour scale. Model inputs do not need
// high-quality interpolation.
func nearestResize(img image.Image, targetW, targetH int) image.Image {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	for y := 0; y < targetH; y++ {
		for x := 0; x < targetW; x++ {
			dst.Set(x, y, img.At(bounds.Min.X+x*srcW/targetW, bounds.Min.Y+y*srcH/targetH))
		}
	}
	return dst
}

// cropFace cuts the detection box out of the photo with 10% padding on each
// side. Returns nil for degenerate boxes.
func cropFace(img image.Image, bbox [4]float32) image.Image {
	bounds := img.Bounds()

	x1 := clampI(int(bbox[0]), bounds.Min.X, bounds.Max.X)
	y1 := clampI(int(bbox[1]), bounds.Min.Y, bounds.Max.Y)
	x2 := clampI(int(bbox[2]), bounds.Min.X, bounds.Max.X)
	y2 := clampI(int(bbox[3]), bounds.Min.Y, bounds.Max.Y)

	w := x2 - x1
	h := y2 - y1
	if w <= 0 || h <= 0 {
		return nil
	}

	x1 = clampI(x1-w/10, bounds.Min.X, bounds.Max.X)
	y1 = clampI(y1-h/10, bounds.Min.Y, bounds.Max.Y)
	x2 = clampI(x2+w/10, bounds.Min.X, bounds.Max.X)
	y2 = clampI(y2+h/10, bounds.Min.Y, bounds.Max.Y)

	crop := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	for cy := y1; cy < y2; cy++ {
		for cx := x1; cx < x2; cx++ {
			crop.Set(cx-x1, cy-y1, img.At(cx, cy))
		}
	}
	return crop
}

func clampI(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
