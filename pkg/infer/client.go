package infer

// Package infer is the adapter between the analysis pipeline and the external
// object detection model. The model runs out of process (an inference server
// that loads its weights once at startup); we send it a JPEG frame and
// normalize whatever comes back into nn.Detection records.

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/scenescan/scenescan/pkg/nn"
)

// Two detections of the same class whose boxes overlap at least this much are
// considered the same object reported twice by the model server.
const duplicateIoU = 0.9

const jpegQuality = 90

// Client invokes an external detection model over HTTP, and implements
// nn.ObjectDetector. It is safe for concurrent use, and is created once at
// process startup.
type Client struct {
	log        logs.Log
	baseURL    string
	httpClient *http.Client
	classes    []string // class ID -> label table
}

// The request we POST to {baseURL}/v1/detect
type detectRequest struct {
	Image string `json:"image"` // base64 JPEG
}

// One raw model output
type rawDetection struct {
	ClassID    int        `json:"class_id"`
	Confidence float32    `json:"confidence"`
	Box        [4]float32 `json:"box"` // x, y, width, height in pixels
}

type detectResponse struct {
	Detections []rawDetection `json:"detections"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// NewClient creates a detection model client.
// classes maps raw class IDs to labels; pass nil to use the COCO table.
func NewClient(log logs.Log, baseURL string, classes []string) *Client {
	if classes == nil {
		classes = nn.COCOClasses
	}
	return &Client{
		log:     log,
		baseURL: baseURL,
		classes: classes,
		// Per-call deadlines come from the caller's context, so no Timeout here.
		httpClient: &http.Client{},
	}
}

func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Ping checks that the model server is up and has its model loaded.
// A failure here at startup is fatal to the process, not to a request.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v1/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model server unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server health check returned %v", resp.Status)
	}
	health := healthResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("model server health check: %w", err)
	}
	if !health.ModelLoaded {
		return fmt.Errorf("model server is up, but no model is loaded")
	}
	return nil
}

// DetectObjects sends one frame to the model server and returns the
// normalized detections. All failure modes (transport, timeout, malformed
// response, unknown class IDs) come back as *nn.ModelError, which the
// pipeline treats as recoverable for that frame.
func (c *Client) DetectObjects(ctx context.Context, img *cimg.Image, params *nn.DetectionParams) ([]nn.Detection, error) {
	minConfidence := params.MinConfidence
	if minConfidence == 0 {
		minConfidence = nn.DefaultMinConfidence
	}

	jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, jpegQuality, 0))
	if err != nil {
		return nil, nn.ModelErrorf("failed to encode frame: %v", err)
	}
	body, err := json.Marshal(detectRequest{Image: base64.StdEncoding.EncodeToString(jpg)})
	if err != nil {
		return nil, nn.ModelErrorf("failed to encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/detect", bytes.NewReader(body))
	if err != nil {
		return nil, &nn.ModelError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &nn.ModelError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, nn.ModelErrorf("model server returned %v", resp.Status)
	}
	raw := detectResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, nn.ModelErrorf("malformed model response: %v", err)
	}
	c.log.Debugf("Model call took %.0f ms, %v raw detections", time.Since(start).Seconds()*1000, len(raw.Detections))

	detections := make([]nn.Detection, 0, len(raw.Detections))
	for _, r := range raw.Detections {
		if r.Confidence < 0 || r.Confidence > 1 {
			return nil, nn.ModelErrorf("malformed model response: confidence %v out of range", r.Confidence)
		}
		label, ok := nnLabel(c.classes, r.ClassID)
		if !ok {
			return nil, nn.ModelErrorf("malformed model response: unknown class ID %v", r.ClassID)
		}
		if r.Confidence < minConfidence {
			continue
		}
		if !params.HasClass(label) {
			continue
		}
		detections = append(detections, nn.Detection{
			Class:      label,
			Confidence: r.Confidence,
			Box:        nn.MakeRect(int(r.Box[0]), int(r.Box[1]), int(r.Box[2]), int(r.Box[3])),
		})
	}

	return dropDuplicates(detections), nil
}

func nnLabel(classes []string, id int) (string, bool) {
	if id < 0 || id >= len(classes) {
		return "", false
	}
	return classes[id], true
}

// dropDuplicates removes detections that are near-identical repeats of the
// same class (some model servers skip non-max suppression). The higher
// confidence detection of a duplicate pair is kept.
func dropDuplicates(input []nn.Detection) []nn.Detection {
	if len(input) < 2 {
		return input
	}
	deleted := make([]bool, len(input))
	for i := 0; i < len(input); i++ {
		if deleted[i] {
			continue
		}
		for j := i + 1; j < len(input); j++ {
			if deleted[j] || input[i].Class != input[j].Class {
				continue
			}
			if input[i].Box.IOU(input[j].Box) >= duplicateIoU {
				if input[j].Confidence > input[i].Confidence {
					deleted[i] = true
				} else {
					deleted[j] = true
				}
			}
		}
	}
	retain := make([]nn.Detection, 0, len(input))
	for i := range input {
		if !deleted[i] {
			retain = append(retain, input[i])
		}
	}
	return retain
}
