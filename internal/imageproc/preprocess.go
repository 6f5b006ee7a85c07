// Package imageproc converts uploaded images to model input tensors and
// renders Grad-CAM heatmaps back into displayable images.
package imageproc

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/vaidehibh/thyroscan/internal/tensor"
)

// Channels is the model input channel count (RGB).
const Channels = 3

// DecodeBase64Image decodes a base64 payload (data-URL prefix tolerated)
// into an image. maxBytes caps the decoded payload size; 0 disables the cap.
func DecodeBase64Image(encoded string, maxBytes int) (image.Image, error) {
	if encoded == "" {
		return nil, fmt.Errorf("empty image payload")
	}
	// Strip "data:image/png;base64," style prefixes.
	if i := strings.IndexByte(encoded, ','); i >= 0 && strings.Contains(encoded[:i], "base64") {
		encoded = encoded[i+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image data: %w", err)
	}
	if maxBytes > 0 && len(raw) > maxBytes {
		return nil, fmt.Errorf("image payload is %d bytes, limit is %d", len(raw), maxBytes)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unsupported or corrupt image: %w", err)
	}
	return img, nil
}

// ToTensor resizes an image to size x size (Lanczos, matching the training
// pipeline), converts to RGB, normalizes to [0, 1], and adds the batch axis:
// the result has shape [1, size, size, 3].
func ToTensor(img image.Image, size int) (*tensor.Tensor, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid target size %d", size)
	}

	resized := imaging.Resize(img, size, size, imaging.Lanczos)

	data := make([]float32, size*size*Channels)
	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := resized.PixOffset(x, y)
			// NRGBA pixel layout; alpha is dropped.
			data[i] = float32(resized.Pix[off]) / 255
			data[i+1] = float32(resized.Pix[off+1]) / 255
			data[i+2] = float32(resized.Pix[off+2]) / 255
			i += Channels
		}
	}
	return tensor.NewImage(data, size, size, Channels)
}

// EncodePNGBase64 encodes an image as base64 PNG for JSON transport.
func EncodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode PNG: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
