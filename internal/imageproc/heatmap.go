package imageproc

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/vaidehibh/thyroscan/internal/gradcam"
)

// RenderedImages carries the base64 PNG images returned to API clients.
type RenderedImages struct {
	Original string `json:"original"`
	Heatmap  string `json:"heatmap"`
	Overlay  string `json:"overlay"`
}

// jetStops approximates the matplotlib jet colormap. Blending happens in
// RGB to keep the familiar banding.
var jetStops = []colorful.Color{
	{R: 0.0, G: 0.0, B: 0.5},
	{R: 0.0, G: 0.0, B: 1.0},
	{R: 0.0, G: 1.0, B: 1.0},
	{R: 0.5, G: 1.0, B: 0.5},
	{R: 1.0, G: 1.0, B: 0.0},
	{R: 1.0, G: 0.0, B: 0.0},
	{R: 0.5, G: 0.0, B: 0.0},
}

// Render produces the three display images for a heatmap: the resized
// original, the colorized heatmap, and the weighted overlay. size is the
// display resolution (the model input size in practice).
func Render(original image.Image, hm *gradcam.Heatmap, size int) (*RenderedImages, error) {
	if original == nil {
		return nil, fmt.Errorf("nil original image")
	}
	if hm == nil || len(hm.Values) == 0 {
		return nil, fmt.Errorf("nil or empty heatmap")
	}

	base := imaging.Resize(original, size, size, imaging.Lanczos)

	// Upsampling happens on the float grid so colorization is not fed
	// 8-bit quantized values.
	upsampled := resizeBilinear(hm.Values, hm.Height, hm.Width, size, size)
	colored := colorize(upsampled, size, size)
	overlay := blend(base, colored, 0.6, 0.4)

	origB64, err := EncodePNGBase64(base)
	if err != nil {
		return nil, err
	}
	heatB64, err := EncodePNGBase64(colored)
	if err != nil {
		return nil, err
	}
	overB64, err := EncodePNGBase64(overlay)
	if err != nil {
		return nil, err
	}
	return &RenderedImages{Original: origB64, Heatmap: heatB64, Overlay: overB64}, nil
}

// resizeBilinear interpolates a srcH x srcW float grid to dstH x dstW.
func resizeBilinear(src []float32, srcH, srcW, dstH, dstW int) []float32 {
	dst := make([]float32, dstH*dstW)
	if srcH == 1 && srcW == 1 {
		for i := range dst {
			dst[i] = src[0]
		}
		return dst
	}

	var scaleY, scaleX float64
	if dstH > 1 {
		scaleY = float64(srcH-1) / float64(dstH-1)
	}
	if dstW > 1 {
		scaleX = float64(srcW-1) / float64(dstW-1)
	}
	for y := 0; y < dstH; y++ {
		fy := float64(y) * scaleY
		y0 := int(fy)
		y1 := y0 + 1
		if y1 >= srcH {
			y1 = srcH - 1
		}
		wy := float32(fy - float64(y0))
		for x := 0; x < dstW; x++ {
			fx := float64(x) * scaleX
			x0 := int(fx)
			x1 := x0 + 1
			if x1 >= srcW {
				x1 = srcW - 1
			}
			wx := float32(fx - float64(x0))

			top := src[y0*srcW+x0]*(1-wx) + src[y0*srcW+x1]*wx
			bot := src[y1*srcW+x0]*(1-wx) + src[y1*srcW+x1]*wx
			dst[y*dstW+x] = top*(1-wy) + bot*wy
		}
	}
	return dst
}

// colorize maps normalized [0,1] values through the jet colormap.
func colorize(values []float32, h, w int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := jetColor(values[y*w+x])
			off := img.PixOffset(x, y)
			img.Pix[off] = uint8(c.R*255 + 0.5)
			img.Pix[off+1] = uint8(c.G*255 + 0.5)
			img.Pix[off+2] = uint8(c.B*255 + 0.5)
			img.Pix[off+3] = 255
		}
	}
	return img
}

// jetColor interpolates between adjacent jet stops for t in [0,1].
func jetColor(t float32) colorful.Color {
	if t <= 0 {
		return jetStops[0]
	}
	if t >= 1 {
		return jetStops[len(jetStops)-1]
	}
	pos := float64(t) * float64(len(jetStops)-1)
	i := int(pos)
	return jetStops[i].BlendRgb(jetStops[i+1], pos-float64(i))
}

// blend produces wBase*base + wHeat*heat per pixel, both images already at
// identical dimensions.
func blend(base, heat *image.NRGBA, wBase, wHeat float64) *image.NRGBA {
	bounds := base.Bounds()
	out := image.NewNRGBA(bounds)
	for i := 0; i < len(out.Pix); i += 4 {
		out.Pix[i] = clamp8(wBase*float64(base.Pix[i]) + wHeat*float64(heat.Pix[i]))
		out.Pix[i+1] = clamp8(wBase*float64(base.Pix[i+1]) + wHeat*float64(heat.Pix[i+1]))
		out.Pix[i+2] = clamp8(wBase*float64(base.Pix[i+2]) + wHeat*float64(heat.Pix[i+2]))
		out.Pix[i+3] = 255
	}
	return out
}

func clamp8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
