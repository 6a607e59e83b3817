// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipelines

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"

	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/antflydb/taskpipe/lib/backends"
)

// ImageConfig holds the preprocessing parameters of an ImageProcessor.
type ImageConfig struct {
	// Width and Height are the model's input resolution.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Channels is the number of color channels (3 for RGB).
	Channels int `json:"channels"`

	// RescaleFactor scales raw 0-255 pixel values (usually 1/255).
	RescaleFactor float32 `json:"rescale_factor"`

	// Mean and Std are per-channel normalization parameters.
	Mean [3]float32 `json:"image_mean"`
	Std  [3]float32 `json:"image_std"`

	// DoCenterCrop crops a CropSize square from the center before resizing.
	DoCenterCrop bool `json:"do_center_crop"`
	CropSize     int  `json:"crop_size"`
}

// DefaultImageConfig returns ImageNet-style preprocessing at 224x224.
func DefaultImageConfig() *ImageConfig {
	return &ImageConfig{
		Width:         224,
		Height:        224,
		Channels:      3,
		RescaleFactor: 1.0 / 255.0,
		Mean:          [3]float32{0.485, 0.456, 0.406},
		Std:           [3]float32{0.229, 0.224, 0.225},
	}
}

// ImageProcessor converts decoded images into normalized NCHW pixel tensors.
// It implements backends.Processor.
type ImageProcessor struct {
	config *ImageConfig
}

// NewImageProcessor constructs an ImageProcessor. A nil config uses
// DefaultImageConfig.
func NewImageProcessor(config *ImageConfig) *ImageProcessor {
	if config == nil {
		config = DefaultImageConfig()
	}
	return &ImageProcessor{config: config}
}

// FeatureExtractorConfig returns nil extraction parameters: image processors
// carry no audio configuration.
func (ip *ImageProcessor) FeatureExtractorConfig() *backends.FeatureExtractorConfig {
	return &backends.FeatureExtractorConfig{}
}

// Process converts a batch of images into pixel values
// [batch, channels, height, width] flattened.
func (ip *ImageProcessor) Process(ctx context.Context, batch *backends.MediaBatch) (*backends.ModelInputs, error) {
	if len(batch.Images) == 0 {
		return nil, &backends.ValidationError{Field: "images", Reason: "batch is empty"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, h, w := ip.config.Channels, ip.config.Height, ip.config.Width
	pixels := make([]float32, len(batch.Images)*c*h*w)

	for i, img := range batch.Images {
		if ip.config.DoCenterCrop && ip.config.CropSize > 0 {
			img = centerCrop(img, ip.config.CropSize)
		}
		img = resizeBilinear(img, w, h)
		copy(pixels[i*c*h*w:], ip.toTensor(img))
	}

	return &backends.ModelInputs{
		PixelValues:   pixels,
		ImageBatch:    len(batch.Images),
		ImageChannels: c,
		ImageHeight:   h,
		ImageWidth:    w,
	}, nil
}

// DecodeImage decodes an image in any registered format.
func DecodeImage(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// toTensor rescales and normalizes an image into NCHW layout.
func (ip *ImageProcessor) toTensor(img image.Image) []float32 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	pixels := make([]float32, ip.config.Channels*height*width)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			rf := float32(r>>8) * ip.config.RescaleFactor
			gf := float32(g>>8) * ip.config.RescaleFactor
			bf := float32(b>>8) * ip.config.RescaleFactor

			pixels[0*height*width+y*width+x] = (rf - ip.config.Mean[0]) / ip.config.Std[0]
			pixels[1*height*width+y*width+x] = (gf - ip.config.Mean[1]) / ip.config.Std[1]
			pixels[2*height*width+y*width+x] = (bf - ip.config.Mean[2]) / ip.config.Std[2]
		}
	}
	return pixels
}

// centerCrop crops a size x size square from the image's center, shrinking
// the crop to fit small images.
func centerCrop(img image.Image, size int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	cropW, cropH := size, size
	if width < cropW {
		cropW = width
	}
	if height < cropH {
		cropH = height
	}

	return cropImage(img, (width-cropW)/2, (height-cropH)/2, cropW, cropH)
}

func cropImage(img image.Image, x, y, width, height int) image.Image {
	bounds := img.Bounds()
	cropped := image.NewRGBA(image.Rect(0, 0, width, height))

	for dy := 0; dy < height; dy++ {
		for dx := 0; dx < width; dx++ {
			srcX := bounds.Min.X + x + dx
			srcY := bounds.Min.Y + y + dy
			if srcX < bounds.Max.X && srcY < bounds.Max.Y {
				cropped.Set(dx, dy, img.At(srcX, srcY))
			}
		}
	}
	return cropped
}

// resizeBilinear resizes an image with bilinear interpolation.
func resizeBilinear(img image.Image, targetWidth, targetHeight int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() == targetWidth && bounds.Dy() == targetHeight {
		return img
	}

	resized := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	xRatio := float64(bounds.Dx()) / float64(targetWidth)
	yRatio := float64(bounds.Dy()) / float64(targetHeight)

	for y := 0; y < targetHeight; y++ {
		for x := 0; x < targetWidth; x++ {
			resized.Set(x, y, bilinearSample(img, float64(x)*xRatio, float64(y)*yRatio, bounds))
		}
	}
	return resized
}

func bilinearSample(img image.Image, x, y float64, bounds image.Rectangle) color.Color {
	x0, y0 := int(x), int(y)
	x1, y1 := x0+1, y0+1

	if x0 < bounds.Min.X {
		x0 = bounds.Min.X
	}
	if y0 < bounds.Min.Y {
		y0 = bounds.Min.Y
	}
	if x1 >= bounds.Max.X {
		x1 = bounds.Max.X - 1
	}
	if y1 >= bounds.Max.Y {
		y1 = bounds.Max.Y - 1
	}

	r00, g00, b00, a00 := img.At(x0, y0).RGBA()
	r01, g01, b01, a01 := img.At(x0, y1).RGBA()
	r10, g10, b10, a10 := img.At(x1, y0).RGBA()
	r11, g11, b11, a11 := img.At(x1, y1).RGBA()

	xw := x - float64(x0)
	yw := y - float64(y0)

	lerp2 := func(v00, v01, v10, v11 uint32) uint16 {
		top := float64(v00)*(1-xw) + float64(v10)*xw
		bottom := float64(v01)*(1-xw) + float64(v11)*xw
		return uint16(top*(1-yw) + bottom*yw)
	}

	return color.RGBA64{
		R: lerp2(r00, r01, r10, r11),
		G: lerp2(g00, g01, g10, g11),
		B: lerp2(b00, b01, b10, b11),
		A: lerp2(a00, a01, a10, a11),
	}
}
