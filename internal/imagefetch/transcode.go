package imagefetch

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/camvault/camvault/internal/errors"
)

const (
	jpegStartQuality = 85
	jpegQualityStep  = 15
	jpegFloorQuality = 30
)

// transcode decodes the raw download, scales it down to fit the configured
// bounding box and re-encodes it as JPEG, lowering quality until the output
// fits under the target size. The result is written under a fresh name.
func (f *Fetcher) transcode(rawPath string, rawSize int64) (*Result, error) {
	file, err := os.Open(rawPath)
	if err != nil {
		return nil, f.compressionError(err, "open_raw")
	}
	img, format, err := image.Decode(file)
	if closeErr := file.Close(); closeErr != nil {
		f.logger.Debug("Failed to close raw download", "error", closeErr)
	}
	if err != nil {
		return nil, f.compressionError(fmt.Errorf("decode failed: %w", err), "decode")
	}

	scaled := f.scaleDown(img)
	bounds := scaled.Bounds()

	encoded, err := f.encodeUnderTarget(scaled)
	if err != nil {
		return nil, err
	}

	outPath := f.finalPath()
	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		return nil, errors.New(err).
			Component("imagefetch").
			Category(errors.CategoryFileIO).
			Context("operation", "write_final").
			Context("path", outPath).
			Build()
	}

	if f.debug {
		f.logger.Debug("Transcoded image",
			"source_format", format,
			"raw_bytes", rawSize,
			"final_bytes", len(encoded))
	}

	ratio := 1.0
	if len(encoded) > 0 {
		ratio = float64(rawSize) / float64(len(encoded))
	}
	return &Result{
		LocalPath:        outPath,
		Size:             int64(len(encoded)),
		Width:            bounds.Dx(),
		Height:           bounds.Dy(),
		CompressionRatio: ratio,
	}, nil
}

// scaleDown resizes img to fit within the configured bounding box while
// preserving aspect ratio. Images already inside the box pass through
// untouched; nothing is ever upscaled.
func (f *Fetcher) scaleDown(img image.Image) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW <= f.maxWidth && srcH <= f.maxHeight {
		return img
	}

	scaleW := float64(f.maxWidth) / float64(srcW)
	scaleH := float64(f.maxHeight) / float64(srcH)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}

	dstW := int(float64(srcW) * scale)
	dstH := int(float64(srcH) * scale)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// encodeUnderTarget re-encodes the image as JPEG, stepping the quality down
// until the output fits the target byte size or the quality floor is reached.
func (f *Fetcher) encodeUnderTarget(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	for quality := jpegStartQuality; ; quality -= jpegQualityStep {
		if quality < jpegFloorQuality {
			quality = jpegFloorQuality
		}

		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, f.compressionError(err, "jpeg_encode")
		}
		if int64(buf.Len()) <= f.targetFileSize {
			return buf.Bytes(), nil
		}
		if quality == jpegFloorQuality {
			return nil, f.compressionError(
				fmt.Errorf("image is %d bytes at quality %d, target is %d",
					buf.Len(), quality, f.targetFileSize), "target_size")
		}
	}
}

func (f *Fetcher) compressionError(err error, operation string) error {
	return errors.New(err).
		Component("imagefetch").
		Category(errors.CategoryImageCompression).
		Context("operation", operation).
		Build()
}
