package compose

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
)

const (
	// DefaultJPEGQuality matches the quality most imaging libraries use when
	// none is given.
	DefaultJPEGQuality = 75

	maxJPEGQuality = 100
	outputFileMode = 0o644
)

// WriteJPEG encodes img as a JPEG file at path, replacing any existing file.
func WriteJPEG(path string, img image.Image, quality int) (err error) {
	if quality <= 0 || quality > maxJPEGQuality {
		quality = DefaultJPEGQuality
	}

	file, createErr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, outputFileMode)
	if createErr != nil {
		return fmt.Errorf("could not create %s: %w", path, createErr)
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			err = errors.Join(err, fmt.Errorf("could not close %s: %w", path, closeErr))
		}
	}()

	encodeErr := jpeg.Encode(file, img, &jpeg.Options{Quality: quality})
	if encodeErr != nil {
		return fmt.Errorf("could not encode %s: %w", path, encodeErr)
	}

	return nil
}
