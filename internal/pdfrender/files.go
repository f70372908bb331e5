package pdfrender

import (
	"fmt"
	"image"
	_ "image/png" // Rasterizers write PNG pages.
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	// defaultDirMode is the default permissions for created directories.
	defaultDirMode = 0o750
)

// DiscoverPDFs finds all PDF files in a given directory, sorted by path.
// It performs a case-insensitive search and does not recurse into subdirectories.
func DiscoverPDFs(dirPath string) ([]string, error) {
	dirEntries, readErr := os.ReadDir(dirPath)
	if readErr != nil {
		return nil, fmt.Errorf(
			"could not read directory %s: %w",
			dirPath,
			readErr,
		)
	}

	var pdfPaths []string

	for _, entry := range dirEntries {
		// Ensure we only process files, not directories.
		if !entry.IsDir() &&
			strings.HasSuffix(strings.ToLower(entry.Name()), ".pdf") {

			pdfPaths = append(pdfPaths, filepath.Join(dirPath, entry.Name()))
		}
	}

	slices.Sort(pdfPaths)

	return pdfPaths, nil
}

// ensureOutputDirectory creates the output folder if it does not exist yet.
func ensureOutputDirectory(outputDir string) error {
	mkdirErr := os.MkdirAll(outputDir, defaultDirMode)
	if mkdirErr != nil {
		return fmt.Errorf(
			"failed to create output directory %s: %w",
			outputDir,
			mkdirErr,
		)
	}

	return nil
}

// newWorkspace creates a scratch directory for the rendered pages of one PDF.
func newWorkspace(pdfPath string) (string, error) {
	workDir, err := os.MkdirTemp("", fmt.Sprintf("pdf-%s-", pdfStem(pdfPath)))
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}

	return workDir, nil
}

// pdfStem returns the file name of pdfPath without directory or extension.
func pdfStem(pdfPath string) string {
	return strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
}

// loadPageImages decodes the rendered pages of one group.
func loadPageImages(paths []string) ([]image.Image, error) {
	pages := make([]image.Image, 0, len(paths))

	for _, path := range paths {
		page, err := loadImage(path)
		if err != nil {
			return nil, err
		}

		pages = append(pages, page)
	}

	return pages, nil
}

// loadImage opens and decodes an image file.
func loadImage(filePath string) (image.Image, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("could not open file %s: %w", filePath, err)
	}

	defer func() {
		_ = file.Close()
	}()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf(
			"could not decode image file %s: %w",
			filePath,
			err,
		)
	}

	return img, nil
}
