// Package pdfrender converts PDF files into horizontally merged JPEG images.
package pdfrender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/book-expert/logger"
	"github.com/cheggaaa/pb/v3"

	"github.com/book-expert/pdf-to-jpeg-service/internal/compose"
)

var (
	// ErrInputPathRequired is returned when input path is not provided.
	ErrInputPathRequired = errors.New("input path is required")
	// ErrOutputPathRequired is returned when output path is not provided.
	ErrOutputPathRequired = errors.New("output path is required")
	// ErrInvalidPagesPerImage is returned when the group size is negative.
	ErrInvalidPagesPerImage = errors.New("pages per image must be positive")
	// ErrNegativeGap is returned when the horizontal gap is negative.
	ErrNegativeGap = errors.New("gap must not be negative")
	// ErrUnknownBackend is returned for a rasterizer backend we cannot drive.
	ErrUnknownBackend = errors.New("unknown rasterizer backend")
	// ErrPDFZeroOrNegativePages is returned when a PDF has invalid page count.
	ErrPDFZeroOrNegativePages = errors.New(
		"pdf has zero or a negative number of pages",
	)
)

// Backend names the external program used to rasterize pages.
type Backend string

const (
	// BackendPdftoppm renders with poppler's pdftoppm and counts pages with pdfinfo.
	BackendPdftoppm Backend = "pdftoppm"
	// BackendGhostscript renders with Ghostscript and counts pages with pdfcpu.
	BackendGhostscript Backend = "ghostscript"
)

const (
	// DefaultInputPath is the folder scanned for PDFs when none is configured.
	DefaultInputPath = "pdfData"
	// DefaultOutputPath is the folder merged images are written to.
	DefaultOutputPath = "output_images"
	// DefaultPagesPerImage is the number of pages merged into one image.
	DefaultPagesPerImage = 3
	// DefaultDPI is the rasterization resolution.
	DefaultDPI = 300
	// DefaultGap is the pixel spacing between pages of one image.
	DefaultGap = 50
)

// Options holds all configurable parameters for a Processor.
type Options struct {
	// ProgressBarOutput is where progress bars are drawn. Defaults to os.Stdout.
	ProgressBarOutput io.Writer
	// InputPath is the directory scanned (non-recursively) for PDF files.
	InputPath string
	// OutputPath receives the merged JPEG files. It is created on first use.
	OutputPath string
	// PopplerPath is the directory holding pdftoppm and pdfinfo. Empty means
	// look them up on PATH.
	PopplerPath string
	// Backend selects the rasterizer. Defaults to BackendPdftoppm.
	Backend Backend
	// PagesPerImage is the number of consecutive pages merged per image.
	PagesPerImage int
	// DPI is the rasterization resolution.
	DPI int
	// Gap is the number of white pixels between adjacent pages. Zero is valid,
	// so it is never defaulted; use DefaultOptions for the standard layout.
	Gap int
	// Workers bounds how many pages of one PDF are rendered concurrently.
	Workers int
	// JPEGQuality is the encoder quality, 1 to 100.
	JPEGQuality int
	// ContinueOnError keeps the batch going after a PDF fails. By default the
	// first failure stops the batch.
	ContinueOnError bool
}

// DefaultOptions returns the standard layout: three pages per image, 50px gap,
// 300 DPI, reading pdfData/ and writing output_images/.
func DefaultOptions() Options {
	return Options{
		ProgressBarOutput: os.Stdout,
		InputPath:         DefaultInputPath,
		OutputPath:        DefaultOutputPath,
		PopplerPath:       "",
		Backend:           BackendPdftoppm,
		PagesPerImage:     DefaultPagesPerImage,
		DPI:               DefaultDPI,
		Gap:               DefaultGap,
		Workers:           runtime.NumCPU(),
		JPEGQuality:       compose.DefaultJPEGQuality,
		ContinueOnError:   false,
	}
}

// Result lists the images written for one PDF.
type Result struct {
	PDFPath string
	Outputs []string
}

// Processor encapsulates the logic for converting a batch of PDF files.
type Processor struct {
	executor CommandExecutor
	log      *logger.Logger
	config   Options
}

// NewProcessor creates and initializes a new Processor with the given options and logger.
// It sets sensible defaults for any zero-value fields in the Options struct.
func NewProcessor(opts *Options, log *logger.Logger) *Processor {
	applyDefaultOptions(opts)

	return &Processor{
		config:   *opts,
		log:      log,
		executor: &defaultExecutor{}, // Use the real command executor by default.
	}
}

// applyDefaultOptions fills zero-value fields in Options with sensible defaults.
func applyDefaultOptions(opts *Options) {
	opts.DPI = defaultIntNonPositive(opts.DPI, DefaultDPI)
	opts.Workers = defaultIntNonPositive(opts.Workers, runtime.NumCPU())
	opts.JPEGQuality = defaultIntNonPositive(opts.JPEGQuality, compose.DefaultJPEGQuality)

	if opts.PagesPerImage == 0 {
		opts.PagesPerImage = DefaultPagesPerImage
	}

	if opts.Backend == "" {
		opts.Backend = BackendPdftoppm
	}

	opts.ProgressBarOutput = defaultWriterNil(opts.ProgressBarOutput, os.Stdout)
}

func defaultIntNonPositive(v, def int) int {
	if v <= 0 {
		return def
	}

	return v
}

func defaultWriterNil(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}

	return w
}

// Process converts every PDF in the input directory, in sorted order.
// An empty or missing input directory is not an error: nothing is written and
// the output directory is left untouched.
func (processor *Processor) Process(ctx context.Context) ([]Result, error) {
	// Step 1: Validate the configuration before starting any work.
	err := processor.validateConfig()
	if err != nil {
		return nil, err
	}

	// Step 2: Discover all PDF files in the input directory.
	pdfPaths, err := processor.discoverInputPDFs()
	if err != nil {
		return nil, err
	}

	if len(pdfPaths) == 0 {
		processor.log.Info("No PDF files found in %s.", processor.config.InputPath)

		return nil, nil
	}

	// Step 3: Convert each discovered PDF file.
	processor.log.Info("Found %d PDF(s) to process.", len(pdfPaths))

	results, err := processor.processAllPDFs(ctx, pdfPaths)
	if err != nil {
		return results, err
	}

	processor.log.Success("All processing completed!")

	return results, nil
}

// discoverInputPDFs lists the PDFs to convert. A missing directory yields none.
func (processor *Processor) discoverInputPDFs() ([]string, error) {
	pdfPaths, discoveryErr := DiscoverPDFs(processor.config.InputPath)
	if discoveryErr != nil {
		if errors.Is(discoveryErr, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to discover PDFs: %w", discoveryErr)
	}

	return pdfPaths, nil
}

// validateConfig checks if the essential configuration options have been provided.
func (processor *Processor) validateConfig() error {
	if processor.config.InputPath == "" {
		return ErrInputPathRequired
	}

	return processor.validateConversion()
}

// validateConversion checks the options Convert depends on.
func (processor *Processor) validateConversion() error {
	if processor.config.OutputPath == "" {
		return ErrOutputPathRequired
	}

	if processor.config.PagesPerImage < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidPagesPerImage, processor.config.PagesPerImage)
	}

	if processor.config.Gap < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeGap, processor.config.Gap)
	}

	switch processor.config.Backend {
	case BackendPdftoppm, BackendGhostscript:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, processor.config.Backend)
	}
}

// processAllPDFs converts each PDF in turn. The first failure stops the batch
// unless ContinueOnError is set, in which case all failures are joined.
func (processor *Processor) processAllPDFs(
	ctx context.Context,
	pdfPaths []string,
) ([]Result, error) {
	mainProgressBar := pb.New(len(pdfPaths)).
		SetTemplateString(`{{ bar . " " "━" "━" " " " "}} {{percent .}} {{rtime .}}`).
		SetWriter(processor.config.ProgressBarOutput).
		Start()
	defer mainProgressBar.Finish()

	results := make([]Result, 0, len(pdfPaths))

	var failures []error

	for _, pdfPath := range pdfPaths {
		mainProgressBar.Increment()
		processor.log.Info("Processing: %s", pdfPath)

		outputs, convertErr := processor.Convert(ctx, pdfPath)
		if convertErr != nil {
			processor.log.Error("Failed to process %s: %v", filepath.Base(pdfPath), convertErr)

			wrapped := fmt.Errorf("%s: %w", pdfPath, convertErr)
			if !processor.config.ContinueOnError {
				return results, wrapped
			}

			failures = append(failures, wrapped)

			continue
		}

		processor.log.Success("Successfully processed %s", filepath.Base(pdfPath))
		results = append(results, Result{PDFPath: pdfPath, Outputs: outputs})
	}

	return results, errors.Join(failures...)
}

// Convert rasterizes every page of pdfPath and writes one merged JPEG per
// group of PagesPerImage pages into OutputPath, returning the written paths in
// page order.
func (processor *Processor) Convert(ctx context.Context, pdfPath string) ([]string, error) {
	validateErr := processor.validateConversion()
	if validateErr != nil {
		return nil, validateErr
	}

	mkdirErr := ensureOutputDirectory(processor.config.OutputPath)
	if mkdirErr != nil {
		return nil, mkdirErr
	}

	// Determine the total number of pages in the PDF.
	pageCount, pageCountErr := processor.getPDFPages(ctx, pdfPath)
	if pageCountErr != nil {
		return nil, fmt.Errorf("could not get page count: %w", pageCountErr)
	}

	if pageCount <= 0 {
		return nil, ErrPDFZeroOrNegativePages
	}

	workDir, workDirErr := newWorkspace(pdfPath)
	if workDirErr != nil {
		return nil, workDirErr
	}

	defer func() {
		removeErr := os.RemoveAll(workDir)
		if removeErr != nil {
			processor.log.Warn("Failed to remove temp directory '%s': %v", workDir, removeErr)
		}
	}()

	processor.log.Info("Rendering %d pages of %s at %d DPI", pageCount, filepath.Base(pdfPath), processor.config.DPI)

	pagePaths, renderErr := newPageProcessor(processor, workDir).processPages(ctx, pdfPath, pageCount)
	if renderErr != nil {
		return nil, fmt.Errorf("could not rasterize %s: %w", filepath.Base(pdfPath), renderErr)
	}

	return processor.mergePages(pdfStem(pdfPath), pagePaths)
}

// mergePages composes the rendered pages group by group. Only one group's
// rasters are decoded at a time.
func (processor *Processor) mergePages(stem string, pagePaths []string) ([]string, error) {
	groups, partitionErr := compose.Partition(len(pagePaths), processor.config.PagesPerImage)
	if partitionErr != nil {
		return nil, fmt.Errorf("could not group pages: %w", partitionErr)
	}

	outputs := make([]string, 0, len(groups))

	for _, group := range groups {
		pages, loadErr := loadPageImages(pagePaths[group.Start:group.End()])
		if loadErr != nil {
			return outputs, loadErr
		}

		canvas, composeErr := compose.Compose(pages, processor.config.Gap)
		if composeErr != nil {
			return outputs, fmt.Errorf("could not compose image %d: %w", group.Index, composeErr)
		}

		outputPath := filepath.Join(processor.config.OutputPath, compose.OutputName(stem, group.Index))

		writeErr := compose.WriteJPEG(outputPath, canvas, processor.config.JPEGQuality)
		if writeErr != nil {
			return outputs, writeErr
		}

		processor.log.Info("Saved horizontal merged image: %s", outputPath)
		outputs = append(outputs, outputPath)
	}

	return outputs, nil
}
