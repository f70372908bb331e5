package pdfrender

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cheggaaa/pb/v3"
)

// pageJob represents a single task for a worker to render one page of a PDF.
type pageJob struct {
	pdfPath    string
	outputPath string
	pageIndex  int
}

// pageProcessor manages the concurrent rendering of pages for a single PDF file.
type pageProcessor struct {
	parent    *Processor // A reference back to the main processor for config and logging.
	outputDir string
	errOnce   sync.Once
	firstErr  error
}

// newPageProcessor creates a new processor for handling the pages of one PDF.
func newPageProcessor(parent *Processor, outputDir string) *pageProcessor {
	return &pageProcessor{
		parent:    parent,
		outputDir: outputDir,
	}
}

// processPages renders every page of pdfPath and returns the PNG paths in
// page order. Any failed page aborts the remaining work.
func (pp *pageProcessor) processPages(
	ctx context.Context,
	pdfPath string,
	pageCount int,
) ([]string, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	jobs := make(chan pageJob, pageCount)
	pagePaths := make([]string, pageCount)

	// Create a progress bar specifically for the pages of this PDF.
	pageProgressBar := pb.New(pageCount).
		SetTemplateString(`  {{ bar . " " "▸" "▹" " " " "}} {{percent .}} {{etime .}}`).
		SetWriter(pp.parent.config.ProgressBarOutput).
		Start()
	defer pageProgressBar.Finish()

	var waitGroup sync.WaitGroup

	// Start a pool of worker goroutines.
	for range min(pp.parent.config.Workers, pageCount) {
		waitGroup.Add(1)

		go pp.pageWorker(ctx, cancel, &waitGroup, jobs, pageProgressBar)
	}

	for i := 1; i <= pageCount; i++ {
		pngPath := filepath.Join(pp.outputDir, fmt.Sprintf("page_%04d.png", i))
		pagePaths[i-1] = pngPath
		jobs <- pageJob{
			pdfPath:    pdfPath,
			pageIndex:  i,
			outputPath: pngPath,
		}
	}

	close(jobs) // No more jobs will be sent.

	waitGroup.Wait() // Wait for all workers to finish.

	if pp.firstErr != nil {
		return nil, pp.firstErr
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("rendering interrupted: %w", ctxErr)
	}

	return pagePaths, nil
}

// pageWorker pulls jobs until the channel is drained or the context ends.
func (pp *pageProcessor) pageWorker(
	ctx context.Context,
	cancel context.CancelCauseFunc,
	waitGroup *sync.WaitGroup,
	jobs <-chan pageJob,
	progress *pb.ProgressBar,
) {
	defer waitGroup.Done()

	for job := range jobs {
		if ctx.Err() != nil {
			return
		}

		renderErr := pp.parent.renderPage(ctx, job.pdfPath, job.pageIndex, job.outputPath)
		if renderErr != nil {
			pp.fail(cancel, fmt.Errorf("page %d: %w", job.pageIndex, renderErr))

			return
		}

		progress.Increment()
	}
}

// fail records the first page error and stops the other workers.
func (pp *pageProcessor) fail(cancel context.CancelCauseFunc, err error) {
	pp.errOnce.Do(func() {
		pp.firstErr = err
		cancel(err)
	})
}
