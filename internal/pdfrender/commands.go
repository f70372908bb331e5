package pdfrender

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

const (
	pdftoppmBinary    = "pdftoppm"
	pdfinfoBinary     = "pdfinfo"
	ghostscriptBinary = "gs"
)

var (
	errEmptyPDFPath  = errors.New("pdf path cannot be empty")
	errPagesNotFound = errors.New("could not parse 'Pages:' line from pdfinfo output")
)

// CommandExecutor defines an interface for running external commands.
// Tests substitute a fake so no rasterizer needs to be installed.
type CommandExecutor interface {
	// Run executes a command and returns its standard output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// RunCombined executes a command and returns its combined standard output and
	// standard error.
	RunCombined(ctx context.Context, name string, args ...string) ([]byte, error)
}

// defaultExecutor implements the CommandExecutor interface using the standard os/exec
// package.
type defaultExecutor struct{}

// Run is the production implementation for executing a command.
func (executor *defaultExecutor) Run(
	ctx context.Context,
	name string,
	args ...string,
) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// RunCombined is the production implementation for executing a command and capturing all
// output.
func (executor *defaultExecutor) RunCombined(
	ctx context.Context,
	name string,
	args ...string,
) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// popplerBinary resolves a poppler tool, honouring PopplerPath when set.
func (processor *Processor) popplerBinary(name string) string {
	if processor.config.PopplerPath == "" {
		return name
	}

	return filepath.Join(processor.config.PopplerPath, name)
}

// getPDFPages returns the number of pages in a PDF using the counter that
// matches the configured backend.
func (processor *Processor) getPDFPages(
	ctx context.Context,
	pdfPath string,
) (int, error) {
	if pdfPath == "" {
		return 0, errEmptyPDFPath
	}

	if processor.config.Backend == BackendGhostscript {
		return countPagesWithPdfcpu(pdfPath)
	}

	// The `pdfinfo` command prints metadata, including the page count, to stdout.
	outputBytes, execErr := processor.executor.Run(ctx, processor.popplerBinary(pdfinfoBinary), pdfPath)
	if execErr != nil {
		return 0, fmt.Errorf(
			"pdfinfo execution failed: %w. Output: %s",
			execErr,
			string(outputBytes),
		)
	}

	return parsePdfInfoOutput(string(outputBytes))
}

// countPagesWithPdfcpu reads the page tree in-process, for setups without poppler.
func countPagesWithPdfcpu(pdfPath string) (int, error) {
	pageCount, err := api.PageCountFile(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu could not read %s: %w", pdfPath, err)
	}

	return pageCount, nil
}

// parsePdfInfoOutput scans the text output from the `pdfinfo` command to find and parse
// the page count.
func parsePdfInfoOutput(output string) (int, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "Pages:") {
			parts := strings.Fields(line) // e.g., ["Pages:", "123"]
			if len(parts) >= 2 {
				pageCount, convErr := strconv.Atoi(parts[1])
				if convErr == nil {
					return pageCount, nil
				}
			}
		}
	}

	return 0, errPagesNotFound
}

// renderPage rasterizes one page (1-based) of pdfPath into the PNG file outPath.
func (processor *Processor) renderPage(
	ctx context.Context,
	pdfPath string,
	page int,
	outPath string,
) error {
	if page <= 0 {
		return errors.New("page number must be positive")
	}

	if pdfPath == "" || outPath == "" {
		return errors.New("pdf path and output path cannot be empty")
	}

	name := processor.popplerBinary(pdftoppmBinary)
	args := buildPdftoppmArgs(processor.config.DPI, page, outPath, pdfPath)

	if processor.config.Backend == BackendGhostscript {
		name = ghostscriptBinary
		args = buildGhostscriptArgs(processor.config.DPI, page, outPath, pdfPath)
	}

	outputBytes, execErr := processor.executor.RunCombined(ctx, name, args...)
	if execErr != nil {
		return fmt.Errorf(
			"%s execution failed: %w. Output: %s",
			filepath.Base(name),
			execErr,
			string(outputBytes),
		)
	}

	return nil
}

// buildPdftoppmArgs renders a single page to outPath. pdftoppm appends the
// ".png" suffix itself, so it is given the path without it.
func buildPdftoppmArgs(dpi, page int, outPath, pdfPath string) []string {
	return []string{
		"-r", strconv.Itoa(dpi),
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-png",
		"-singlefile", // No page-number suffix on the output name.
		pdfPath,
		strings.TrimSuffix(outPath, ".png"),
	}
}

// buildGhostscriptArgs constructs the list of command-line arguments for the Ghostscript
// process.
func buildGhostscriptArgs(dpi, page int, outPath, pdfPath string) []string {
	return []string{
		"-q", "-dNOPAUSE", "-dBATCH", // Quiet mode, non-interactive batch processing.
		"-sDEVICE=png16m",                   // 24-bit color PNG.
		fmt.Sprintf("-r%d", dpi),            // Set the resolution in DPI.
		fmt.Sprintf("-dFirstPage=%d", page), // Specify the page number to render.
		fmt.Sprintf("-dLastPage=%d", page),  // Process only that single page.
		"-o", outPath,
		"-dTextAlphaBits=4",
		"-dGraphicsAlphaBits=4",
		pdfPath,
	}
}
