package pdfrender

import "context"

// Exported test-only accessors for unexported functions and fields.
// This file is compiled only during tests and does not affect the public API.

// ParsePdfInfoOutputForTest exposes parsePdfInfoOutput for tests in external package.
func ParsePdfInfoOutputForTest(s string) (int, error) { return parsePdfInfoOutput(s) }

// BuildPdftoppmArgsForTest exposes buildPdftoppmArgs.
func BuildPdftoppmArgsForTest(dpi, page int, outPath, pdfPath string) []string {
	return buildPdftoppmArgs(dpi, page, outPath, pdfPath)
}

// BuildGhostscriptArgsForTest exposes buildGhostscriptArgs.
func BuildGhostscriptArgsForTest(dpi, page int, outPath, pdfPath string) []string {
	return buildGhostscriptArgs(dpi, page, outPath, pdfPath)
}

// CountPagesWithPdfcpuForTest exposes countPagesWithPdfcpu.
func CountPagesWithPdfcpuForTest(pdfPath string) (int, error) {
	return countPagesWithPdfcpu(pdfPath)
}

// ConfigForTest returns a copy of the processor configuration for assertions in tests.
func (processor *Processor) ConfigForTest() Options { return processor.config }

func (processor *Processor) ValidateConfigForTest() error { return processor.validateConfig() }

func (processor *Processor) GetPDFPagesForTest(ctx context.Context, path string) (int, error) {
	return processor.getPDFPages(ctx, path)
}

// Allow tests to inject a fake executor.
func (processor *Processor) SetExecutorForTest(
	exec CommandExecutor,
) {
	processor.executor = exec
}
