// Command pdf-to-jpeg merges the pages of every PDF in a folder into JPEG
// strips, a fixed number of pages side by side per image.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/book-expert/pdf-to-jpeg-service/internal/pdfrender"
)

type configPaths struct {
	InputDir   string `toml:"input_dir"`
	OutputDir  string `toml:"output_dir"`
	PopplerDir string `toml:"poppler_dir"`
}

type configLogsDir struct {
	PDFToJPEG string `toml:"pdf_to_jpeg"`
}

type configSettings struct {
	Backend     string `toml:"backend"`
	DPI         int    `toml:"dpi"`
	Workers     int    `toml:"workers"`
	JPEGQuality int    `toml:"jpeg_quality"`
}

type configLayout struct {
	// HorizontalGap is a pointer so an explicit 0 can be told apart from unset.
	HorizontalGap *int `toml:"horizontal_gap"`
	PagesPerImage int  `toml:"pages_per_image"`
}

// config represents the structure of the project.toml file.
type config struct {
	Paths    configPaths    `toml:"paths"`
	LogsDir  configLogsDir  `toml:"logs_dir"`
	Settings configSettings `toml:"settings"`
	Layout   configLayout   `toml:"layout"`
}

// flags represents the command-line arguments. changed holds the names of the
// flags given explicitly, which are the only ones that override the config file.
type flags struct {
	changed         map[string]bool
	inputPath       string
	outputPath      string
	popplerPath     string
	backend         string
	dpi             int
	pagesPerImage   int
	gap             int
	workers         int
	quality         int
	continueOnError bool
}

const configFileName = "project.toml"

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)

	err := newRootCommand().ExecuteContext(ctx)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the CLI. The defaults reproduce the fixed layout:
// pdfData/ in, output_images/ out, three pages per image, 50px gap, 300 DPI.
func newRootCommand() *cobra.Command {
	defaults := pdfrender.DefaultOptions()

	var flgs flags

	cmd := &cobra.Command{
		Use:   "pdf-to-jpeg",
		Short: "Convert PDFs to JPEG images with pages merged horizontally",
		Long: `pdf-to-jpeg rasterizes every PDF in the input folder and writes one JPEG per
group of pages, the pages of a group laid side by side with a white gap.
Output files are named <pdf>_output_001.jpg, <pdf>_output_002.jpg, ...

Settings are read from project.toml at the project root when present;
flags given on the command line take precedence.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flgs.changed = changedFlags(cmd.Flags())

			return run(cmd.Context(), flgs, cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()
	fs.IntVar(&flgs.dpi, "dpi", defaults.DPI, "Resolution for PDF conversion.")
	fs.StringVar(&flgs.inputPath, "input", defaults.InputPath, "Directory containing the PDF files.")
	fs.StringVar(&flgs.outputPath, "output", defaults.OutputPath, "Directory for the merged JPEG files.")
	fs.IntVar(&flgs.pagesPerImage, "pages-per-image", defaults.PagesPerImage, "Number of pages merged into one image.")
	fs.IntVar(&flgs.gap, "gap", defaults.Gap, "Horizontal gap in pixels between pages.")
	fs.StringVar(&flgs.popplerPath, "poppler-path", "", "Directory holding pdftoppm and pdfinfo (default: PATH).")
	fs.StringVar(&flgs.backend, "backend", string(defaults.Backend), "Rasterizer: pdftoppm or ghostscript.")
	fs.IntVar(&flgs.workers, "workers", defaults.Workers, "Number of pages rendered concurrently.")
	fs.IntVar(&flgs.quality, "quality", defaults.JPEGQuality, "JPEG quality (1-100).")
	fs.BoolVar(&flgs.continueOnError, "continue-on-error", false, "Keep converting the remaining PDFs after a failure.")

	return cmd
}

func changedFlags(fs *pflag.FlagSet) map[string]bool {
	changed := make(map[string]bool)
	fs.Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	return changed
}

// run is the main logic function, separated from main to allow for easier testing and
// clean exit handling.
func run(ctx context.Context, flgs flags, out io.Writer) error {
	projectRoot, configPath := locateProject()

	cfg, err := safeLoadConfig(configPath)
	if err != nil {
		return err
	}

	options := mergeConfigAndFlags(&cfg, flgs, projectRoot)

	return processWithLogger(ctx, &options, cfg.LogsDir.PDFToJPEG, projectRoot, out)
}

// locateProject finds the project root holding project.toml, falling back to
// the working directory so the tool also runs outside a project.
func locateProject() (string, string) {
	projectRoot, configPath, err := configurator.FindProjectRoot(".")
	if err != nil {
		return ".", configFileName
	}

	return projectRoot, configPath
}

// safeLoadConfig loads the TOML config, allowing missing file without error.
func safeLoadConfig(path string) (config, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			var emptyCfg config

			return emptyCfg, nil
		}

		return config{}, fmt.Errorf("error loading config file: %w", err)
	}

	return cfg, nil
}

// loadConfig reads and parses the project.toml file.
func loadConfig(path string) (config, error) {
	var cfg config

	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		var zero config

		return zero, fmt.Errorf("failed to decode config file: %w", err)
	}

	return cfg, nil
}

// mergeConfigAndFlags layers defaults, the config file and explicit flags, in
// increasing order of precedence. Relative config paths resolve against the
// project root.
func mergeConfigAndFlags(cfg *config, flgs flags, projectRoot string) pdfrender.Options {
	opts := pdfrender.DefaultOptions()
	opts.ProgressBarOutput = nil

	applyConfig(&opts, cfg, projectRoot)

	overrideString(&opts.InputPath, flgs, "input", flgs.inputPath)
	overrideString(&opts.OutputPath, flgs, "output", flgs.outputPath)
	overrideString(&opts.PopplerPath, flgs, "poppler-path", flgs.popplerPath)
	overrideInt(&opts.DPI, flgs, "dpi", flgs.dpi)
	overrideInt(&opts.PagesPerImage, flgs, "pages-per-image", flgs.pagesPerImage)
	overrideInt(&opts.Gap, flgs, "gap", flgs.gap)
	overrideInt(&opts.Workers, flgs, "workers", flgs.workers)
	overrideInt(&opts.JPEGQuality, flgs, "quality", flgs.quality)

	if flgs.changed["backend"] {
		opts.Backend = pdfrender.Backend(flgs.backend)
	}

	if flgs.changed["continue-on-error"] {
		opts.ContinueOnError = flgs.continueOnError
	}

	return opts
}

func applyConfig(opts *pdfrender.Options, cfg *config, projectRoot string) {
	if cfg.Paths.InputDir != "" {
		opts.InputPath = resolvePath(projectRoot, cfg.Paths.InputDir)
	}

	if cfg.Paths.OutputDir != "" {
		opts.OutputPath = resolvePath(projectRoot, cfg.Paths.OutputDir)
	}

	if cfg.Paths.PopplerDir != "" {
		opts.PopplerPath = cfg.Paths.PopplerDir
	}

	if cfg.Settings.Backend != "" {
		opts.Backend = pdfrender.Backend(cfg.Settings.Backend)
	}

	if cfg.Settings.DPI > 0 {
		opts.DPI = cfg.Settings.DPI
	}

	if cfg.Settings.Workers > 0 {
		opts.Workers = cfg.Settings.Workers
	}

	if cfg.Settings.JPEGQuality > 0 {
		opts.JPEGQuality = cfg.Settings.JPEGQuality
	}

	if cfg.Layout.PagesPerImage > 0 {
		opts.PagesPerImage = cfg.Layout.PagesPerImage
	}

	if cfg.Layout.HorizontalGap != nil {
		opts.Gap = *cfg.Layout.HorizontalGap
	}
}

func resolvePath(projectRoot, path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(projectRoot, path)
}

func overrideString(target *string, flgs flags, name, value string) {
	if flgs.changed[name] {
		*target = value
	}
}

func overrideInt(target *int, flgs flags, name string, value int) {
	if flgs.changed[name] {
		*target = value
	}
}

// processWithLogger sets up the logger and runs the processor.
func processWithLogger(
	ctx context.Context,
	options *pdfrender.Options,
	logDir, projectRoot string,
	out io.Writer,
) error {
	log, err := setupLogger(projectRoot, logDir)
	if err != nil {
		return fmt.Errorf("could not set up logger: %w", err)
	}

	defer func() {
		cerr := log.Close()
		if cerr != nil {
			_, _ = fmt.Fprintf(
				os.Stderr,
				"failed to close logger: %v\n",
				cerr,
			)
		}
	}()

	processor := pdfrender.NewProcessor(options, log)

	results, procErr := processor.Process(ctx)
	reportResults(out, results)

	if procErr != nil {
		return fmt.Errorf("PDF processing failed: %w", procErr)
	}

	if len(results) == 0 {
		_, _ = fmt.Fprintln(out, "No PDF files found.")

		return nil
	}

	_, _ = fmt.Fprintln(out, "All processing completed!")

	return nil
}

func reportResults(out io.Writer, results []pdfrender.Result) {
	for _, result := range results {
		_, _ = fmt.Fprintf(out, "Processed: %s\n", result.PDFPath)

		for _, output := range result.Outputs {
			_, _ = fmt.Fprintf(out, "  Saved horizontal merged image: %s\n", output)
		}
	}
}

// setupLogger initializes the logger, creating the log directory if needed.
func setupLogger(projectRoot, logDirConfig string) (*logger.Logger, error) {
	logDir := logDirConfig
	if logDir == "" {
		logDir = filepath.Join(projectRoot, "logs", "pdf_to_jpeg")
	}

	logFileName := fmt.Sprintf("log_%s.log", time.Now().Format("20060102_150405"))

	log, err := logger.New(logDir, logFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}
