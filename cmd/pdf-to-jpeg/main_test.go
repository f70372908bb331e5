package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/pdf-to-jpeg-service/internal/pdfrender"
)

func intPtr(v int) *int { return &v }

// TestMergeConfigAndFlags verifies that command-line flags correctly override config file
// settings.
func TestMergeConfigAndFlags(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name            string
		projectRoot     string
		flags           flags
		expectedOptions pdfrender.Options
		baseConfig      config
	}{
		{
			name:        "No config and no flags gives the fixed layout",
			baseConfig:  config{},
			flags:       flags{},
			projectRoot: "/root",
			expectedOptions: pdfrender.Options{
				InputPath:     "pdfData",
				OutputPath:    "output_images",
				Backend:       pdfrender.BackendPdftoppm,
				PagesPerImage: 3,
				DPI:           300,
				Gap:           50,
				Workers:       runtime.NumCPU(),
				JPEGQuality:   75,
			},
		},
		{
			name: "Config values should be used when flags are not provided",
			baseConfig: config{
				Paths:    configPaths{InputDir: "in", OutputDir: "/abs/out", PopplerDir: "/opt/poppler"},
				Settings: configSettings{Backend: "ghostscript", DPI: 150, Workers: 2, JPEGQuality: 90},
				Layout:   configLayout{PagesPerImage: 4, HorizontalGap: intPtr(0)},
			},
			flags:       flags{dpi: 300, gap: 50},
			projectRoot: "/root",
			expectedOptions: pdfrender.Options{
				InputPath:     "/root/in",
				OutputPath:    "/abs/out",
				PopplerPath:   "/opt/poppler",
				Backend:       pdfrender.BackendGhostscript,
				PagesPerImage: 4,
				DPI:           150,
				Gap:           0,
				Workers:       2,
				JPEGQuality:   90,
			},
		},
		{
			name: "Flags should override all corresponding config values",
			baseConfig: config{
				Paths:    configPaths{InputDir: "/config/in", OutputDir: "/config/out"},
				Settings: configSettings{DPI: 200, Workers: 4},
				Layout:   configLayout{PagesPerImage: 2, HorizontalGap: intPtr(10)},
			},
			flags: flags{
				changed: map[string]bool{
					"input": true, "output": true, "dpi": true, "pages-per-image": true,
					"gap": true, "workers": true, "backend": true, "continue-on-error": true,
				},
				inputPath:       "/flag/in",
				outputPath:      "/flag/out",
				backend:         "ghostscript",
				dpi:             72,
				pagesPerImage:   5,
				gap:             0,
				workers:         8,
				continueOnError: true,
			},
			projectRoot: "/root",
			expectedOptions: pdfrender.Options{
				InputPath:       "/flag/in",
				OutputPath:      "/flag/out",
				Backend:         pdfrender.BackendGhostscript,
				PagesPerImage:   5,
				DPI:             72,
				Gap:             0,
				Workers:         8,
				JPEGQuality:     75,
				ContinueOnError: true,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			result := mergeConfigAndFlags(&tc.baseConfig, tc.flags, tc.projectRoot)
			assert.Equal(t, tc.expectedOptions, result)
		})
	}
}

func TestChangedFlags(t *testing.T) {
	t.Parallel()

	cmd := newRootCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--dpi", "150", "--gap=0"}))

	changed := changedFlags(cmd.Flags())
	assert.Equal(t, map[string]bool{"dpi": true, "gap": true}, changed)

	dpi, err := cmd.Flags().GetInt("dpi")
	require.NoError(t, err)
	assert.Equal(t, 150, dpi)
}

func TestRootCommand_DPIDefault(t *testing.T) {
	t.Parallel()

	flag := newRootCommand().Flags().Lookup("dpi")
	require.NotNil(t, flag)
	assert.Equal(t, "300", flag.DefValue)
}

func TestSafeLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("Missing file is not an error", func(t *testing.T) {
		t.Parallel()

		cfg, err := safeLoadConfig(filepath.Join(t.TempDir(), "project.toml"))
		require.NoError(t, err)
		assert.Equal(t, config{}, cfg)
	})

	t.Run("Explicit zero gap is kept", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "project.toml")
		content := "[paths]\ninput_dir = \"pdfs\"\n\n[layout]\npages_per_image = 2\nhorizontal_gap = 0\n\n[settings]\ndpi = 120\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := safeLoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "pdfs", cfg.Paths.InputDir)
		assert.Equal(t, 2, cfg.Layout.PagesPerImage)
		require.NotNil(t, cfg.Layout.HorizontalGap)
		assert.Equal(t, 0, *cfg.Layout.HorizontalGap)
		assert.Equal(t, 120, cfg.Settings.DPI)
	})

	t.Run("Malformed file is an error", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "project.toml")
		require.NoError(t, os.WriteFile(path, []byte("[layout\n"), 0o600))

		_, err := safeLoadConfig(path)
		require.Error(t, err)
	})
}
