package compose_test

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/pdf-to-jpeg-service/internal/compose"
)

func solidPage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, c)
		}
	}

	return img
}

func TestPartition(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		total    int
		perImage int
		counts   []int
	}{
		{name: "Seven pages in threes", total: 7, perImage: 3, counts: []int{3, 3, 1}},
		{name: "Exact multiple", total: 6, perImage: 3, counts: []int{3, 3}},
		{name: "Group larger than document", total: 2, perImage: 5, counts: []int{2}},
		{name: "One page per image", total: 3, perImage: 1, counts: []int{1, 1, 1}},
		{name: "No pages", total: 0, perImage: 3, counts: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			groups, err := compose.Partition(tc.total, tc.perImage)
			require.NoError(t, err)
			require.Len(t, groups, len(tc.counts))

			next := 0
			for i, group := range groups {
				assert.Equal(t, i+1, group.Index)
				assert.Equal(t, next, group.Start)
				assert.Equal(t, tc.counts[i], group.Count)
				assert.LessOrEqual(t, group.Count, tc.perImage)

				next = group.End()
			}

			assert.Equal(t, max(tc.total, 0), next)
		})
	}
}

func TestPartition_InvalidGroupSize(t *testing.T) {
	t.Parallel()

	_, err := compose.Partition(4, 0)
	require.ErrorIs(t, err, compose.ErrInvalidGroupSize)
}

func TestCanvasSize(t *testing.T) {
	t.Parallel()

	sizes := []image.Point{{X: 100, Y: 200}, {X: 120, Y: 180}, {X: 90, Y: 250}}
	assert.Equal(t, image.Pt(100+120+90+2*50, 250), compose.CanvasSize(sizes, 50))
	assert.Equal(t, image.Pt(100, 200), compose.CanvasSize(sizes[:1], 50))
	assert.Equal(t, image.Pt(310, 250), compose.CanvasSize(sizes, 0))
}

func TestCompose_LayoutAndOrder(t *testing.T) {
	t.Parallel()

	red := color.RGBA{R: 255, A: 255}
	green := color.RGBA{G: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	pages := []image.Image{
		solidPage(10, 20, red),
		solidPage(8, 12, green),
		solidPage(6, 16, blue),
	}

	canvas, err := compose.Compose(pages, 5)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10+8+6+2*5, 20), canvas.Bounds())

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	assert.Equal(t, red, canvas.RGBAAt(0, 0))
	assert.Equal(t, red, canvas.RGBAAt(9, 19))
	assert.Equal(t, white, canvas.RGBAAt(10, 0), "gap after the first page")
	assert.Equal(t, white, canvas.RGBAAt(14, 0), "gap after the first page")
	assert.Equal(t, green, canvas.RGBAAt(15, 0))
	assert.Equal(t, green, canvas.RGBAAt(22, 11))
	assert.Equal(t, white, canvas.RGBAAt(15, 12), "below a shorter page")
	assert.Equal(t, blue, canvas.RGBAAt(28, 0))
	assert.Equal(t, blue, canvas.RGBAAt(33, 15))
	assert.Equal(t, white, canvas.RGBAAt(33, 16))
}

func TestCompose_SinglePageHasNoGap(t *testing.T) {
	t.Parallel()

	canvas, err := compose.Compose([]image.Image{solidPage(7, 9, color.Black)}, 50)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 7, 9), canvas.Bounds())
}

func TestCompose_OffsetSourceBounds(t *testing.T) {
	t.Parallel()

	page := image.NewRGBA(image.Rect(3, 4, 7, 8))
	black := color.RGBA{A: 255}

	for y := 4; y < 8; y++ {
		for x := 3; x < 7; x++ {
			page.SetRGBA(x, y, black)
		}
	}

	canvas, err := compose.Compose([]image.Image{page}, 0)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), canvas.Bounds())
	assert.Equal(t, black, canvas.RGBAAt(0, 0))
	assert.Equal(t, black, canvas.RGBAAt(3, 3))
}

func TestCompose_Errors(t *testing.T) {
	t.Parallel()

	_, err := compose.Compose(nil, 0)
	require.ErrorIs(t, err, compose.ErrNoPages)

	_, err = compose.Compose([]image.Image{solidPage(1, 1, color.White)}, -1)
	require.ErrorIs(t, err, compose.ErrNegativeGap)
}

func TestOutputName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "report_output_001.jpg", compose.OutputName("report", 1))
	assert.Equal(t, "report_output_042.jpg", compose.OutputName("report", 42))
	assert.Equal(t, "report_output_1000.jpg", compose.OutputName("report", 1000))
}

func TestWriteJPEG(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.jpg")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	canvas, err := compose.Compose([]image.Image{
		solidPage(16, 24, color.Black),
		solidPage(16, 8, color.Black),
	}, 4)
	require.NoError(t, err)
	require.NoError(t, compose.WriteJPEG(path, canvas, 0))

	file, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, file.Close()) })

	cfg, err := jpeg.DecodeConfig(file)
	require.NoError(t, err)
	assert.Equal(t, 36, cfg.Width)
	assert.Equal(t, 24, cfg.Height)
}

func TestWriteJPEG_MissingDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing", "out.jpg")
	err := compose.WriteJPEG(path, solidPage(1, 1, color.White), 90)
	require.ErrorIs(t, err, os.ErrNotExist)
}
