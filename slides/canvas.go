package slides

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gocv.io/x/gocv"
)

// CanvasRenderer draws slides directly with OpenCV: a vertical gradient, a framed title card
// and centred, wrapped body text.
type CanvasRenderer struct {
	Width    int
	Height   int
	Subtitle string
	Font     gocv.HersheyFont
}

func NewCanvasRenderer(width, height int, subtitle string) *CanvasRenderer {
	return &CanvasRenderer{
		Width:    width,
		Height:   height,
		Subtitle: subtitle,
		Font:     gocv.FontHersheySimplex,
	}
}

var (
	white    = color.RGBA{255, 255, 255, 0}
	accent   = color.RGBA{100, 150, 255, 0}
	softBlue = color.RGBA{200, 200, 255, 0}
	dateBlue = color.RGBA{180, 180, 220, 0}
)

func (c *CanvasRenderer) Render(ctx context.Context, chunks []string, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	var images []string
	for i, text := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, fmt.Sprintf("slide_%03d.png", i))
		if err := c.draw(text, path, i == 0); err != nil {
			return nil, err
		}
		images = append(images, path)
	}
	return images, nil
}

func (c *CanvasRenderer) draw(text, path string, title bool) error {
	mat := gocv.NewMatWithSize(c.Height, c.Width, gocv.MatTypeCV8UC3)
	defer mat.Close()

	for y := 0; y < c.Height; y++ {
		f := float64(y) / float64(c.Height)
		shade := color.RGBA{uint8(25 + f*30), uint8(25 + f*30), uint8(40 + f*40), 0}
		gocv.Line(&mat, image.Pt(0, y), image.Pt(c.Width-1, y), shade, 1)
	}

	if title {
		gocv.Rectangle(&mat, image.Rect(100, 100, c.Width-100, c.Height-100), accent, 5)
		c.centred(&mat, text, c.Height/2-40, 1.6, 3, white)
		c.centred(&mat, c.Subtitle, c.Height/2+40, 0.9, 2, softBlue)
		c.centred(&mat, time.Now().Format("2006-01-02"), c.Height-150, 0.8, 2, dateBlue)
	} else {
		const scale, thickness, lineGap = 1.0, 2, 50
		lines := c.wrap(text, c.Width-200, scale, thickness)
		y := c.Height/2 - (len(lines)-1)*lineGap/2
		for _, line := range lines {
			c.centred(&mat, line, y, scale, thickness, white)
			y += lineGap
		}
	}

	if ok := gocv.IMWrite(path, mat); !ok {
		return fmt.Errorf("could not write slide %s", path)
	}
	return nil
}

func (c *CanvasRenderer) centred(mat *gocv.Mat, text string, y int, scale float64, thickness int, col color.RGBA) {
	size := gocv.GetTextSize(text, c.Font, scale, thickness)
	x := (c.Width - size.X) / 2
	if x < 10 {
		x = 10
	}
	gocv.PutText(mat, text, image.Pt(x, y+size.Y/2), c.Font, scale, col, thickness)
}

// wrap breaks text into lines no wider than maxWidth pixels. Hershey fonts are ASCII only.
func (c *CanvasRenderer) wrap(text string, maxWidth int, scale float64, thickness int) []string {
	return WrapWords(asciiOnly(text), func(s string) int {
		return gocv.GetTextSize(s, c.Font, scale, thickness).X
	}, maxWidth)
}

// WrapWords greedily fills lines using measure to size candidate lines.
func WrapWords(text string, measure func(string) int, maxWidth int) []string {
	var lines []string
	line := ""
	for _, w := range strings.Fields(text) {
		candidate := w
		if line != "" {
			candidate = line + " " + w
		}
		if line != "" && measure(candidate) > maxWidth {
			lines = append(lines, line)
			line = w
			continue
		}
		line = candidate
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

func asciiOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 126 {
			return '?'
		}
		return r
	}, s)
}
