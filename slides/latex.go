package slides

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"

	"narrator/common"
)

// LatexRenderer typesets the chunks as a beamer deck and rasterises each page.
type LatexRenderer struct {
	Runner   common.Runner
	Bin      string
	Timeout  time.Duration
	Subtitle string
	DPI      float64
}

func NewLatexRenderer(cfg *common.PipelineConfig, runner common.Runner) *LatexRenderer {
	return &LatexRenderer{
		Runner:   runner,
		Bin:      "pdflatex",
		Timeout:  cfg.Tools.Timeout,
		Subtitle: cfg.Render.Title,
		DPI:      200,
	}
}

func (l *LatexRenderer) Render(ctx context.Context, chunks []string, dir string) ([]string, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no slides to render")
	}
	if _, err := l.Runner.LookPath(l.Bin); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating slide dir: %w", err)
	}

	texFile := filepath.Join(dir, "deck.tex")
	if err := os.WriteFile(texFile, []byte(BeamerDeck(chunks, l.Subtitle)), 0644); err != nil {
		return nil, fmt.Errorf("error writing tex file: %w", err)
	}

	pdfPath, err := l.compile(ctx, texFile, dir)
	if err != nil {
		return nil, err
	}
	return l.rasterise(pdfPath, dir, len(chunks))
}

// BeamerDeck builds a 16:9 deck: a title frame for chunks[0], then one frame per chunk.
func BeamerDeck(chunks []string, subtitle string) string {
	var sb strings.Builder
	sb.WriteString(`\documentclass[aspectratio=169]{beamer}
\usetheme{Madrid}
\usecolortheme{whale}
\setbeamertemplate{navigation symbols}{}
\setbeamertemplate{footline}{}
\usepackage{ragged2e}

\title{` + common.EscapeLatex(chunks[0]) + `}
\subtitle{` + common.EscapeLatex(subtitle) + `}
\date{\today}

\begin{document}

\begin{frame}
\titlepage
\end{frame}
`)
	for _, chunk := range chunks[1:] {
		sb.WriteString("\\begin{frame}\n")
		sb.WriteString("\\vfill\n\\begin{center}\n\\begin{minipage}{0.85\\textwidth}\n\\Large\n\\justifying\n")
		sb.WriteString(common.EscapeLatex(chunk))
		sb.WriteString("\n\\end{minipage}\n\\end{center}\n\\vfill\n")
		sb.WriteString("\\end{frame}\n")
	}
	sb.WriteString("\\end{document}\n")
	return sb.String()
}

func (l *LatexRenderer) compile(ctx context.Context, texFile, dir string) (string, error) {
	_, err := l.Runner.Run(ctx, l.Timeout, l.Bin, "-interaction=nonstopmode", "-halt-on-error", "-output-directory", dir, texFile)
	if err != nil {
		return "", fmt.Errorf("pdflatex failed: %w", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(texFile), ".tex")
	pdfPath := filepath.Join(dir, baseName+".pdf")
	if !common.FileNonEmpty(pdfPath) {
		return "", fmt.Errorf("pdf not generated")
	}
	return pdfPath, nil
}

func (l *LatexRenderer) rasterise(pdfPath, dir string, want int) ([]string, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("error opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() != want {
		return nil, fmt.Errorf("deck has %d pages, expected %d", doc.NumPage(), want)
	}

	var images []string
	for i := 0; i < doc.NumPage(); i++ {
		img, err := doc.ImagePNG(i, l.DPI)
		if err != nil {
			return nil, fmt.Errorf("rasterise page %d: %w", i, err)
		}
		imgPath := filepath.Join(dir, fmt.Sprintf("slide_%03d.png", i))
		if err := os.WriteFile(imgPath, img, 0644); err != nil {
			return nil, err
		}
		images = append(images, imgPath)
	}
	return images, nil
}
