package slides

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestBeamerDeck(t *testing.T) {
	deck := BeamerDeck([]string{"Graphs & Slopes", "The slope is 50% of rise_over_run", "second"}, "Mathematical Visualization")

	if !strings.Contains(deck, `\title{Graphs \& Slopes}`) {
		t.Error("title not escaped")
	}
	if !strings.Contains(deck, `The slope is 50\% of rise\_over\_run`) {
		t.Error("body not escaped")
	}
	if got := strings.Count(deck, `\begin{frame}`); got != 3 {
		t.Errorf("expected 3 frames (title + 2), got %d", got)
	}
}

func TestWrapWords(t *testing.T) {
	measure := func(s string) int { return len(s) * 10 }
	got := WrapWords("one two three four five", measure, 90)
	want := []string{"one two", "three", "four five"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("WrapWords = %q, want %q", got, want)
	}
	if lines := WrapWords("supercalifragilistic", measure, 50); len(lines) != 1 {
		t.Errorf("an overlong word must still occupy its own line, got %q", lines)
	}
}

type stubRenderer struct {
	images []string
	err    error
	called bool
}

func (s *stubRenderer) Render(context.Context, []string, string) ([]string, error) {
	s.called = true
	return s.images, s.err
}

func TestChain(t *testing.T) {
	failing := &stubRenderer{err: errors.New("pdflatex missing")}
	partial := &stubRenderer{images: []string{"a.png"}}
	good := &stubRenderer{images: []string{"a.png", "b.png"}}

	images, err := Chain{failing, partial, good}.Render(context.Background(), []string{"t", "x"}, t.TempDir())
	if err != nil || len(images) != 2 {
		t.Fatalf("got %v, %v", images, err)
	}
	if !failing.called || !partial.called {
		t.Error("earlier renderers should be tried first")
	}

	_, err = Chain{failing}.Render(context.Background(), []string{"t"}, t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "pdflatex missing") {
		t.Errorf("expected the renderer error, got %v", err)
	}
}
