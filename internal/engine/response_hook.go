package engine

import (
	"context"
	"fmt"
	"io"
	"os"
)

// ResponseHook prints assistant text to a writer as it streams, ending each
// segment with a newline.
type ResponseHook struct {
	Writer io.Writer // Defaults to os.Stdout
}

// NewResponseHook creates a new response hook that prints to stdout.
func NewResponseHook() *ResponseHook {
	return &ResponseHook{Writer: os.Stdout}
}

func (h *ResponseHook) OnEvent(_ context.Context, ev Event) {
	w := h.Writer
	if w == nil {
		w = os.Stdout
	}
	switch ev.Type {
	case EventText:
		fmt.Fprint(w, ev.Text)
	case EventTextEnd:
		fmt.Fprintln(w)
	}
}
