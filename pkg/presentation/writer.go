package presentation

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dtnitsch/factcheck-relay/models"
)

// WriterRenderer renders artifacts as plain text lines, for terminals and
// logs.
type WriterRenderer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterRenderer(w io.Writer) *WriterRenderer {
	return &WriterRenderer{w: w}
}

func (r *WriterRenderer) ShowLoading(kind models.Kind) {
	r.printf("[loading] checking %s...\n", kind)
}

func (r *WriterRenderer) ShowResult(t models.MessageType, data models.ResultData) {
	res := data.Result
	if res == nil {
		r.printf("[result] empty result\n")
		return
	}

	var b strings.Builder
	switch {
	case res.Text != nil:
		fmt.Fprintf(&b, "[result] accuracy %s\n", res.Text.Accuracy)
		writeField(&b, "why", res.Text.AccuracyReason)
		writeField(&b, "reason", res.Text.Reason)
		for _, u := range res.Text.URLs {
			writeField(&b, "source", u)
		}
	case res.Image != nil:
		fmt.Fprintf(&b, "[result] fake %s\n", res.Image.Fake)
		writeField(&b, "reason", res.Image.Reason)
	case res.Video != nil:
		fmt.Fprintf(&b, "[result] %s\n", res.Video.ResultSummary)
		writeField(&b, "fft artifact score", res.Video.FFTArtifactScore)
		writeField(&b, "action pattern score", res.Video.ActionPatternScore)
		if fc := res.Video.FactCheck; fc != nil {
			writeField(&b, "transcript accuracy", fc.Accuracy)
			writeField(&b, "transcript reason", fc.Reason)
		}
	}
	writeField(&b, "share", data.ShareLink)
	r.printf("%s", b.String())
}

func (r *WriterRenderer) ShowError(t models.MessageType, data models.ErrorData) {
	label := "error"
	switch t {
	case models.MsgShowBaseURLWarning:
		label = "check base url"
	case models.MsgShowConfigure:
		label = "configure"
	}
	r.printf("[%s] %s (%s)\n", label, data.Message, data.Classification)
}

func (r *WriterRenderer) ShowWarning(data models.WarningData) {
	where := "this page"
	if !data.IsCurrentPage {
		where = "a page you left"
	}
	r.printf("[warning] %s scored %.0f%% accuracy: %s\n", where, data.Accuracy, data.PageURL)
	if data.ShareLink != "" {
		r.printf("  share: %s\n", data.ShareLink)
	}
}

func (r *WriterRenderer) ShowNotice(data models.ErrorData) {
	r.printf("[notice] %s\n", data.Message)
}

func (r *WriterRenderer) Clear() {}

func (r *WriterRenderer) ShowPageButton(videoID string) {
	r.printf("[button] video check available for %s\n", videoID)
}

func (r *WriterRenderer) HidePageButton() {}

func (r *WriterRenderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

func writeField(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "  %s: %s\n", name, value)
}
