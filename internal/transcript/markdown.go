package transcript

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"lectern/internal/timecode"
)

// Document is the per-asset transcript rendered by WriteMarkdown.
type Document struct {
	MediaID     string
	ProcessedAt time.Time
	Result      Result
}

var cellEscaper = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "|", `\|`)

// WriteMarkdown renders doc as a detailed markdown transcript: a header, a
// timestamp table, a plain timestamped list, and the full text.
func WriteMarkdown(w io.Writer, doc Document) error {
	bw := bufio.NewWriter(w)
	res := doc.Result

	fmt.Fprintf(bw, "# %s transcript\n\n", doc.MediaID)
	fmt.Fprintf(bw, "Processed: %s\n", doc.ProcessedAt.Format(time.DateTime))
	fmt.Fprintf(bw, "Language: %s\n", res.Language)
	if res.Duration > 0 {
		fmt.Fprintf(bw, "Duration: %s (%.2f seconds)\n\n", timecode.FormatSeconds(res.Duration), res.Duration)
	} else {
		bw.WriteString("Duration: unknown\n\n")
	}
	bw.WriteString("---\n\n")

	if len(res.Segments) > 0 {
		bw.WriteString("## Timestamped\n\n")
		bw.WriteString("| Time | Speaker | Text |\n")
		bw.WriteString("|------|---------|------|\n")
		for _, seg := range res.Segments {
			fmt.Fprintf(bw, "| %s - %s | %s | %s |\n",
				timecode.FormatSeconds(seg.Start),
				timecode.FormatSeconds(seg.End),
				cellEscaper.Replace(seg.Speaker),
				cellEscaper.Replace(seg.Text),
			)
		}
		bw.WriteString("\n---\n\n")

		bw.WriteString("## Plain text with timestamps\n\n")
		for _, seg := range res.Segments {
			start := timecode.FormatSeconds(seg.Start)
			if seg.Speaker != "" {
				fmt.Fprintf(bw, "[%s] %s: %s\n", start, seg.Speaker, seg.Text)
			} else {
				fmt.Fprintf(bw, "[%s] %s\n", start, seg.Text)
			}
		}
		bw.WriteString("\n---\n\n")
	}

	bw.WriteString("## Full text\n\n")
	bw.WriteString(res.Text)
	bw.WriteString("\n")
	return bw.Flush()
}
