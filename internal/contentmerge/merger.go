// Package contentmerge provides a line-based three-way text merge for blobs
// changed on both sides of a merge.
package contentmerge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/epiclabs-io/diff3"

	"github.com/kurobon/ortmerge/internal/ort"
)

// MarkerSize is the length of the conflict marker runs.
const MarkerSize = 7

var (
	startMarker  = strings.Repeat("<", MarkerSize)
	baseMarker   = strings.Repeat("|", MarkerSize)
	middleMarker = strings.Repeat("=", MarkerSize)
	endMarker    = strings.Repeat(">", MarkerSize)
)

// TextMerger merges with diff3. Hunks changed on only one side are taken from
// that side; hunks changed on both sides are written between conflict markers
// unless the input asks for one side to be favored.
type TextMerger struct{}

// NewTextMerger returns a TextMerger.
func NewTextMerger() *TextMerger {
	return &TextMerger{}
}

var _ ort.ContentMerger = (*TextMerger)(nil)

// MergeContent implements ort.ContentMerger.
func (m *TextMerger) MergeContent(_ context.Context, in ort.ContentInput) (*ort.ContentResult, error) {
	// 1. Fast paths
	switch {
	case bytes.Equal(in.Ours, in.Theirs):
		return &ort.ContentResult{Content: in.Ours}, nil
	case in.HasBase && bytes.Equal(in.Ours, in.Base):
		return &ort.ContentResult{Content: in.Theirs}, nil
	case in.HasBase && bytes.Equal(in.Theirs, in.Base):
		return &ort.ContentResult{Content: in.Ours}, nil
	}

	// 2. Binary content has no lines to merge.
	if isBinary(in.Base) || isBinary(in.Ours) || isBinary(in.Theirs) {
		switch in.Variant {
		case ort.VariantOurs:
			return &ort.ContentResult{Content: in.Ours}, nil
		case ort.VariantTheirs:
			return &ort.ContentResult{Content: in.Theirs}, nil
		}
		return conflict(in), nil
	}

	// 3. Line merge. Without a base both sides count as added in full.
	var base []byte
	if in.HasBase {
		base = in.Base
	}
	result, err := diff3.Merge(
		bytes.NewReader(in.Ours),
		bytes.NewReader(base),
		bytes.NewReader(in.Theirs),
		true,
		in.OursLabel,
		in.TheirsLabel,
	)
	if err != nil {
		return nil, fmt.Errorf("diff3 merge of %s: %w", in.Path, err)
	}
	merged, err := io.ReadAll(result.Result)
	if err != nil {
		return nil, fmt.Errorf("reading merge result of %s: %w", in.Path, err)
	}
	if !result.Conflicts {
		return &ort.ContentResult{Content: terminate(merged, in)}, nil
	}

	// 4. Settle the hunks that need no markers after all.
	content, conflicts := resolveHunks(string(merged), in.Variant)
	return &ort.ContentResult{
		Content:  terminate([]byte(content), in),
		Conflict: conflicts > 0,
	}, nil
}

// hunk is one conflict region of a diff3 result.
type hunk struct {
	start  string
	ours   []string
	theirs []string
	end    string
}

func (h *hunk) render(out []string) []string {
	out = append(out, h.start)
	out = append(out, h.ours...)
	out = append(out, middleMarker)
	out = append(out, h.theirs...)
	return append(out, h.end)
}

// resolveHunks walks the conflict regions of a diff3 result. Regions where both
// sides made the same change are collapsed, and with a variant every region is
// replaced by the favored side. It returns the new content and the number of
// regions left between markers.
func resolveHunks(merged string, variant ort.Variant) (string, int) {
	const (
		outside = iota
		inOurs
		inBase
		inTheirs
	)

	lines := strings.Split(merged, "\n")
	out := make([]string, 0, len(lines))
	state := outside
	var h *hunk
	conflicts := 0

	for _, line := range lines {
		switch state {
		case outside:
			if strings.HasPrefix(line, startMarker) {
				h = &hunk{start: line}
				state = inOurs
				continue
			}
			out = append(out, line)
		case inOurs:
			switch {
			case strings.HasPrefix(line, baseMarker):
				state = inBase
			case line == middleMarker:
				state = inTheirs
			default:
				h.ours = append(h.ours, line)
			}
		case inBase:
			if line == middleMarker {
				state = inTheirs
			}
		case inTheirs:
			if !strings.HasPrefix(line, endMarker) {
				h.theirs = append(h.theirs, line)
				continue
			}
			h.end = line
			state = outside
			switch {
			case variant == ort.VariantOurs:
				out = append(out, h.ours...)
			case variant == ort.VariantTheirs:
				out = append(out, h.theirs...)
			case slicesEqual(h.ours, h.theirs):
				out = append(out, h.ours...)
			default:
				out = h.render(out)
				conflicts++
			}
		}
	}

	// An unterminated region is kept as written.
	if state != outside {
		out = append(out, h.start)
		out = append(out, h.ours...)
		if state == inTheirs {
			out = append(out, middleMarker)
			out = append(out, h.theirs...)
		}
		conflicts++
	}
	return strings.Join(out, "\n"), conflicts
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// terminate restores the final newline when both sides end with one.
func terminate(content []byte, in ort.ContentInput) []byte {
	if len(content) == 0 || content[len(content)-1] == '\n' {
		return content
	}
	if bytes.HasSuffix(in.Ours, []byte{'\n'}) && bytes.HasSuffix(in.Theirs, []byte{'\n'}) {
		return append(content, '\n')
	}
	return content
}

// conflict renders the whole of ours and theirs between markers.
func conflict(in ort.ContentInput) *ort.ContentResult {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s\n", startMarker, in.OursLabel)
	writeSection(&buf, in.Ours)
	fmt.Fprintf(&buf, "%s\n", middleMarker)
	writeSection(&buf, in.Theirs)
	fmt.Fprintf(&buf, "%s %s\n", endMarker, in.TheirsLabel)
	return &ort.ContentResult{Content: buf.Bytes(), Conflict: true}
}

func writeSection(buf *bytes.Buffer, content []byte) {
	buf.Write(content)
	if len(content) > 0 && content[len(content)-1] != '\n' {
		buf.WriteByte('\n')
	}
}

// isBinary uses git's heuristic: a NUL byte in the first 8000 bytes.
func isBinary(content []byte) bool {
	if len(content) > 8000 {
		content = content[:8000]
	}
	return bytes.IndexByte(content, 0) >= 0
}
