// Package progress renders terminal progress bars for long pipeline
// steps. Rendering is opt-in per context: without Open the handles are
// inert, which keeps tests and non-terminal runs quiet.
package progress

import (
	"context"
	"fmt"
	"io"
	"time"

	pb "github.com/schollz/progressbar/v3"
)

type sink struct {
	w io.Writer
}

type sinkKey struct{}

// Open enables rendering for bars created from the returned context.
func Open(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, sinkKey{}, sink{w})
}

type Progress struct {
	bar *pb.ProgressBar
}

// Count creates a bar over a known number of items. When ctx carries
// no sink the returned handle is a no-op.
func Count(ctx context.Context, total int64, desc string) *Progress {
	v := ctx.Value(sinkKey{})
	if v == nil {
		return &Progress{}
	}

	s := v.(sink)

	bar := pb.NewOptions64(
		total,
		pb.OptionSetDescription(desc),
		pb.OptionSetWriter(s.w),
		pb.OptionSetWidth(25),
		pb.OptionThrottle(100*time.Millisecond),
		pb.OptionShowCount(),
		pb.OptionSetTheme(
			pb.Theme{Saucer: "#", SaucerPadding: ".", BarStart: "|", BarEnd: "|"},
		),
		pb.OptionOnCompletion(func() {
			fmt.Fprintln(s.w)
		}),
	)
	bar.RenderBlank()

	return &Progress{bar: bar}
}

func (p *Progress) Add(n int64) {
	if p.bar == nil {
		return
	}

	p.bar.Add64(n)
}

func (p *Progress) Tick() {
	p.Add(1)
}

func (p *Progress) Close() {
	if p.bar == nil {
		return
	}

	p.bar.Close()
}
