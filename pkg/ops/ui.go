package ops

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mr-tron/base58"
	"lab47.dev/strata/pkg/data"
)

// UI writes human-readable progress, checksum, warning, and error text
// to a diagnostic stream kept separate from the build's own
// stdout/stderr.
type UI struct {
	Out io.Writer
}

func (u *UI) w() io.Writer {
	if u.Out != nil {
		return u.Out
	}

	return os.Stderr
}

func (u *UI) RunBuild(req *data.BuildRequest, kind data.PlanKind) {
	fmt.Fprintf(u.w(), "Building %s (%s mode)...\n", req.Name, kind)
}

func (u *UI) Checksum(label, path, algo string, sum []byte) {
	fmt.Fprintf(u.w(), "%s: %s (%s:%s)\n", label, path, algo, base58.Encode(sum))
}

func (u *UI) Warn(format string, args ...interface{}) {
	fmt.Fprintf(u.w(), "! Warning: "+format+"\n", args...)
}

func (u *UI) Hint(format string, args ...interface{}) {
	fmt.Fprintf(u.w(), "  hint: "+format+"\n", args...)
}

func (u *UI) Error(format string, args ...interface{}) {
	fmt.Fprintf(u.w(), "! Error: "+format+"\n", args...)
}

func (u *UI) BuildAbsorbed(req *data.BuildRequest) {
	fmt.Fprintf(u.w(), "Build of %s failed; output replaced by a failure marker, cache preserved\n", req.Name)
}

func (u *UI) CacheWritten(path string, size int64) {
	fmt.Fprintf(u.w(), "Cache written to %s (%d bytes)\n", path, size)
}

type uiMarker struct{}

func GetUI(ctx context.Context) *UI {
	v := ctx.Value(uiMarker{})
	if v == nil {
		return &UI{}
	}

	return v.(*UI)
}

func WithUI(ctx context.Context, ui *UI) context.Context {
	return context.WithValue(ctx, uiMarker{}, ui)
}
