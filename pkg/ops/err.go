package ops

import "github.com/pkg/errors"

var (
	ErrMissingPrefix  = errors.New("install prefix does not exist")
	ErrMissingOutput  = errors.New("build produced no output")
	ErrNotExecutable  = errors.New("entry under bin is not an executable")
	ErrScriptFailed   = errors.New("build script failed")
	ErrUnknownArchive = errors.New("no known decompressor for archive")
)

func track(err error) error {
	return errors.WithStack(err)
}
