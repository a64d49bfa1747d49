// Package liberr defines the error kinds shared by the importer, the texture
// processor, the environment baker and the container serializer.
package liberr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// malformed or unsupported source assets
	KindImport
	// unreadable or unwritable files
	KindIo
	// image decode or encode failures
	KindCodec
	// environment baking failures, including device acquisition
	KindBake
	// corrupt, truncated or incompatible containers
	KindFormat
)

func (k Kind) String() string {
	switch k {
	case KindImport:
		return "import"
	case KindIo:
		return "io"
	case KindCodec:
		return "codec"
	case KindBake:
		return "bake"
	case KindFormat:
		return "format"
	default:
		return "unknown"
	}
}

// Error carries a Kind and the file it relates to, if any.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

var (
	ErrImport = &Error{Kind: KindImport}
	ErrIo     = &Error{Kind: KindIo}
	ErrCodec  = &Error{Kind: KindCodec}
	ErrBake   = &Error{Kind: KindBake}
	ErrFormat = &Error{Kind: KindFormat}
)

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " error"
	}
	if e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%q: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Err == nil && t.Path == "" && t.Kind == e.Kind
}

// Wrap attaches kind and path to err. An error that already carries a kind is
// returned unchanged, so the innermost classification wins.
func Wrap(kind Kind, path string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Path: path, Err: err}
}

func Newf(kind Kind, path string, format string, args ...any) error {
	return &Error{Kind: kind, Path: path, Err: fmt.Errorf(format, args...)}
}

func Importf(path string, format string, args ...any) error {
	return Newf(KindImport, path, format, args...)
}

func Codecf(path string, format string, args ...any) error {
	return Newf(KindCodec, path, format, args...)
}

func Bakef(format string, args ...any) error {
	return Newf(KindBake, "", format, args...)
}

func Formatf(format string, args ...any) error {
	return Newf(KindFormat, "", format, args...)
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
