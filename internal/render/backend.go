package render

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/vector"
)

// ErrBackendBusy is returned when a backend is acquired while in use.
var ErrBackendBusy = errors.New("render backend is already in use")

var (
	regularOnce sync.Once
	regularFont *opentype.Font
	regularErr  error
)

// loadRegular parses the embedded Go Regular font once per process.
// The parsed font is immutable; faces built from it are not.
func loadRegular() (*opentype.Font, error) {
	regularOnce.Do(func() {
		regularFont, regularErr = opentype.Parse(goregular.TTF)
	})
	return regularFont, regularErr
}

// Backend owns the mutable drawing state of one worker: the rasterizer
// scratch buffer and sized font faces. It is not reentrant: Acquire fails
// while another render holds it.
type Backend struct {
	busy atomic.Bool

	font  *opentype.Font
	faces map[float64]font.Face
	z     *vector.Rasterizer
}

// NewBackend creates a backend with an empty face cache.
func NewBackend() (*Backend, error) {
	f, err := loadRegular()
	if err != nil {
		return nil, fmt.Errorf("loading font: %w", err)
	}
	return &Backend{
		font:  f,
		faces: make(map[float64]font.Face),
		z:     vector.NewRasterizer(1, 1),
	}, nil
}

// Acquire marks the backend in use.
func (b *Backend) Acquire() error {
	if !b.busy.CompareAndSwap(false, true) {
		return ErrBackendBusy
	}
	return nil
}

// Release marks the backend free.
func (b *Backend) Release() {
	b.busy.Store(false)
}

// Busy reports whether a render holds the backend.
func (b *Backend) Busy() bool {
	return b.busy.Load()
}

// face returns the cached face for size, creating it on first use.
func (b *Backend) face(size float64) font.Face {
	if f, ok := b.faces[size]; ok {
		return f
	}
	f, err := opentype.NewFace(b.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		// Only invalid sizes fail; sizes here are fixed by the layout.
		panic(fmt.Sprintf("font face %.1fpt: %v", size, err))
	}
	b.faces[size] = f
	return f
}

// Close releases the font faces.
func (b *Backend) Close() error {
	var errs []error
	for size, f := range b.faces {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(b.faces, size)
	}
	return errors.Join(errs...)
}
