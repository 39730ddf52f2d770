// Package qr renders session tokens as scannable PNG images.
package qr

import (
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	dErrors "medshare/pkg/domain-errors"
)

const DefaultSize = 256

// Renderer encodes content into a PNG QR code.
type Renderer struct {
	size  int
	level qrcode.RecoveryLevel
}

type Option func(*Renderer)

// WithSize sets the image edge in pixels.
func WithSize(px int) Option {
	return func(r *Renderer) {
		if px > 0 {
			r.size = px
		}
	}
}

func New(opts ...Option) *Renderer {
	r := &Renderer{size: DefaultSize, level: qrcode.Medium}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render returns a PNG image encoding content.
func (r *Renderer) Render(content string) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "qr content is required")
	}
	png, err := qrcode.Encode(content, r.level, r.size)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render qr code")
	}
	return png, nil
}
