// Package qrcode renders payment code payloads as PNG images.
package qrcode

import (
	"fmt"

	goqrcode "github.com/skip2/go-qrcode"
)

const defaultSize = 256

type Encoder struct {
	size  int
	level goqrcode.RecoveryLevel
}

func NewEncoder(size int) *Encoder {
	if size <= 0 {
		size = defaultSize
	}
	return &Encoder{size: size, level: goqrcode.Medium}
}

// Encode returns a PNG image of data.
func (e *Encoder) Encode(data string) ([]byte, error) {
	png, err := goqrcode.Encode(data, e.level, e.size)
	if err != nil {
		return nil, fmt.Errorf("Encode: %w", err)
	}
	return png, nil
}
