package confloader

import (
	"errors"

	"github.com/knadh/koanf/maps"
)

// ErrReadBytesNotSupported is returned by ReadBytes on an override map.
var ErrReadBytesNotSupported = errors.New("confloader: override map has no byte form")

// overrides is a koanf provider over flat "section.key" values.
type overrides map[string]any

func (m overrides) ReadBytes() ([]byte, error) {
	return nil, ErrReadBytesNotSupported
}

func (m overrides) Read() (map[string]any, error) {
	return maps.Unflatten(m, "."), nil
}
