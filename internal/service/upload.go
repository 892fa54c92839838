package service

import "io"

// Upload is an archive received over the wire.
type Upload struct {
	FileName string
	Reader   io.Reader
}
