package repository

import "errors"

var (
	// ErrNotADirectory indicates a folder operation on something that is not a directory
	ErrNotADirectory = errors.New("not a directory")

	// ErrImageNotFound indicates the image file does not exist
	ErrImageNotFound = errors.New("image not found")

	// ErrUnsupportedFormat indicates a file extension outside SupportedExtensions
	ErrUnsupportedFormat = errors.New("unsupported image format")
)
