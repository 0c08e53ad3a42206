// Package dataerr defines the kinds of error returned while loading a dataset.
//
// Errors returned by the other packages wrap one of these values, so callers
// can test for the kind with errors.Is:
//
//	ds, err := dataset.New(cfg)
//	if errors.Is(err, dataerr.ErrManifest) {
//		...
//	}
package dataerr

import (
	"github.com/pkg/errors"
)

var (
	// ErrManifest reports a missing or malformed manifest file, or a missing column.
	ErrManifest = errors.New("manifest error")

	// ErrDecode reports an image or mask file that cannot be read or decoded.
	ErrDecode = errors.New("decode error")

	// ErrIndex reports an out of range sample index.
	ErrIndex = errors.New("index error")

	// ErrConfig reports an invalid size, modality, phase or other option.
	ErrConfig = errors.New("config error")
)

// Manifestf returns an error of kind ErrManifest with the formatted context.
func Manifestf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrManifest, format, args...)
}

// Decodef returns an error of kind ErrDecode with the formatted context.
func Decodef(format string, args ...interface{}) error {
	return errors.Wrapf(ErrDecode, format, args...)
}

// Indexf returns an error of kind ErrIndex with the formatted context.
func Indexf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrIndex, format, args...)
}

// Configf returns an error of kind ErrConfig with the formatted context.
func Configf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfig, format, args...)
}
