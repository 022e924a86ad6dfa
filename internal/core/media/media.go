// Package media describes image derivatives and how their storage keys are derived.
package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

type Mode string

const (
	// ModeFit scales the image down to fit inside the box, keeping its aspect ratio.
	ModeFit Mode = "fit"
	// ModeFill scales and center-crops the image to exactly the box.
	ModeFill Mode = "fill"
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// Variant is one deterministic transform of a source image.
type Variant struct {
	Name    string
	Width   int
	Height  int
	Mode    Mode
	Format  Format
	Quality int
}

// Fingerprint identifies the transform. Two variants with equal fingerprints
// produce identical bytes from the same source.
func (v Variant) Fingerprint() string {
	return fmt.Sprintf("%s-%s-%dx%d-q%d", v.Name, v.Mode, v.Width, v.Height, v.Quality)
}

func (v Variant) Extension() string {
	if v.Format == FormatPNG {
		return "png"
	}
	return "jpg"
}

func (v Variant) ContentType() string {
	if v.Format == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Derivative is a stored transform result.
type Derivative struct {
	Key     string
	Variant string
	// Created is false when an identical derivative was already stored.
	Created bool
}

// Digest returns the hex sha256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// UploadKey is where an uploaded source blob lives.
func UploadKey(source []byte) string {
	return UploadPrefix + Digest(source)
}

// UploadPrefix starts every upload key.
const UploadPrefix = "uploads/"

// DerivativeKey is the content-derived key of a variant of source.
func DerivativeKey(sourceDigest string, v Variant) string {
	return fmt.Sprintf("media/%s/%s.%s", sourceDigest, v.Fingerprint(), v.Extension())
}
