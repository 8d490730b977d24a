package models

import (
	"fmt"
	"path"
	"strings"
)

// UploadMode selects whether a request carries one image or an archive of images
type UploadMode string

const (
	UploadModeSingle UploadMode = "single"
	UploadModeBatch  UploadMode = "batch"
)

// ParseUploadMode validates a mode string, defaulting to single when empty
func ParseUploadMode(s string) (UploadMode, error) {
	switch UploadMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", UploadModeSingle:
		return UploadModeSingle, nil
	case UploadModeBatch:
		return UploadModeBatch, nil
	default:
		return "", fmt.Errorf("invalid upload mode %q. Must be 'single' or 'batch'", s)
	}
}

// TagStyle selects the instruction text sent alongside the image
type TagStyle string

const (
	// TagStyleFlux produces a short natural-language caption
	TagStyleFlux TagStyle = "flux"
	// TagStyleIllustrious produces comma-separated LoRA training tags
	TagStyleIllustrious TagStyle = "illustrious"
)

// ParseTagStyle validates a style string, defaulting to flux when empty
func ParseTagStyle(s string) (TagStyle, error) {
	switch TagStyle(strings.ToLower(strings.TrimSpace(s))) {
	case "", TagStyleFlux:
		return TagStyleFlux, nil
	case TagStyleIllustrious:
		return TagStyleIllustrious, nil
	default:
		return "", fmt.Errorf("invalid style %q. Must be 'flux' or 'illustrious'", s)
	}
}

// SourceImage is one image handed to the tagger, either uploaded directly or
// read out of an archive entry
type SourceImage struct {
	Name     string
	MimeType string
	Data     []byte
}

// NewSourceImage builds a SourceImage, inferring the mime type from the file extension
func NewSourceImage(name string, data []byte) SourceImage {
	return SourceImage{
		Name:     name,
		MimeType: MimeTypeFor(name),
		Data:     data,
	}
}

// MimeTypeFor maps a filename extension to an image mime type ("jpg" becomes "image/jpeg")
func MimeTypeFor(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	switch ext {
	case "":
		return "application/octet-stream"
	case "jpg":
		return "image/jpeg"
	default:
		return "image/" + ext
	}
}

// Format returns the short image format ("jpeg", "png", "webp") for the mime
// type, or "" when the mime type is not an image type
func (s SourceImage) Format() string {
	format, ok := strings.CutPrefix(s.MimeType, "image/")
	if !ok {
		return ""
	}
	return format
}
