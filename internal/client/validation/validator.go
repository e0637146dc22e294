// Package validation decides whether a selected file is acceptable for upload
// before any bytes are read for transmission.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophupload/internal/client/failure"
	"github.com/dmitrijs2005/gophupload/internal/common"
	"github.com/gabriel-vasile/mimetype"
)

// Profile is a named set of size limits.
type Profile struct {
	Name     string
	MaxBytes int64
	MinBytes int64
	// Minimal skips non-fatal format warnings.
	Minimal bool
}

const DefaultMinBytes = 100

var (
	Simple      = Profile{Name: "simple", MaxBytes: 10 * common.MB, MinBytes: DefaultMinBytes}
	Bulletproof = Profile{Name: "bulletproof", MaxBytes: 200 * common.MB, MinBytes: DefaultMinBytes}
	Emergency   = Profile{Name: "emergency", MaxBytes: 50 * common.MB, MinBytes: DefaultMinBytes, Minimal: true}
)

// ProfileByName looks up one of the predefined profiles.
func ProfileByName(name string) (Profile, bool) {
	for _, p := range []Profile{Simple, Bulletproof, Emergency} {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// File describes a candidate file. Head, when set, holds the first bytes of
// its content and is sniffed instead of trusting MimeType.
type File struct {
	Name     string
	Size     int64
	MimeType string
	Head     []byte
}

type Result struct {
	Valid    bool
	Error    string
	Category failure.Category
	Warnings []string
	// MimeType is the effective type: sniffed from Head when available.
	MimeType string
}

var imageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".avif": "image/avif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".ico":  "image/x-icon",
	".heic": "image/heic",
	".heif": "image/heif",
	".svg":  "image/svg+xml",
}

var lossyWarnings = map[string]string{
	"image/bmp":                "BMP images are large and uncompressed; they may be converted on the server",
	"image/tiff":               "TIFF images may not display in every browser and may be converted",
	"image/x-icon":             "ICO images are low resolution and may be converted",
	"image/vnd.microsoft.icon": "ICO images are low resolution and may be converted",
	"image/heic":               "HEIC images may not display everywhere and may be converted to JPEG",
	"image/heif":               "HEIF images may not display everywhere and may be converted to JPEG",
	"image/svg+xml":            "SVG images are vector graphics and will be rasterized",
}

// Validate runs the checks in order and stops at the first failure: image
// type, maximum size, minimum size.
func Validate(f File, p Profile) Result {
	mime, ok := effectiveType(f)
	if !ok {
		msg := fmt.Sprintf("%q is not a supported image", f.Name)
		if mime != "" {
			msg = fmt.Sprintf("%q is not a supported image (detected %s)", f.Name, mime)
		}
		return fail(failure.CategoryFormat, msg, mime)
	}

	if p.MaxBytes > 0 && f.Size >= p.MaxBytes {
		return fail(failure.CategorySize, fmt.Sprintf("file is %.1f MB, the limit is %d MB",
			float64(f.Size)/common.MB, p.MaxBytes/common.MB), mime)
	}

	if f.Size < p.MinBytes {
		return fail(failure.CategoryValidation,
			fmt.Sprintf("file is %d bytes, which is too small to be a valid image", f.Size), mime)
	}

	res := Result{Valid: true, MimeType: mime}
	if !p.Minimal {
		if w, ok := lossyWarnings[mime]; ok {
			res.Warnings = append(res.Warnings, w)
		}
	}
	return res
}

func fail(c failure.Category, msg, mime string) Result {
	return Result{Category: c, Error: msg, MimeType: mime}
}

func effectiveType(f File) (string, bool) {
	if len(f.Head) > 0 {
		m := mimetype.Detect(f.Head)
		mime := m.String()
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = mime[:i]
		}
		return mime, strings.HasPrefix(mime, "image/")
	}

	declared := strings.ToLower(strings.TrimSpace(f.MimeType))
	if strings.HasPrefix(declared, "image/") {
		return declared, true
	}
	if byExt, ok := imageExtensions[strings.ToLower(filepath.Ext(f.Name))]; ok {
		return byExt, true
	}
	return declared, false
}
