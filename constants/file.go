package constants

import "strings"

// AllowedExtensions holds the image extensions picked up by the inbox and batch runs.
// HEIC/HEIF files are converted to PNG by the resolver.
var AllowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
	"bmp":  {},
	"tif":  {},
	"tiff": {},
	"heic": {},
	"heif": {},
}

// MaxImageBytes caps local images read by the resolver (OCR.space rejects larger uploads on most plans).
const MaxImageBytes = 10 << 20

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedImage reports whether path has one of AllowedExtensions.
func IsAllowedImage(path string) bool {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return false
	}
	_, ok := AllowedExtensions[NormalizeExt(path[i:])]
	return ok
}
