package storage

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joseph-ayodele/menuocr/internal/common"
	"github.com/joseph-ayodele/menuocr/internal/ocr"
)

const azblobScheme = "azblob://"

// Resolver turns an image reference into an ocr.ImageInput. By default only
// inline references are accepted: http(s) URLs, data: URIs and bare base64.
// WithLocalSources additionally allows
//   - azblob://container/path/to/blob, downloaded with the daemon's credentials
//   - an existing local file, read and base64 encoded
//
// Network-facing callers must keep the default.
type Resolver struct {
	blobs  BlobStore // nil disables azblob://
	local  bool
	heic   *ocr.HEICConverter
	logger *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLocalSources lets the resolver read local files and azblob:// references.
// Only the CLI and the inbox run with it.
func WithLocalSources() ResolverOption {
	return func(r *Resolver) { r.local = true }
}

// WithHEICConverter converts HEIC/HEIF files to PNG before they are encoded.
func WithHEICConverter(c *ocr.HEICConverter) ResolverOption {
	return func(r *Resolver) { r.heic = c }
}

func NewResolver(blobs BlobStore, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{blobs: blobs, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Resolver) Resolve(ctx context.Context, ref string) (ocr.ImageInput, error) {
	ref = strings.TrimSpace(ref)
	in := ocr.ImageInput{Data: ref}
	switch {
	case ref == "":
		return ocr.ImageInput{}, common.InvalidInput("image reference is required")
	case in.IsURL(), in.IsDataURI():
		return in, nil
	case strings.HasPrefix(ref, azblobScheme):
		if !r.local {
			return ocr.ImageInput{}, common.InvalidInput("azblob references are not accepted here")
		}
		return r.resolveBlob(ctx, strings.TrimPrefix(ref, azblobScheme))
	}

	if !r.local {
		if !looksBase64(ref) {
			return ocr.ImageInput{}, common.InvalidInput("image must be base64 data, a data: URI or an http(s) URL")
		}
		return in, nil
	}

	if info, err := os.Stat(ref); err == nil {
		if info.IsDir() {
			return ocr.ImageInput{}, common.InvalidInput(ref + " is a directory")
		}
		return r.resolveFile(ctx, ref)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return ocr.ImageInput{}, fmt.Errorf("stat %s: %w", ref, err)
	}

	if !looksBase64(ref) {
		return ocr.ImageInput{}, common.InvalidInput("image reference is neither a URL, a file nor base64 data")
	}
	return in, nil
}

func (r *Resolver) resolveFile(ctx context.Context, path string) (ocr.ImageInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return ocr.ImageInput{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	b, err := readCapped(f)
	if err != nil {
		return ocr.ImageInput{}, common.InvalidInput(fmt.Sprintf("%s: %v", path, err))
	}
	if len(b) == 0 {
		return ocr.ImageInput{}, common.InvalidInput(path + " is empty")
	}
	if ocr.IsHEIC(path, b) {
		if r.heic == nil {
			return ocr.ImageInput{}, common.InvalidInput(path + ": HEIC images need HEIC_CONVERTER")
		}
		sum := sha256.Sum256(b)
		png, err := r.heic.ToPNG(ctx, path, hex.EncodeToString(sum[:]))
		if err != nil {
			return ocr.ImageInput{}, fmt.Errorf("convert %s: %w", path, err)
		}
		r.logger.Debug("storage.resolve.heic", "path", path, "heic_bytes", len(b), "png_bytes", len(png))
		b = png
	}
	r.logger.Debug("storage.resolve.file", "path", path, "bytes", len(b), "mime", ocr.MIMEFromBytes(b))
	return encode(b), nil
}

func (r *Resolver) resolveBlob(ctx context.Context, rest string) (ocr.ImageInput, error) {
	container, blob, ok := strings.Cut(rest, "/")
	if !ok || container == "" || blob == "" {
		return ocr.ImageInput{}, common.InvalidInput("azblob reference must be azblob://container/blob")
	}
	if r.blobs == nil {
		return ocr.ImageInput{}, common.MissingCredentials("AZURE_STORAGE_ACCOUNT")
	}
	b, err := r.blobs.Download(ctx, container, blob)
	if err != nil {
		r.logger.Error("storage.resolve.blob_failed", "container", container, "blob", blob, "error", err)
		return ocr.ImageInput{}, common.ProviderError("azblob", err)
	}
	r.logger.Debug("storage.resolve.blob", "container", container, "blob", blob, "bytes", len(b))
	return encode(b), nil
}

func encode(b []byte) ocr.ImageInput {
	return ocr.ImageInput{Data: "data:" + ocr.MIMEFromBytes(b) + ";base64," + base64.StdEncoding.EncodeToString(b)}
}

// looksBase64 requires the standard alphabet throughout (line breaks allowed)
// and a decodable head.
func looksBase64(s string) bool {
	n := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/', c == '=':
			n++
		case c == '\n', c == '\r':
		default:
			return false
		}
	}
	if n == 0 || n%4 != 0 {
		return false
	}
	head := s
	if strings.ContainsAny(head, "\r\n") {
		head = strings.NewReplacer("\r", "", "\n", "").Replace(head)
	}
	if len(head) > 64 {
		head = head[:64]
	}
	_, err := base64.StdEncoding.DecodeString(head)
	return err == nil
}
