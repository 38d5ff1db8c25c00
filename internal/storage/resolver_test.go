package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/menuocr/constants"
	"github.com/joseph-ayodele/menuocr/internal/common"
	"github.com/joseph-ayodele/menuocr/internal/ocr"
)

type fakeBlobs struct {
	data      []byte
	err       error
	container string
	blob      string
}

func (f *fakeBlobs) Download(_ context.Context, container, blob string) ([]byte, error) {
	f.container, f.blob = container, blob
	return f.data, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestResolve_PassThrough(t *testing.T) {
	r := NewResolver(nil, quietLogger())
	for _, ref := range []string{
		"https://example.com/menu.jpg",
		"http://example.com/menu.png",
		"data:image/png;base64,iVBORw0KGgo=",
		"/9j/4AAQSkZJRg==",
	} {
		got, err := r.Resolve(context.Background(), "  "+ref+" ")
		require.NoError(t, err, ref)
		assert.Equal(t, ref, got.Data)
	}
}

func TestResolve_LocalFile(t *testing.T) {
	raw := tinyPNG(t)
	p := filepath.Join(t.TempDir(), "menu.png")
	require.NoError(t, os.WriteFile(p, raw, 0o644))

	got, err := NewResolver(nil, quietLogger(), WithLocalSources()).Resolve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(raw), got.Data)
}

func TestResolve_LocalFileLimits(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.jpg")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	big := filepath.Join(dir, "big.jpg")
	require.NoError(t, os.WriteFile(big, bytes.Repeat([]byte{1}, constants.MaxImageBytes+1), 0o644))

	r := NewResolver(nil, quietLogger(), WithLocalSources())
	for _, p := range []string{empty, big, dir} {
		_, err := r.Resolve(context.Background(), p)
		assert.ErrorIs(t, err, common.ErrInvalidInput, p)
	}
}

func TestResolve_Rejects(t *testing.T) {
	for _, r := range []*Resolver{
		NewResolver(nil, quietLogger()),
		NewResolver(nil, quietLogger(), WithLocalSources()),
	} {
		for _, ref := range []string{"", "   ", "missing/menu.jpg", "lunch", "abcd efgh", "ab_d"} {
			_, err := r.Resolve(context.Background(), ref)
			assert.ErrorIs(t, err, common.ErrInvalidInput, ref)
		}
	}
}

func TestResolve_InlineOnlyByDefault(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "settings.env")
	require.NoError(t, os.WriteFile(secret, []byte("GROQ_API_KEY=sk-live-123"), 0o600))
	img := filepath.Join(dir, "menu.png")
	require.NoError(t, os.WriteFile(img, tinyPNG(t), 0o644))

	blobs := &fakeBlobs{data: tinyPNG(t)}
	r := NewResolver(blobs, quietLogger())
	for _, ref := range []string{secret, img, "azblob://menus/lunch.png"} {
		_, err := r.Resolve(context.Background(), ref)
		assert.ErrorIs(t, err, common.ErrInvalidInput, ref)
	}
	assert.Empty(t, blobs.container, "no blob may be downloaded")
}

type fakeRunner struct {
	png   []byte
	err   error
	calls int
	args  []string
}

func (f *fakeRunner) Run(_ context.Context, name string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	f.calls++
	f.args = append([]string{name}, args...)
	if f.err != nil {
		return nil, []byte("no decode delegate"), f.err
	}
	out := args[len(args)-1]
	return nil, nil, os.WriteFile(out, f.png, 0o644)
}

// heicBytes is an ISO-BMFF header with the heic brand; enough for detection.
var heicBytes = append([]byte{0, 0, 0, 24, 'f', 't', 'y', 'p', 'h', 'e', 'i', 'c', 0, 0, 0, 0}, bytes.Repeat([]byte{7}, 64)...)

func TestResolve_HEICIsConvertedAndCached(t *testing.T) {
	dir := t.TempDir()
	photo := filepath.Join(dir, "IMG_0412.HEIC")
	require.NoError(t, os.WriteFile(photo, heicBytes, 0o644))
	raw := tinyPNG(t)

	runner := &fakeRunner{png: raw}
	conv := ocr.NewHEICConverter(ocr.HEICConfig{
		Converter: ocr.ConverterMagick,
		CacheDir:  filepath.Join(dir, "cache"),
		Runner:    runner,
	}, quietLogger())
	r := NewResolver(nil, quietLogger(), WithLocalSources(), WithHEICConverter(conv))

	for i := 0; i < 2; i++ {
		got, err := r.Resolve(context.Background(), photo)
		require.NoError(t, err)
		assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(raw), got.Data)
	}
	assert.Equal(t, 1, runner.calls, "second resolve is served from the cache")
	assert.Equal(t, "magick", runner.args[0])
	assert.Equal(t, photo, runner.args[1])

	// brand detection works without the extension
	renamed := filepath.Join(dir, "upload.bin")
	require.NoError(t, os.WriteFile(renamed, heicBytes, 0o644))
	_, err := r.Resolve(context.Background(), renamed)
	require.NoError(t, err)
}

func TestResolve_HEICErrors(t *testing.T) {
	dir := t.TempDir()
	photo := filepath.Join(dir, "menu.heic")
	require.NoError(t, os.WriteFile(photo, heicBytes, 0o644))

	_, err := NewResolver(nil, quietLogger(), WithLocalSources()).Resolve(context.Background(), photo)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	conv := ocr.NewHEICConverter(ocr.HEICConfig{
		Converter: ocr.ConverterSips,
		Runner:    &fakeRunner{err: errors.New("exit status 1")},
	}, quietLogger())
	_, err = NewResolver(nil, quietLogger(), WithLocalSources(), WithHEICConverter(conv)).Resolve(context.Background(), photo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sips failed: no decode delegate")
}

func TestResolve_Blob(t *testing.T) {
	raw := tinyPNG(t)
	blobs := &fakeBlobs{data: raw}
	got, err := NewResolver(blobs, quietLogger(), WithLocalSources()).Resolve(context.Background(), "azblob://menus/2026/10/lunch.png")
	require.NoError(t, err)
	assert.Equal(t, "menus", blobs.container)
	assert.Equal(t, "2026/10/lunch.png", blobs.blob)
	assert.True(t, strings.HasPrefix(got.Data, "data:image/png;base64,"))
}

func TestResolve_BlobErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewResolver(&fakeBlobs{}, quietLogger(), WithLocalSources()).Resolve(ctx, "azblob://menus")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = NewResolver(nil, quietLogger(), WithLocalSources()).Resolve(ctx, "azblob://menus/lunch.png")
	assert.True(t, common.IsConfigError(err))

	_, err = NewResolver(&fakeBlobs{err: errors.New("403")}, quietLogger(), WithLocalSources()).Resolve(ctx, "azblob://menus/lunch.png")
	assert.ErrorIs(t, err, common.ErrProvider)
}

func TestReadCapped(t *testing.T) {
	b, err := readCapped(bytes.NewReader(make([]byte, constants.MaxImageBytes)))
	require.NoError(t, err)
	assert.Len(t, b, constants.MaxImageBytes)

	_, err = readCapped(bytes.NewReader(make([]byte, constants.MaxImageBytes+1)))
	assert.Error(t, err)
}
