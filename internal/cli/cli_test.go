package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/menuocr/constants"
	"github.com/joseph-ayodele/menuocr/internal/app"
	"github.com/joseph-ayodele/menuocr/internal/common"
	"github.com/joseph-ayodele/menuocr/internal/menu"
)

const sampleMenu = `STARTERS
Paneer Tikka ₹280
Veg Spring Roll ..... 220
Hara Bhara Kabab Rs. 240/-
MAIN COURSE
Dal Makhani 260
Butter Naan $3.50
BEVERAGES
Masala Chai 40`

// useOfflineApp builds the real pipeline with no provider keys, so every
// provider call fails fast without touching the network.
func useOfflineApp(t *testing.T, dsn string) {
	t.Helper()
	t.Setenv("OCRSPACE_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")
	old := newApp
	newApp = func(ctx context.Context, _ *cobra.Command) (*app.App, error) {
		cfg := common.DefaultConfig()
		if dsn != "" {
			cfg.Database.Driver = "sqlite"
			cfg.Database.DSN = dsn
		}
		return app.Build(ctx, cfg, app.NewLogger(io.Discard, false, false))
	}
	t.Cleanup(func() { newApp = old })
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	textFile, scoreThreshold = "", menu.DefaultThreshold
	batchConcurrency, batchOut = 2, ""
	exportOut, exportLimit = "menu-runs.xlsx", 500
	ocrEngine = "both"

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()
	err := rootCmd.Execute()
	return buf.String(), err
}

// writePNG writes a small image whose pixels depend on path, so no two test
// files share a content hash.
func writePNG(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	img := image.NewGray(image.Rect(0, 0, 3, 3))
	sum := sha256.Sum256([]byte(path))
	copy(img.Pix, sum[:])
	require.NoError(t, png.Encode(f, img))
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "menuocr version dev")
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"process", "ocr", "validate", "score", "batch", "watch", "export", "dbcheck", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestScoreCmd(t *testing.T) {
	out, err := execute(t, "", "score", sampleMenu)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, true, got["isMenu"])
	assert.Equal(t, "heuristic", got["source"])
	assert.EqualValues(t, 6, got["signals"].(map[string]any)["prices"])
}

func TestScoreCmd_InputSources(t *testing.T) {
	out, err := execute(t, sampleMenu, "score")
	require.NoError(t, err)
	assert.Contains(t, out, `"isMenu": true`)

	p := filepath.Join(t.TempDir(), "menu.txt")
	require.NoError(t, os.WriteFile(p, []byte("Terms and conditions apply."), 0o644))
	out, err = execute(t, "", "score", "--file", p)
	require.NoError(t, err)
	assert.Contains(t, out, `"isMenu": false`)

	_, err = execute(t, "", "score", "--file", p, "text")
	assert.ErrorContains(t, err, "either as an argument or with --file")

	// saturated signals score 1.00, so even a strict threshold passes
	out, err = execute(t, "", "score", "--threshold", "0.99", sampleMenu)
	require.NoError(t, err)
	assert.Contains(t, out, `"isMenu": true`)

	// two priced lines score 0.27
	const short = "Chai 40\nLassi 60"
	out, err = execute(t, "", "score", short)
	require.NoError(t, err)
	assert.Contains(t, out, `"isMenu": false`)
	out, err = execute(t, "", "score", "--threshold", "0.2", short)
	require.NoError(t, err)
	assert.Contains(t, out, `"isMenu": true`)
}

func TestValidateCmd_FallsBackWithoutKey(t *testing.T) {
	useOfflineApp(t, "")
	out, err := execute(t, "", "validate", sampleMenu)
	require.NoError(t, err)

	var got struct {
		ValidationResult menu.ValidationResult `json:"validationResult"`
		Decision         constants.Decision    `json:"decision"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, constants.VerdictSourceHeuristic, got.ValidationResult.Source)
	assert.True(t, got.ValidationResult.IsMenu)
	assert.Contains(t, got.ValidationResult.Reason, "LLM validation failed")
	assert.NotEmpty(t, got.Decision)
}

func TestProcessCmd_BothEnginesFail(t *testing.T) {
	useOfflineApp(t, "")
	_, err := execute(t, "", "process", "/9j/4AAQSkZJRg==")
	assert.ErrorIs(t, err, common.ErrBothEnginesFailed)

	_, err = execute(t, "", "process")
	assert.ErrorContains(t, err, "accepts 1 arg(s)")
}

func TestOCRCmd_UnknownEngine(t *testing.T) {
	_, err := execute(t, "", "ocr", "--engine", "tesseract", "/9j/4AAQSkZJRg==")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestBatchExportAndDBCheck(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "runs.db")
	useOfflineApp(t, dsn)

	inbox := filepath.Join(dir, "inbox")
	writePNG(t, filepath.Join(inbox, "a.png"))
	writePNG(t, filepath.Join(inbox, "nested", "b.png"))
	writePNG(t, filepath.Join(inbox, ".trash", "c.png"))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "notes.txt"), []byte("x"), 0o644))

	lines := filepath.Join(dir, "out.jsonl")
	_, err := execute(t, "", "batch", inbox, "--out", lines, "-c", "2")
	assert.ErrorContains(t, err, "2 of 2 images failed")

	f, err := os.Open(lines)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	var got []BatchLine
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var l BatchLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		got = append(got, l)
	}
	require.Len(t, got, 2)
	for _, l := range got {
		assert.Equal(t, constants.DecisionRetry, l.Decision)
		assert.NotEmpty(t, l.RunID)
		assert.Contains(t, l.Error, "both OCR services failed")
	}

	out, err := execute(t, "", "dbcheck")
	require.NoError(t, err)
	assert.Contains(t, out, "database ok (sqlite3), 1 recent run(s) visible")

	xlsx := filepath.Join(dir, "runs.xlsx")
	out, err = execute(t, "", "export", "--out", xlsx)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+xlsx)
	info, err := os.Stat(xlsx)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestRunsCmds_NeedDatabase(t *testing.T) {
	useOfflineApp(t, "")
	_, err := execute(t, "", "dbcheck")
	assert.ErrorIs(t, err, errNoDatabase)
	_, err = execute(t, "", "export")
	assert.ErrorIs(t, err, errNoDatabase)
}

func TestCollectImages(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "b.png"))
	writePNG(t, filepath.Join(root, "a", "menu.JPG"))
	writePNG(t, filepath.Join(root, ".hidden", "x.png"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.md"), nil, 0o644))

	got, err := collectImages(root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a", "menu.JPG"), filepath.Join(root, "b.png")}, got)
}

func TestRunInbox_InitialScan(t *testing.T) {
	t.Setenv("OCRSPACE_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox")
	writePNG(t, filepath.Join(inbox, "lunch.png"))
	writePNG(t, filepath.Join(inbox, "dinner", "page1.png"))

	cfg := common.DefaultConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = filepath.Join(dir, "runs.db")
	a, err := app.Build(context.Background(), cfg, app.NewLogger(io.Discard, false, false))
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	require.NoError(t, RunInbox(ctx, a, inbox, true))

	runs, err := a.Store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	var sources []string
	for _, r := range runs {
		assert.Equal(t, string(constants.DecisionRetry), r.Decision)
		sources = append(sources, filepath.Base(r.Source))
	}
	assert.ElementsMatch(t, []string{"lunch.png", "page1.png"}, sources)
}
