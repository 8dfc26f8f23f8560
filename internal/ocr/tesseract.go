// Package ocr wraps an external OCR engine behind a small recognizer
// interface. Every invocation works inside its own temporary directory, so
// concurrent sessions never collide on a shared output path, and the
// directory is removed on every exit path.
package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Word is one recognized token with its engine-reported confidence (0-100)
// and bounding box in image pixels.
type Word struct {
	Text       string
	Confidence float64
	Left       float64
	Top        float64
	Width      float64
	Height     float64
}

// Recognizer turns an image into positioned text tokens.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) ([]Word, error)
}

// Tesseract shells out to the tesseract binary and parses its TSV output.
type Tesseract struct {
	binary    string
	languages string
	logger    *zap.Logger
}

var _ Recognizer = (*Tesseract)(nil)

// NewTesseract builds a recognizer for the given binary and language hint
// (e.g. "jpn+eng").
func NewTesseract(binary, languages string, logger *zap.Logger) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	if languages == "" {
		languages = "eng"
	}
	return &Tesseract{
		binary:    binary,
		languages: languages,
		logger:    logger.Named("ocr"),
	}
}

// Recognize runs one OCR pass over the image. The scoped temp directory is
// cleaned up whether the engine succeeds, fails, or times out via ctx.
func (t *Tesseract) Recognize(ctx context.Context, image []byte) ([]Word, error) {
	dir, err := os.MkdirTemp("", "ocular-ocr-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	inputPath := filepath.Join(dir, "input.png")
	if err := os.WriteFile(inputPath, image, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write OCR input image: %w", err)
	}

	// tesseract appends ".tsv" to the output base itself.
	outputBase := filepath.Join(dir, "output")
	cmd := exec.CommandContext(ctx, t.binary, inputPath, outputBase, "-l", t.languages, "tsv")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("OCR invocation cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("tesseract failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	tsv, err := os.ReadFile(outputBase + ".tsv")
	if err != nil {
		return nil, fmt.Errorf("tesseract produced no output file: %w", err)
	}

	words := ParseTSV(tsv)
	t.logger.Debug("OCR pass complete.", zap.Int("words", len(words)))
	return words, nil
}

// TSV column layout emitted by tesseract: level page_num block_num par_num
// line_num word_num left top width height conf text.
const (
	tsvColLeft   = 6
	tsvColTop    = 7
	tsvColWidth  = 8
	tsvColHeight = 9
	tsvColConf   = 10
	tsvColText   = 11
	tsvColumns   = 12
)

// ParseTSV extracts word-level records from tesseract TSV output. Rows
// without recognized text (conf -1, structural rows) are skipped. Exported
// so tests can exercise parsing without the binary installed.
func ParseTSV(data []byte) []Word {
	var words []Word
	scanner := bufio.NewScanner(bytes.NewReader(data))
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			// Header row.
			first = false
			if strings.HasPrefix(line, "level\t") {
				continue
			}
		}
		fields := strings.Split(line, "\t")
		if len(fields) < tsvColumns {
			continue
		}
		conf, err := strconv.ParseFloat(fields[tsvColConf], 64)
		if err != nil || conf < 0 {
			continue
		}
		text := strings.TrimSpace(fields[tsvColText])
		if text == "" {
			continue
		}
		left, err1 := strconv.ParseFloat(fields[tsvColLeft], 64)
		top, err2 := strconv.ParseFloat(fields[tsvColTop], 64)
		width, err3 := strconv.ParseFloat(fields[tsvColWidth], 64)
		height, err4 := strconv.ParseFloat(fields[tsvColHeight], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		words = append(words, Word{
			Text:       text,
			Confidence: conf,
			Left:       left,
			Top:        top,
			Width:      width,
			Height:     height,
		})
	}
	return words
}
