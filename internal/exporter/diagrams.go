package exporter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"math"
	"regexp"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	d2renderer "github.com/sirily11/msbd5017-docs/internal/renderer/d2"
)

// diagramEncoder turns d2 fences into data URI images so the PDF renderer
// doesn't need to understand diagram blocks.
type diagramEncoder struct {
	d2 *d2renderer.Renderer
}

// encode rewrites ```d2 fences into Markdown image tags with embedded PNG data.
// If rendering fails the original fence is kept so the source still shows.
func (e *diagramEncoder) encode(ctx context.Context, raw []byte) ([]byte, error) {
	var (
		out          bytes.Buffer
		scanner      = bufio.NewScanner(bytes.NewReader(raw))
		inFence      bool
		fenceMarker  string
		fenceLang    string
		diagramLines bytes.Buffer
	)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if !inFence {
			if marker, lang, ok := parseFenceStart(trimmed); ok {
				inFence = true
				fenceMarker = marker
				fenceLang = lang
				diagramLines.Reset()
				if !isD2Fence(lang) {
					writeLine(&out, line)
				}
				continue
			}
			writeLine(&out, line)
			continue
		}

		if isFenceEnd(trimmed, fenceMarker) {
			if isD2Fence(fenceLang) {
				if err := e.flushD2(ctx, &out, diagramLines.String()); err != nil {
					writeLine(&out, fenceMarker+fenceLang)
					out.Write(diagramLines.Bytes())
					writeLine(&out, fenceMarker)
				}
			} else {
				writeLine(&out, line)
			}
			inFence = false
			fenceMarker = ""
			fenceLang = ""
			continue
		}

		if isD2Fence(fenceLang) {
			writeLine(&diagramLines, line)
		} else {
			writeLine(&out, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Unclosed fence: emit buffered content as-is.
	if inFence && isD2Fence(fenceLang) {
		writeLine(&out, fenceMarker+fenceLang)
		out.Write(diagramLines.Bytes())
	}

	return out.Bytes(), nil
}

func (e *diagramEncoder) flushD2(ctx context.Context, out *bytes.Buffer, source string) error {
	if strings.TrimSpace(source) == "" {
		return nil
	}
	if e == nil || e.d2 == nil {
		return fmt.Errorf("d2 renderer unavailable")
	}

	res, err := e.d2.Render(ctx, source)
	if err != nil {
		return fmt.Errorf("render d2: %w", err)
	}

	pngData, err := svgToPNG([]byte(res.SVG))
	if err != nil {
		return fmt.Errorf("rasterize d2 svg: %w", err)
	}

	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
	_, err = fmt.Fprintf(out, "![D2 diagram](%s)\n\n", dataURI)
	return err
}

var (
	headingAnnotation = regexp.MustCompile(`^(#{1,6}\s.*?)\s*\{(\{.*\}|#[\w-]+)\}\s*$`)
	esmStatement      = regexp.MustCompile(`^(export\s+(const|let|var)\s|import[\s{*'"])`)
)

// stripAnnotations drops ESM import and export statements and heading annotations,
// which only mean something to the site pipeline.
func stripAnnotations(raw []byte) []byte {
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)

	var (
		fence    string
		inExport bool
	)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if fence != "" {
			if isFenceEnd(trimmed, fence) {
				fence = ""
			}
			writeLine(&out, line)
			continue
		}
		if marker, _, ok := parseFenceStart(trimmed); ok {
			fence = marker
			writeLine(&out, line)
			continue
		}

		if inExport {
			if trimmed == "" {
				inExport = false
				writeLine(&out, line)
			}
			continue
		}
		if esmStatement.MatchString(line) {
			inExport = true
			continue
		}

		if m := headingAnnotation.FindStringSubmatch(line); m != nil {
			line = m[1]
		}
		writeLine(&out, line)
	}
	return out.Bytes()
}

func parseFenceStart(line string) (marker, lang string, ok bool) {
	for _, ch := range []rune{'`', '~'} {
		fenceChars := strings.Repeat(string(ch), 3)
		if strings.HasPrefix(line, fenceChars) {
			marker = line[:leadingCount(line, ch)]
			lang = strings.TrimSpace(strings.TrimPrefix(line, marker))
			return marker, lang, true
		}
	}
	return "", "", false
}

func isFenceEnd(line, marker string) bool {
	if marker == "" {
		return false
	}
	return line == strings.Repeat(string(marker[0]), len(marker))
}

func isD2Fence(lang string) bool {
	fields := strings.Fields(strings.ToLower(lang))
	return len(fields) > 0 && fields[0] == "d2"
}

func leadingCount(line string, char rune) int {
	count := 0
	for _, r := range line {
		if r != char {
			break
		}
		count++
	}
	return count
}

func writeLine(buf *bytes.Buffer, line string) {
	buf.WriteString(line)
	buf.WriteByte('\n')
}

// svgToPNG rasterizes an SVG into a PNG byte slice suitable for embedding as a data URI.
func svgToPNG(svg []byte) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}

	viewbox := icon.ViewBox
	width := int(math.Ceil(viewbox.W))
	height := int(math.Ceil(viewbox.H))
	if width <= 0 || height <= 0 {
		width, height = 800, 600
	}

	icon.SetTarget(0, 0, float64(width), float64(height))

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, canvas, canvas.Bounds())
	raster := rasterx.NewDasher(width, height, scanner)
	icon.Draw(raster, 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
