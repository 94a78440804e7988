// Package compositor burns signature placements into a paged PDF document.
// It is a pure bytes+geometry transform: it knows nothing about documents or
// signers beyond the placement instructions it is handed.
package compositor

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"log/slog"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	xdraw "golang.org/x/image/draw"
)

// Placement describes one mark to draw: where (1-based page, bottom-left
// origin, page-space points) and what (a signature image with optional name
// and date lines, or text when no image is drawable).
type Placement struct {
	PageNumber  int
	X           float64
	Y           float64
	Image       []byte // raw submitted payload, usually a base64 data URL; nil for text-only
	SignerName  string
	IncludeName bool
	IncludeDate bool
	SignedAt    string
}

// Fixed footprint of a burned-in signature image, in page units.
const (
	stampWidth  = 150
	stampHeight = 50
	lineOffset  = 10
	fontPoints  = 8
)

// Composite merges all placements onto the original document and returns the
// full transformed byte stream. Pages without placements pass through; with
// no placements at all the original bytes are returned unchanged.
//
// A placement whose image cannot be decoded does not abort the composite: its
// image draw is skipped and the text lines are still rendered.
func Composite(original []byte, placements []Placement) ([]byte, error) {
	byPage := make(map[int][]*model.Watermark)
	for _, p := range placements {
		wms, err := placementWatermarks(p)
		if err != nil {
			return nil, fmt.Errorf("placement on page %d: %w", p.PageNumber, err)
		}
		byPage[p.PageNumber] = append(byPage[p.PageNumber], wms...)
	}
	if len(byPage) == 0 {
		return append([]byte(nil), original...), nil
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var buf bytes.Buffer
	if err := api.AddWatermarksSliceMap(bytes.NewReader(original), &buf, byPage, conf); err != nil {
		return nil, fmt.Errorf("failed to merge overlays: %w", err)
	}
	return buf.Bytes(), nil
}

// placementWatermarks renders one placement as a list of pdfcpu stamps.
func placementWatermarks(p Placement) ([]*model.Watermark, error) {
	var wms []*model.Watermark

	stamp, stampErr := renderStamp(p.Image)
	if stampErr == nil {
		wm, err := api.ImageWatermarkForReader(bytes.NewReader(stamp), stampDesc(p.X, p.Y), true, false, types.POINTS)
		if err != nil {
			return nil, fmt.Errorf("failed to build image stamp: %w", err)
		}
		wms = append(wms, wm)
	} else {
		// Degrade, don't abort: draw the signer name where the image would be.
		slog.Warn("Signature image not drawable, using text fallback.", "page", p.PageNumber, "error", stampErr)
		wm, err := textWatermark(p.SignerName, p.X, p.Y)
		if err != nil {
			return nil, err
		}
		wms = append(wms, wm)
	}

	y := p.Y - lineOffset
	if p.IncludeName {
		wm, err := textWatermark("Signer: "+p.SignerName, p.X, y)
		if err != nil {
			return nil, err
		}
		wms = append(wms, wm)
		y -= lineOffset
	}
	if p.IncludeDate {
		wm, err := textWatermark("Date: "+p.SignedAt, p.X, y)
		if err != nil {
			return nil, err
		}
		wms = append(wms, wm)
	}
	return wms, nil
}

func stampDesc(x, y float64) string {
	return fmt.Sprintf("pos:bl, off:%.2f %.2f, scalefactor:1 abs, rot:0, op:1", x, y)
}

func textWatermark(text string, x, y float64) (*model.Watermark, error) {
	desc := fmt.Sprintf("font:Helvetica, points:%d, col:0 0 0, pos:bl, off:%.2f %.2f, scalefactor:1 abs, rot:0, op:1", fontPoints, x, y)
	wm, err := api.TextWatermark(text, desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("failed to build text stamp: %w", err)
	}
	return wm, nil
}

// renderStamp decodes a submitted signature payload and resamples it into the
// fixed stampWidth x stampHeight raster, returning PNG bytes sized so a
// 1:1 absolute-scale stamp occupies exactly that footprint in page units.
func renderStamp(payload []byte) ([]byte, error) {
	raw, err := decodeSignatureData(payload)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, stampWidth, stampHeight))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode stamp: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeSignatureData unwraps the submitted payload. Submissions usually
// arrive as data URLs (data:image/png;base64,...); bare base64 and raw image
// bytes are tolerated too. Validation was deferred at submission time, so
// this is where malformed payloads surface.
func decodeSignatureData(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty signature payload")
	}
	s := string(payload)
	if strings.HasPrefix(s, "data:") {
		_, rest, ok := strings.Cut(s, ",")
		if !ok {
			return nil, fmt.Errorf("malformed data URL")
		}
		s = rest
	}
	if raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s)); err == nil {
		return raw, nil
	}
	// Not base64; assume raw image bytes and let image.Decode judge.
	return payload, nil
}
