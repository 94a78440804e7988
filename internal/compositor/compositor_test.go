package compositor

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// minimalPDF builds a valid n-page PDF with letter-sized pages and a correct
// cross-reference table.
func minimalPDF(t *testing.T, pages int) []byte {
	t.Helper()
	var buf bytes.Buffer
	var offsets []int
	writeObj := func(s string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(s)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", 3+i)
	}
	writeObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	writeObj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n",
		strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		writeObj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>\nendobj\n", 3+i))
	}

	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(offsets)+1, xrefPos)
	return buf.Bytes()
}

func signaturePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func dataURL(raw []byte) []byte {
	return []byte("data:image/png;base64," + base64.StdEncoding.EncodeToString(raw))
}

func pageCount(t *testing.T, pdf []byte) int {
	t.Helper()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(pdf), conf)
	if err != nil {
		t.Fatalf("page count: %v", err)
	}
	return n
}

func TestCompositeNoPlacements(t *testing.T) {
	original := minimalPDF(t, 2)
	out, err := Composite(original, nil)
	if err != nil {
		t.Fatalf("Composite: %v", err)
	}
	if !bytes.Equal(out, original) {
		t.Error("zero-placement composite should return the original bytes unchanged")
	}
}

func TestCompositeImagePlacement(t *testing.T) {
	original := minimalPDF(t, 2)
	placements := []Placement{{
		PageNumber:  1,
		X:           100,
		Y:           200,
		Image:       dataURL(signaturePNG(t)),
		SignerName:  "Ada Lovelace",
		IncludeName: true,
		IncludeDate: true,
		SignedAt:    "2026-08-25 10:30",
	}}

	out, err := Composite(original, placements)
	if err != nil {
		t.Fatalf("Composite: %v", err)
	}
	if bytes.Equal(out, original) {
		t.Error("composite with placements should differ from the original")
	}
	if got := pageCount(t, out); got != 2 {
		t.Errorf("page count = %d, want 2", got)
	}
}

func TestCompositeMalformedImageFallsBack(t *testing.T) {
	original := minimalPDF(t, 1)

	tests := []struct {
		name    string
		payload []byte
	}{
		{"garbage bytes", []byte("garbage")},
		{"data url with bad base64", []byte("data:image/png;base64,!!!not-base64!!!")},
		{"base64 of non-image", dataURL([]byte("plain text"))},
		{"nil payload", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Composite(original, []Placement{{
				PageNumber:  1,
				X:           50,
				Y:           500,
				Image:       tc.payload,
				SignerName:  "Grace Hopper",
				IncludeName: true,
				IncludeDate: true,
				SignedAt:    "2026-08-25 10:31",
			}})
			if err != nil {
				t.Fatalf("Composite should degrade, not abort: %v", err)
			}
			if got := pageCount(t, out); got != 1 {
				t.Errorf("page count = %d, want 1", got)
			}
		})
	}
}

func TestCompositeMultiplePlacementsOnOnePage(t *testing.T) {
	original := minimalPDF(t, 3)
	placements := []Placement{
		{PageNumber: 1, X: 100, Y: 200, Image: dataURL(signaturePNG(t)), SignerName: "A", IncludeName: true, IncludeDate: true, SignedAt: "2026-08-25 09:00"},
		{PageNumber: 1, X: 300, Y: 200, Image: []byte("not decodable"), SignerName: "B", IncludeName: true, IncludeDate: true, SignedAt: "2026-08-25 09:05"},
		{PageNumber: 3, X: 50, Y: 700, SignerName: "C", IncludeDate: true, SignedAt: "2026-08-25 09:10"},
	}
	out, err := Composite(original, placements)
	if err != nil {
		t.Fatalf("Composite: %v", err)
	}
	if got := pageCount(t, out); got != 3 {
		t.Errorf("page count = %d, want 3", got)
	}
}

// Repeated composites of the same inputs must stay structurally stable. The
// PDF writer stamps a modification date, so exact byte identity is only
// required for the zero-placement pass-through.
func TestCompositeStableOutput(t *testing.T) {
	original := minimalPDF(t, 2)
	placements := []Placement{
		{PageNumber: 2, X: 400, Y: 100, Image: dataURL(signaturePNG(t)), SignerName: "A", IncludeName: true, IncludeDate: true, SignedAt: "2026-08-25 12:00"},
	}

	first, err := Composite(original, placements)
	if err != nil {
		t.Fatalf("Composite: %v", err)
	}
	second, err := Composite(original, placements)
	if err != nil {
		t.Fatalf("Composite: %v", err)
	}
	if len(first) != len(second) {
		t.Errorf("output sizes differ across invocations: %d vs %d", len(first), len(second))
	}
	if pageCount(t, first) != pageCount(t, second) {
		t.Error("page counts differ across invocations")
	}
}

func TestDecodeSignatureData(t *testing.T) {
	raw := signaturePNG(t)

	tests := []struct {
		name    string
		payload []byte
		want    []byte
		wantErr bool
	}{
		{"data url", dataURL(raw), raw, false},
		{"bare base64", []byte(base64.StdEncoding.EncodeToString(raw)), raw, false},
		{"raw bytes pass through", raw, raw, false},
		{"data url without comma", []byte("data:image/png;base64"), nil, true},
		{"empty", nil, nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeSignatureData(tc.payload)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeSignatureData: %v", err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Error("decoded payload mismatch")
			}
		})
	}
}

func TestRenderStampDimensions(t *testing.T) {
	stamp, err := renderStamp(dataURL(signaturePNG(t)))
	if err != nil {
		t.Fatalf("renderStamp: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(stamp))
	if err != nil {
		t.Fatalf("decode stamp: %v", err)
	}
	if b := img.Bounds(); b.Dx() != stampWidth || b.Dy() != stampHeight {
		t.Errorf("stamp is %dx%d, want %dx%d", b.Dx(), b.Dy(), stampWidth, stampHeight)
	}
}
