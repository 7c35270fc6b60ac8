package render

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"time"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
)

// encodePNG encodes the canvas as PNG.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// pdfPointsPerPixel maps 96 DPI pixels to PDF points.
const pdfPointsPerPixel = 0.75

// encodePDF writes a single-page PDF whose page is the canvas, embedded as a
// DCT (JPEG) image. The page is exactly the size of the canvas.
func encodePDF(img image.Image, title string) ([]byte, error) {
	var jpg bytes.Buffer
	if err := imaging.Encode(&jpg, img, imaging.JPEG, imaging.JPEGQuality(92)); err != nil {
		return nil, fmt.Errorf("encoding pdf page: %w", err)
	}

	b := img.Bounds()
	pw := float64(b.Dx()) * pdfPointsPerPixel
	ph := float64(b.Dy()) * pdfPointsPerPixel

	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: pw, Ht: ph},
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.SetProducer("plotting-mcp", false)
	doc.SetCreationDate(time.Now().UTC())
	if title != "" {
		doc.SetTitle(title, !isASCII(title))
	}
	doc.AddPage()

	opts := fpdf.ImageOptions{ImageType: "JPG"}
	doc.RegisterImageOptionsReader("page", opts, &jpg)
	doc.ImageOptions("page", 0, 0, pw, ph, false, opts, 0, "")

	var out bytes.Buffer
	if err := doc.Output(&out); err != nil {
		return nil, fmt.Errorf("writing pdf: %w", err)
	}
	return out.Bytes(), nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
