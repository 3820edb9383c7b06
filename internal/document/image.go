package document

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// prepareImage decodes an uploaded PNG/JPEG and re-encodes it as a
// grayscale PNG in the work directory. Tesseract reads grayscale input
// directly and the re-encode also weeds out undecodable uploads early.
func prepareImage(content []byte, workDir string) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	out := filepath.Join(workDir, "page-1.png")
	if err := imaging.Save(imaging.Grayscale(img), out); err != nil {
		return "", fmt.Errorf("save normalized image: %w", err)
	}
	return out, nil
}
