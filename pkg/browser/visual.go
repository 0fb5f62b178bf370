package browser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/cruciblehq/crucible/pkg/models"
)

// VisualComparer matches page screenshots against stored baselines. The
// first capture for a page becomes its baseline; later captures are
// diffed pixel by pixel against it.
type VisualComparer struct {
	baselineDir string
	evidenceDir string
}

func NewVisualComparer(baselineDir, evidenceDir string) (*VisualComparer, error) {
	for _, dir := range []string{baselineDir, evidenceDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &VisualComparer{baselineDir: baselineDir, evidenceDir: evidenceDir}, nil
}

// Compare evaluates a screenshot against the baseline keyed by pageURL.
// Missing baseline: the screenshot is stored as the new baseline and the
// comparison trivially matches. A diff image is written only on mismatch.
func (v *VisualComparer) Compare(pageURL string, screenshot []byte, threshold float64) (*models.VisualComparison, error) {
	key := baselineKey(pageURL)
	baselinePath := filepath.Join(v.baselineDir, key+".png")

	result := &models.VisualComparison{
		Threshold:    threshold,
		BaselinePath: baselinePath,
	}

	baseline, err := os.ReadFile(baselinePath)
	if os.IsNotExist(err) {
		if err := os.WriteFile(baselinePath, screenshot, 0644); err != nil {
			return nil, fmt.Errorf("failed to store baseline: %w", err)
		}
		result.BaselineCreated = true
		result.Match = true
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline: %w", err)
	}

	currentPath := filepath.Join(v.evidenceDir, key+"_current.png")
	if err := os.WriteFile(currentPath, screenshot, 0644); err != nil {
		return nil, fmt.Errorf("failed to store current screenshot: %w", err)
	}
	result.CurrentPath = currentPath

	baseImg, err := png.Decode(bytes.NewReader(baseline))
	if err != nil {
		return nil, fmt.Errorf("failed to decode baseline image: %w", err)
	}
	currImg, err := png.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}

	ratio, diff := diffImages(baseImg, currImg)
	result.DiffRatio = ratio
	result.Match = ratio <= threshold

	if !result.Match {
		diffPath := filepath.Join(v.evidenceDir, key+"_diff.png")
		var buf bytes.Buffer
		if err := png.Encode(&buf, diff); err != nil {
			return nil, fmt.Errorf("failed to encode diff image: %w", err)
		}
		if err := os.WriteFile(diffPath, buf.Bytes(), 0644); err != nil {
			return nil, fmt.Errorf("failed to store diff image: %w", err)
		}
		result.DiffPath = diffPath
	}
	return result, nil
}

// ResetBaseline drops the stored baseline for a page so the next capture
// becomes the new reference.
func (v *VisualComparer) ResetBaseline(pageURL string) error {
	path := filepath.Join(v.baselineDir, baselineKey(pageURL)+".png")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove baseline: %w", err)
	}
	return nil
}

func baselineKey(pageURL string) string {
	sum := sha256.Sum256([]byte(pageURL))
	return hex.EncodeToString(sum[:16])
}

// diffImages returns the fraction of differing pixels over the union of
// both bounds, plus a highlight image marking them. Pixels covered by only
// one image count as different. Alpha is ignored.
func diffImages(baseline, current image.Image) (float64, image.Image) {
	bb, cb := baseline.Bounds(), current.Bounds()
	union := bb.Union(cb)
	overlap := bb.Intersect(cb)

	diff := image.NewRGBA(union)
	var differing int

	for y := union.Min.Y; y < union.Max.Y; y++ {
		for x := union.Min.X; x < union.Max.X; x++ {
			pt := image.Pt(x, y)
			if !pt.In(overlap) {
				differing++
				diff.Set(x, y, color.RGBA{R: 255, A: 255})
				continue
			}
			br, bg, bbl, _ := baseline.At(x, y).RGBA()
			cr, cg, cbl, _ := current.At(x, y).RGBA()
			if br != cr || bg != cg || bbl != cbl {
				differing++
				diff.Set(x, y, color.RGBA{R: 255, A: 255})
			} else {
				diff.Set(x, y, color.RGBA{R: uint8(br >> 8), G: uint8(bg >> 8), B: uint8(bbl >> 8), A: 64})
			}
		}
	}

	total := union.Dx() * union.Dy()
	if total == 0 {
		return 0, diff
	}
	return float64(differing) / float64(total), diff
}
