package quality

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// staticBackend is the offline judge: it derives a verdict from a content
// hash of the prompt, so identical inputs always score identically and no
// network or API key is involved. Deployments use it for local development
// and end-to-end tests.
type staticBackend struct{}

func newStaticBackend() *staticBackend { return &staticBackend{} }

func (b *staticBackend) Name() string { return "static" }

func (b *staticBackend) Complete(_ context.Context, prompt string) (string, error) {
	sum := sha256.Sum256([]byte(prompt))

	// Fold the hash into stable bands: scores in [0.70, 0.95), confidence
	// in [0.80, 0.95).
	score := 0.70 + 0.25*float64(binary.BigEndian.Uint16(sum[0:2]))/65536.0
	confidence := 0.80 + 0.15*float64(binary.BigEndian.Uint16(sum[2:4]))/65536.0

	verdict := map[string]any{
		"score":       math.Round(score*1000) / 1000,
		"confidence":  math.Round(confidence*1000) / 1000,
		"reasoning":   fmt.Sprintf("deterministic heuristic verdict %x", sum[0:4]),
		"evidence":    []string{},
		"suggestions": []string{},
	}
	body, err := json.Marshal(verdict)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
