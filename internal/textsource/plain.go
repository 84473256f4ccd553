package textsource

import (
	"context"
	"fmt"
)

// Plain reads documents that already hold text.
type Plain struct{}

// Text implements Source.
func (Plain) Text(ctx context.Context, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := decodeText(doc.Data)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", doc.Name, err)
	}
	return Normalize(text), nil
}
