package storage

import (
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// encodeEmbedding serializes a float32 vector using pgvector-go's text
// encoding ("[0.1,-0.2,...]"). The library's Postgres wire-format encoder is
// reused purely as a compact, well-tested float32-slice codec — MAMA has no
// live Postgres connection; the embedding column is plain SQLite TEXT.
func encodeEmbedding(v []float32) (string, error) {
	if v == nil {
		return "", nil
	}
	value, err := pgvector.NewVector(v).Value()
	if err != nil {
		return "", fmt.Errorf("storage: encode embedding: %w", err)
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("storage: encode embedding: unexpected value type %T", value)
	}
	return s, nil
}

// decodeEmbedding parses the pgvector text encoding back into a float32 slice.
// An empty string decodes to a nil slice (no embedding stored).
func decodeEmbedding(s string) ([]float32, error) {
	if s == "" {
		return nil, nil
	}
	var v pgvector.Vector
	if err := v.Scan(s); err != nil {
		return nil, fmt.Errorf("storage: decode embedding: %w", err)
	}
	return v.Slice(), nil
}
