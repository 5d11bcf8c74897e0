package merge

import (
	"encoding/base64"
	"fmt"

	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/kvsearch/internal/compress"
	"github.com/hupe1980/kvsearch/model"
)

const tokenVersion = 1

type tokenPayload struct {
	Version     int       `json:"v"`
	Fingerprint uint64    `json:"f"`
	Last        model.Hit `json:"l"`
}

// EncodeToken returns the resume token positioned after last for the plan
// identified by fingerprint.
func EncodeToken(fingerprint uint64, last model.Hit) (string, error) {
	data, err := gojson.Marshal(tokenPayload{Version: tokenVersion, Fingerprint: fingerprint, Last: last})
	if err != nil {
		return "", fmt.Errorf("encode resume token: %w", err)
	}
	block, err := compress.Compress(data, compress.ZSTD)
	if err != nil {
		return "", fmt.Errorf("encode resume token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(block), nil
}

// DecodeToken returns the last emitted hit recorded in token. Tokens that do
// not decode or belong to another plan fail with model.ErrInvalidResumeToken.
func DecodeToken(fingerprint uint64, token string) (model.Hit, error) {
	block, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return model.Hit{}, fmt.Errorf("%w: %w", model.ErrInvalidResumeToken, err)
	}
	data, err := compress.Decompress(block)
	if err != nil {
		return model.Hit{}, fmt.Errorf("%w: %w", model.ErrInvalidResumeToken, err)
	}
	var p tokenPayload
	if err := gojson.Unmarshal(data, &p); err != nil {
		return model.Hit{}, fmt.Errorf("%w: %w", model.ErrInvalidResumeToken, err)
	}
	if p.Version != tokenVersion {
		return model.Hit{}, fmt.Errorf("%w: unsupported version %d", model.ErrInvalidResumeToken, p.Version)
	}
	if p.Fingerprint != fingerprint {
		return model.Hit{}, fmt.Errorf("%w: issued for a different query", model.ErrInvalidResumeToken)
	}
	return p.Last, nil
}
