package broker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

var errNotArray = errors.New("payload is not a JSON array")

// Encode serializes opps as one JSON array. A nil list encodes as [].
func Encode(opps []domain.Opportunity) ([]byte, error) {
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	data, err := json.Marshal(opps)
	if err != nil {
		return nil, fmt.Errorf("broker: encode payload: %w", err)
	}
	return data, nil
}

// Decode parses a payload produced by Encode.
func Decode(data []byte) ([]domain.Opportunity, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("broker: decode payload: %w", errNotArray)
	}
	var opps []domain.Opportunity
	if err := json.Unmarshal(trimmed, &opps); err != nil {
		return nil, fmt.Errorf("broker: decode payload: %w", err)
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	return opps, nil
}
