package value_codec

import (
	"encoding/hex"
	"fmt"
	"strings"

	"memscan/process"
)

// ParseAOB reads a byte pattern such as "D2 04 ?? 00". A token of "?", "??"
// or "**" is a wildcard. Tokens may also be packed without spaces ("D204??00").
func ParseAOB(text string) (process.AOB, error) {
	tokens := strings.Fields(text)
	if len(tokens) == 1 && len(tokens[0]) > 2 {
		packed := tokens[0]
		if len(packed)%2 != 0 {
			return process.AOB{}, fmt.Errorf("parse aob %q: odd number of hex digits", text)
		}
		tokens = tokens[:0]
		for i := 0; i < len(packed); i += 2 {
			tokens = append(tokens, packed[i:i+2])
		}
	}
	if len(tokens) == 0 {
		return process.AOB{}, fmt.Errorf("parse aob: %w", ErrEmptyPattern)
	}

	pattern := make([]byte, len(tokens))
	mask := make([]byte, len(tokens))
	for i, tok := range tokens {
		switch tok {
		case "?", "??", "**":
			continue
		}
		b, err := hex.DecodeString(tok)
		if err != nil || len(b) != 1 {
			return process.AOB{}, fmt.Errorf("parse aob %q: bad byte %q", text, tok)
		}
		pattern[i] = b[0]
		mask[i] = 0xFF
	}
	return process.NewAOB(pattern, mask)
}
