package camera

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed signatures.yaml
var defaultSignaturesYAML []byte

// Signatures is the table of error fragments that indicate a disconnect.
type Signatures struct {
	Disconnect []string `yaml:"disconnect"`
}

// DefaultSignatures returns the built-in table.
func DefaultSignatures() Signatures {
	s, err := parseSignatures(defaultSignaturesYAML)
	if err != nil {
		panic(fmt.Sprintf("camera: built-in signatures: %v", err))
	}
	return s
}

// LoadSignatures reads a signature table from path. An empty path returns
// the built-in table.
func LoadSignatures(path string) (Signatures, error) {
	if path == "" {
		return DefaultSignatures(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Signatures{}, fmt.Errorf("read signatures: %w", err)
	}
	s, err := parseSignatures(data)
	if err != nil {
		return Signatures{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func parseSignatures(data []byte) (Signatures, error) {
	var s Signatures
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Signatures{}, fmt.Errorf("parse signatures: %w", err)
	}
	kept := s.Disconnect[:0]
	for _, sig := range s.Disconnect {
		if sig = strings.TrimSpace(sig); sig != "" {
			kept = append(kept, sig)
		}
	}
	s.Disconnect = kept
	if len(s.Disconnect) == 0 {
		return Signatures{}, fmt.Errorf("no disconnect signatures")
	}
	return s, nil
}

// MatchDisconnect returns the first signature found in stderr.
func (s Signatures) MatchDisconnect(stderr string) (string, bool) {
	lower := strings.ToLower(stderr)
	for _, sig := range s.Disconnect {
		if strings.Contains(lower, strings.ToLower(sig)) {
			return sig, true
		}
	}
	return "", false
}
