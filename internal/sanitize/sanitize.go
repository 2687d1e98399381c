package sanitize

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/weft/pkg/domain"
)

var (
	// DefaultMaxInputSize is 4KB (conservative default)
	DefaultMaxInputSize = 4096
	// EnvMaxInputSize is the environment variable to override the default
	EnvMaxInputSize = "WEFT_MAX_INPUT_SIZE"
	// MaxThreadIDSize bounds thread ids accepted from the network.
	MaxThreadIDSize = 256
)

var (
	ErrInputTooLarge   = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8     = errors.New("input contains invalid UTF-8 sequences")
	ErrInvalidThreadID = errors.New("invalid thread id")
)

const maxNestingDepth = 32

var errNestingTooDeep = errors.New("input nesting too deep")

// Input cleans user input by enforcing size limits,
// validating UTF-8, and stripping dangerous control characters.
func Input(input string) (string, error) {
	limit := maxInputSize()
	if len(input) > limit {
		// Rejected rather than truncated so state stays deterministic.
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}

	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	// Newline, tab and carriage return are kept. ESC, NULL, BEL and the rest
	// are removed to prevent log poisoning and terminal corruption.
	clean := true
	for _, r := range input {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return input, nil
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// Values returns a copy of v with every string, at any depth, cleaned by Input.
func Values(v domain.Values) (domain.Values, error) {
	out, err := value(map[string]any(v), 0)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return domain.Values(out.(map[string]any)), nil
}

func value(v any, depth int) (any, error) {
	if depth > maxNestingDepth {
		return nil, errNestingTooDeep
	}
	switch t := v.(type) {
	case string:
		return Input(t)
	case map[string]any:
		if t == nil {
			return nil, nil
		}
		out := make(map[string]any, len(t))
		for k, item := range t {
			key, err := Input(k)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			if out[key], err = value(item, depth+1); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			var err error
			if out[i], err = value(item, depth+1); err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return out, nil
	default:
		return v, nil
	}
}

// ThreadID validates a caller-supplied thread id. Empty ids are accepted:
// the executor generates one. Ids must be printable UTF-8 without
// surrounding whitespace.
func ThreadID(id string) error {
	switch {
	case id == "":
		return nil
	case len(id) > MaxThreadIDSize:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidThreadID, MaxThreadIDSize)
	case !utf8.ValidString(id):
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidThreadID)
	case strings.TrimSpace(id) != id:
		return fmt.Errorf("%w: surrounding whitespace", ErrInvalidThreadID)
	}
	for _, r := range id {
		if !unicode.IsPrint(r) {
			return fmt.Errorf("%w: contains %q", ErrInvalidThreadID, r)
		}
	}
	return nil
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}

func maxInputSize() int {
	if val := os.Getenv(EnvMaxInputSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxInputSize
}
