package analysis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/MuhaiminulSajid16/image-to-text/internal/domain"
)

var (
	// 'key': 'value' or "key": "value", as printed by a Python dict repr.
	quotedPair = regexp.MustCompile(`['"]([A-Za-z_ ]+)['"]\s*:\s*(?:'((?:[^'\\]|\\.)*)'|"((?:[^"\\]|\\.)*)")`)
	linePair   = regexp.MustCompile(`^\s*[-*]?\s*([A-Za-z_ ]+?)\s*[:=]\s*(.*?)\s*[,;]?\s*$`)
)

// ParseOutput recovers an Analysis from model output. Strict JSON, a
// Python-dict repr and "key: value" lines are accepted; unknown keys are
// ignored. It fails when none of the four fields is present.
func ParseOutput(raw string) (domain.Analysis, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return domain.Analysis{}, fmt.Errorf("%w: empty output", domain.ErrParseFailed)
	}

	for _, parse := range []func(string) (map[string]string, bool){parseJSON, parseQuoted, parseLines} {
		fields, ok := parse(s)
		if !ok {
			continue
		}
		if a, found := fromFields(fields); found {
			return a.Normalize(), nil
		}
	}
	return domain.Analysis{}, fmt.Errorf("%w: %q", domain.ErrParseFailed, truncate(s, 80))
}

func parseJSON(s string) (map[string]string, bool) {
	var obj map[string]any
	if err := sonic.UnmarshalString(s, &obj); err != nil {
		return nil, false
	}
	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case nil:
			fields[k] = ""
		case string:
			fields[k] = val
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			fields[k] = strings.Join(parts, ", ")
		default:
			fields[k] = fmt.Sprint(val)
		}
	}
	return fields, true
}

func parseQuoted(s string) (map[string]string, bool) {
	matches := quotedPair.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil, false
	}
	fields := make(map[string]string, len(matches))
	for _, m := range matches {
		val := m[2]
		if val == "" {
			val = m[3]
		}
		fields[m[1]] = unescape(val)
	}
	return fields, true
}

func parseLines(s string) (map[string]string, bool) {
	fields := make(map[string]string)
	for _, line := range strings.Split(s, "\n") {
		m := linePair.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		fields[m[1]] = strings.Trim(m[2], `'"`)
	}
	return fields, len(fields) > 0
}

func unescape(s string) string {
	return strings.NewReplacer(`\'`, `'`, `\"`, `"`, `\\`, `\`).Replace(s)
}

// fieldAliases lists the accepted keys per field, most specific first.
var fieldAliases = [4][]string{
	{"medication", "medications", "medicine", "drug"},
	{"dosage", "dosages", "dose"},
	{"frequency", "frequencies"},
	{"duration", "durations"},
}

// fromFields maps recognised keys onto the record. When several aliases of
// one field are present the earliest in fieldAliases wins.
func fromFields(fields map[string]string) (domain.Analysis, bool) {
	normalized := make(map[string]string, len(fields))
	for k, v := range fields {
		normalized[strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), " ", "_")] = v
	}

	var (
		vals  [4]string
		found bool
	)
	for i, aliases := range fieldAliases {
		for _, alias := range aliases {
			if v, ok := normalized[alias]; ok {
				vals[i], found = v, true
				break
			}
		}
	}
	return domain.Analysis{Medication: vals[0], Dosage: vals[1], Frequency: vals[2], Duration: vals[3]}, found
}
