package generateshots

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"maestro-pipeline-server/modules/common/fallback"
	"maestro-pipeline-server/modules/common/model"
)

var (
	shotLinePattern  = regexp.MustCompile(`^(?:SHOT|Shot)\s*#?(\d+)\s*[:\-–]\s*(.+)$`)
	numberedPattern  = regexp.MustCompile(`^(\d+)[\)\.:\-]\s*(.+)$`)
	bulletPattern    = regexp.MustCompile(`^[-•]\s*(?:SHOT\s*)?(\d+)\s*[:\-–]\s*(.+)$`)
	looseShotPattern = regexp.MustCompile(`(?:SHOT|Shot)\s*#?(\d+)\s*[:\-–]\s*([^\n]+)`)
)

// ParseShots turns raw director output into exactly shotCount shots ordered
// by id. Structured JSON parsing is preferred; textual pattern matching is
// the fallback. Missing slots are filled with empty-text placeholders on
// the lowest unused positive ids so callers always get a full grid.
func ParseShots(text string, shotCount int) []model.Shot {
	shotCount = fallback.DefaultShotCount(shotCount)

	shots := parseStructured(text)
	if len(shots) == 0 {
		shots = parseTextual(text, shotCount)
	}

	sort.SliceStable(shots, func(i, j int) bool { return shots[i].ID < shots[j].ID })
	if len(shots) > shotCount {
		shots = shots[:shotCount]
	}

	if len(shots) < shotCount {
		existing := make(map[int]struct{}, len(shots))
		for _, s := range shots {
			existing[s.ID] = struct{}{}
		}
		nextID := 1
		for len(shots) < shotCount {
			for {
				if _, taken := existing[nextID]; !taken {
					break
				}
				nextID++
			}
			shots = append(shots, model.Shot{ID: nextID, Text: ""})
			existing[nextID] = struct{}{}
		}
	}

	return shots
}

// parseStructured locates a JSON structure in the text and accepts three
// shapes: a top-level array of shots, an object with a shots field, or a
// single shot object.
func parseStructured(text string) []model.Shot {
	jsonText := extractJSONSpan(strings.TrimSpace(text))

	var data interface{}
	if err := json.Unmarshal([]byte(jsonText), &data); err != nil {
		return nil
	}

	var shotsData interface{}
	switch v := data.(type) {
	case map[string]interface{}:
		if inner, ok := v["shots"]; ok {
			shotsData = inner
		} else {
			shotsData = v
		}
	case []interface{}:
		shotsData = v
	default:
		return nil
	}

	var shots []model.Shot
	switch v := shotsData.(type) {
	case []interface{}:
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				if shot, ok := shotFromMap(m); ok {
					shots = append(shots, shot)
				}
			}
		}
	case map[string]interface{}:
		if shot, ok := shotFromMap(v); ok {
			shots = append(shots, shot)
		}
	}

	return dedupeByID(shots)
}

func shotFromMap(m map[string]interface{}) (model.Shot, bool) {
	id := fallback.SafeInt(m["id"], 0)
	if id == 0 {
		id = fallback.SafeInt(m["shot_id"], 0)
	}

	text := fallback.SafeString(m["description"], "")
	if text == "" {
		text = fallback.SafeString(m["text"], "")
	}
	if text == "" {
		text = fallback.SafeString(m["desc"], "")
	}

	if id <= 0 || text == "" {
		return model.Shot{}, false
	}
	return model.Shot{ID: id, Text: text}, true
}

// extractJSONSpan finds the first balanced top-level array by bracket-depth
// scan, or failing that the span from the first { to the last }.
func extractJSONSpan(text string) string {
	start := strings.Index(text, "[")
	if start >= 0 {
		depth := 0
		for i := start; i < len(text); i++ {
			switch text[i] {
			case '[':
				depth++
			case ']':
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	objStart := strings.Index(text, "{")
	objEnd := strings.LastIndex(text, "}")
	if objStart >= 0 && objEnd > objStart {
		return text[objStart : objEnd+1]
	}

	return text
}

// parseTextual matches numbered shot lines, one pattern per line, first
// occurrence of each id wins. When fewer than shotCount lines match and a
// SHOT token is present, the joined text is re-scanned with a looser
// pattern to recover shots embedded in a single paragraph.
func parseTextual(text string, shotCount int) []model.Shot {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	var shots []model.Shot
	seen := make(map[int]struct{})
	patterns := []*regexp.Regexp{shotLinePattern, numberedPattern, bulletPattern}

	for _, line := range lines {
		for _, pat := range patterns {
			m := pat.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			id := fallback.SafeInt(m[1], 0)
			desc := strings.TrimSpace(m[2])
			if id > 0 && desc != "" {
				if _, dup := seen[id]; !dup {
					shots = append(shots, model.Shot{ID: id, Text: desc})
					seen[id] = struct{}{}
				}
			}
			break
		}
	}

	if len(shots) < shotCount && containsShotToken(lines) {
		blob := strings.Join(lines, " \n ")
		for _, m := range looseShotPattern.FindAllStringSubmatch(blob, -1) {
			id := fallback.SafeInt(m[1], 0)
			desc := strings.TrimSpace(m[2])
			if id > 0 && desc != "" {
				if _, dup := seen[id]; !dup {
					shots = append(shots, model.Shot{ID: id, Text: desc})
					seen[id] = struct{}{}
				}
			}
		}
	}

	return shots
}

func containsShotToken(lines []string) bool {
	for _, line := range lines {
		if strings.Contains(line, "SHOT") || strings.Contains(line, "Shot") {
			return true
		}
	}
	return false
}

func dedupeByID(shots []model.Shot) []model.Shot {
	seen := make(map[int]struct{}, len(shots))
	out := shots[:0]
	for _, s := range shots {
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}
