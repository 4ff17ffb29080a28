package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/aluiziolira/agenda-events/parser"
)

// Feed posts announce a day's agenda as labelled blocks:
//
//	Sexta, 16 de Janeiro
//
//	Projeto: Jam no MAM
//	Atrações: Coletivo Jazz BA
//	Local: Museu de Arte Moderna
//	Quanto: R$ 20
//	Horário: 19h30
//
// The post title anchors the base date; each blank-line-separated block is
// one candidate. Blocks without a Projeto or Atrações line are skipped.

var blockLineRe = regexp.MustCompile(`(?i)^(projeto|atra[çc][õo]es|atra[çc][ãa]o|local|quanto|hor[áa]rio):\s*(.+)$`)

// ParsePost extracts raw candidates from one feed post's text. Returns nil
// when no base date can be anchored from the text; callers count the post
// as invalid.
func ParsePost(postText, postURL string, now time.Time) []RawCandidate {
	base, ok := baseDateFromText(postText, now)
	if !ok {
		return nil
	}

	var candidates []RawCandidate
	for _, block := range strings.Split(postText, "\n\n") {
		if cand := parseBlock(block, base, postURL); cand != nil {
			candidates = append(candidates, cand)
		}
	}
	return candidates
}

func baseDateFromText(text string, now time.Time) (time.Time, bool) {
	canonical, ok := parser.NamedMonthBase(text, now)
	if !ok {
		return time.Time{}, false
	}
	base, err := time.Parse("2006-01-02", canonical)
	return base, err == nil
}

func parseBlock(block string, base time.Time, postURL string) RawCandidate {
	cand := RawCandidate{
		"date":     base.Format("2006-01-02"),
		"post_url": postURL,
	}
	found := false

	for _, line := range strings.Split(block, "\n") {
		m := blockLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[2])
		if value == "" {
			continue
		}
		switch normalizeLabel(m[1]) {
		case "projeto":
			cand["projeto"] = value
			found = true
		case "atracoes":
			cand["atracoes"] = value
			found = true
		case "local":
			cand["local"] = value
		case "quanto":
			cand["quanto"] = value
		case "horario":
			cand["horario"] = value
		}
	}

	if !found {
		return nil
	}
	return cand
}

func normalizeLabel(label string) string {
	lower := strings.ToLower(label)
	switch {
	case strings.HasPrefix(lower, "atra"):
		return "atracoes"
	case strings.HasPrefix(lower, "hor"):
		return "horario"
	default:
		return lower
	}
}
