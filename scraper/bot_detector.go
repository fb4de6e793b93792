package scraper

import (
	"regexp"
	"strings"
)

type marker struct {
	re     *regexp.Regexp
	weight float64
	label  string
}

// BotDetector recognises bot walls and CAPTCHA pages. It only diagnoses;
// nothing in the fetch path tries to get around what it finds.
type BotDetector struct {
	markers []marker
}

// NewBotDetector creates a new bot detector
func NewBotDetector() *BotDetector {
	bot := func(p string) marker { return marker{regexp.MustCompile(`(?i)` + p), 0.3, "bot wall"} }
	captcha := func(p string) marker { return marker{regexp.MustCompile(`(?i)` + p), 0.5, "CAPTCHA"} }
	block := func(p string) marker { return marker{regexp.MustCompile(`(?i)` + p), 0.4, "HTTP error"} }

	return &BotDetector{
		markers: []marker{
			bot(`unfortunately we are unable`),
			bot(`access denied`),
			bot(`bot detected`),
			bot(`security check`),
			bot(`checking your browser`),
			bot(`ddos protection`),
			bot(`too many requests`),
			bot(`sorry, we just need to make sure you're not a robot`),
			captcha(`captcha`),
			captcha(`verify you are human`),
			captcha(`type the characters you see`),
			captcha(`select all images`),
			block(`403 forbidden`),
			block(`429 too many requests`),
			block(`503 service unavailable`),
			block(`site temporarily unavailable`),
		},
	}
}

// DetectBotWall scores page text against known markers. It returns whether the
// page looks like a wall and a "; "-joined list of the markers that matched.
func (bd *BotDetector) DetectBotWall(pageContent, pageTitle string) (bool, string) {
	content := pageContent + " " + pageTitle

	score := 0.0
	var reasons []string
	for _, m := range bd.markers {
		if m.re.MatchString(content) {
			score += m.weight
			reasons = append(reasons, m.label+": "+strings.TrimPrefix(m.re.String(), "(?i)"))
		}
	}

	if score > 0 && len(strings.TrimSpace(content)) < 1000 {
		score += 0.2
		reasons = append(reasons, "very short page")
	}

	return score > 0.3, strings.Join(reasons, "; ")
}
