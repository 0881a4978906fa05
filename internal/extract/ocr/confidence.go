package ocr

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reClause = regexp.MustCompile(`제\s*\d+\s*조`)
	reDate   = regexp.MustCompile(`20\d{2}\s*[년./-]`)
	reAmount = regexp.MustCompile(`\d{1,3}(,\d{3})+원?|\b\d+만\s*원`)
)

// heuristicConfidence scores decoded text on a 0..100 scale from contract
// artifacts: numbered clauses, dates, money amounts, and overall length.
func heuristicConfidence(txt string) float64 {
	score := 20.0
	if reClause.MatchString(txt) {
		score += 25
	}
	if reDate.MatchString(txt) {
		score += 15
	}
	if reAmount.MatchString(txt) {
		score += 15
	}
	if len([]rune(txt)) > 120 {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}

// parseTSVConfidence returns the mean word confidence (0..100) from tesseract
// TSV output. Returns 0 when no confident words were reported.
func parseTSVConfidence(tsv string) float64 {
	lines := strings.Split(tsv, "\n")
	var sum float64
	var n int
	for i, ln := range lines {
		if i == 0 || ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[len(cols)-2]
		if confStr == "" || confStr == "-1" {
			continue
		}
		v, err := strconv.ParseFloat(confStr, 64)
		if err != nil {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
