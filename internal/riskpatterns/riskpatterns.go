// Package riskpatterns scans contract text against a fixed table of risky
// clause signatures. It is pure and deterministic: no I/O, no hidden state,
// identical input yields identical ordered findings.
package riskpatterns

import (
	"fmt"
	"regexp"
	"strings"
)

// Level grades the severity of a finding.
type Level string

const (
	LevelHigh   Level = "HIGH"
	LevelMedium Level = "MEDIUM"
	LevelLow    Level = "LOW"
)

// Finding is one detected risky clause.
type Finding struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Level       Level  `json:"level"`
	MatchedText string `json:"matched_text,omitempty"`
}

type pattern struct {
	re            *regexp.Regexp
	titleKo       string
	titleEn       string
	descriptionKo string
	descriptionEn string
	level         Level
}

// Clause families tuned to Korean freelance/service contracts. Order is part
// of the contract: finding IDs are derived from table position.
var patterns = []pattern{
	{
		re:            regexp.MustCompile(`(?i)일방.*해지|단독.*해제|즉시.*해지|사유.*불문.*해지`),
		titleKo:       "일방적 해지 조항",
		titleEn:       "Unilateral Termination Clause",
		descriptionKo: "상대방이 사전 통지 없이 계약을 해지할 수 있는 조항이 있습니다.",
		descriptionEn: "The other party may terminate the contract without prior notice.",
		level:         LevelHigh,
	},
	{
		re:            regexp.MustCompile(`(?i)지체상금.*[1-9]\d*%|연체료.*[2-9]%|지연이자.*[2-9]%`),
		titleKo:       "과도한 지체상금",
		titleEn:       "Excessive Late Payment Penalty",
		descriptionKo: "지체상금/연체료가 업계 표준(1% 내외)을 초과합니다.",
		descriptionEn: "The penalty rate exceeds industry standards.",
		level:         LevelHigh,
	},
	{
		re:            regexp.MustCompile(`(?i)모든.*지적재산권.*귀속|전체.*저작권.*이전|일체.*권리.*양도`),
		titleKo:       "포괄적 지식재산권 이전",
		titleEn:       "Broad IP Assignment",
		descriptionKo: "모든 지적재산권이 예외 없이 이전될 수 있습니다.",
		descriptionEn: "All intellectual property rights may be transferred without exception.",
		level:         LevelMedium,
	},
	{
		re:            regexp.MustCompile(`(?i)무한.*책임|제한.*없.*손해배상|책임.*상한.*없|전액.*배상`),
		titleKo:       "무제한 책임 조항",
		titleEn:       "Unlimited Liability",
		descriptionKo: "손해배상 책임에 상한이 없습니다.",
		descriptionEn: "No cap on liability for damages.",
		level:         LevelHigh,
	},
	{
		re:            regexp.MustCompile(`(?i)자동.*갱신|자동.*연장|묵시.*갱신`),
		titleKo:       "자동 갱신 조항",
		titleEn:       "Auto-Renewal Clause",
		descriptionKo: "명시적 동의 없이 계약이 자동으로 갱신될 수 있습니다.",
		descriptionEn: "Contract may automatically renew without explicit consent.",
		level:         LevelLow,
	},
	{
		re:            regexp.MustCompile(`(?i)수정.*무한|횟수.*제한.*없|무제한.*수정|횟수.*제한 없이`),
		titleKo:       "무제한 수정 요청",
		titleEn:       "Unlimited Revisions",
		descriptionKo: "수정 요청 횟수에 제한이 없습니다.",
		descriptionEn: "No limit on revision requests.",
		level:         LevelMedium,
	},
	{
		re:            regexp.MustCompile(`(?i)60일|90일|Net\s*60|Net\s*90`),
		titleKo:       "장기 대금 지급 기간",
		titleEn:       "Extended Payment Terms",
		descriptionKo: "대금 지급 기간이 표준(30일)을 초과합니다.",
		descriptionEn: "Payment terms exceed standard 30-day period.",
		level:         LevelMedium,
	},
	{
		re:            regexp.MustCompile(`(?i)비밀유지.*기간.*없|영구.*비밀유지|기간.*제한.*없.*비밀`),
		titleKo:       "무기한 비밀유지 의무",
		titleEn:       "Indefinite NDA",
		descriptionKo: "비밀유지 의무에 기간 제한이 없습니다.",
		descriptionEn: "No time limit on confidentiality obligations.",
		level:         LevelLow,
	},
	{
		re:            regexp.MustCompile(`(?i)경쟁.*금지|동종.*업계.*취업.*금지|경업.*금지`),
		titleKo:       "경업 금지 조항",
		titleEn:       "Non-Compete Clause",
		descriptionKo: "계약 종료 후에도 경쟁 업체 취업/사업이 제한될 수 있습니다.",
		descriptionEn: "May restrict employment or business with competitors after contract ends.",
		level:         LevelMedium,
	},
	{
		re:            regexp.MustCompile(`(?i)분쟁.*시.*중재|중재.*판정|중재.*최종`),
		titleKo:       "강제 중재 조항",
		titleEn:       "Mandatory Arbitration",
		descriptionKo: "분쟁 발생 시 법원 소송 대신 중재로만 해결해야 합니다.",
		descriptionEn: "Disputes must be resolved through arbitration instead of court.",
		level:         LevelMedium,
	},
	{
		re:            regexp.MustCompile(`(?i)보증.*책임.*1년 미만|하자.*담보.*6개월|하자.*기간.*단축`),
		titleKo:       "단기 하자보증 기간",
		titleEn:       "Short Warranty Period",
		descriptionKo: "하자보증 기간이 표준(1년)보다 짧습니다.",
		descriptionEn: "Warranty period is shorter than standard (1 year).",
		level:         LevelMedium,
	},
	{
		re:            regexp.MustCompile(`(?i)선급금.*없|착수금.*없|착수금.*지급.*않`),
		titleKo:       "선급금 미지급",
		titleEn:       "No Upfront Payment",
		descriptionKo: "선급금/착수금 없이 작업을 시작해야 할 수 있습니다.",
		descriptionEn: "Work may need to start without upfront payment.",
		level:         LevelMedium,
	},
}

const matchedTextLimit = 100

// Detect scans text against every table entry. Each entry contributes at most
// one finding regardless of how often its pattern recurs. lang selects the
// title/description language: "en" for English, anything else Korean.
func Detect(text, lang string) []Finding {
	english := strings.EqualFold(lang, "en")

	var findings []Finding
	for idx, p := range patterns {
		loc := p.re.FindString(text)
		if loc == "" {
			continue
		}
		matched := loc
		if runes := []rune(matched); len(runes) > matchedTextLimit {
			matched = string(runes[:matchedTextLimit])
		}
		title, description := p.titleKo, p.descriptionKo
		if english {
			title, description = p.titleEn, p.descriptionEn
		}
		findings = append(findings, Finding{
			ID:          fmt.Sprintf("pattern_%d", idx),
			Title:       title,
			Description: description,
			Level:       p.level,
			MatchedText: matched,
		})
	}
	return findings
}

// Score derives a safety score (higher is safer) from detected findings.
// With no findings the contract is presumed reasonably safe.
func Score(findings []Finding) int {
	if len(findings) == 0 {
		return 85
	}

	score := 90
	for _, f := range findings {
		switch f.Level {
		case LevelHigh:
			score -= 15
		case LevelMedium:
			score -= 8
		case LevelLow:
			score -= 3
		}
	}

	if score < 20 {
		return 20
	}
	if score > 90 {
		return 90
	}
	return score
}

// Merge combines pattern findings with model findings, dropping a model
// finding when its title's leading token already appears in a pattern
// finding's title. The pattern version wins so the user never sees two
// entries describing the same clause problem.
func Merge(patternFindings, modelFindings []Finding) []Finding {
	combined := append([]Finding(nil), patternFindings...)

	for _, mf := range modelFindings {
		if isDuplicate(mf, patternFindings) {
			continue
		}
		combined = append(combined, mf)
	}
	return combined
}

func isDuplicate(f Finding, patternFindings []Finding) bool {
	tokens := strings.Fields(strings.ToLower(f.Title))
	if len(tokens) == 0 {
		return false
	}
	leading := tokens[0]
	for _, pf := range patternFindings {
		if strings.Contains(strings.ToLower(pf.Title), leading) {
			return true
		}
	}
	return false
}
