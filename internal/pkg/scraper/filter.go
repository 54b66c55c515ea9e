package scraper

import (
	"regexp"
	"strings"
)

// 标题中出现这些词基本可判定为高级岗位
var seniorKeywords = []string{
	"senior", "sr", "manager", "director", "vp", "principal",
	"lead", "head", "architect", "partner", "chief",
}

var seniorPattern = regexp.MustCompile(`\b(` + strings.Join(seniorKeywords, "|") + `)\b`)

// IsEntryLevel 过滤高级岗位，其余一律保留
func IsEntryLevel(title string) bool {
	return !seniorPattern.MatchString(strings.ToLower(title))
}

// FilterEntryLevel 原地过滤，保持原有顺序
func FilterEntryLevel(jobs []RawJob) []RawJob {
	out := jobs[:0]
	for _, j := range jobs {
		if IsEntryLevel(j.Title) {
			out = append(out, j)
		}
	}
	return out
}
