package service

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/qs3c/careerlane_server/internal/model"
	"github.com/qs3c/careerlane_server/internal/model/dto"
	"github.com/qs3c/careerlane_server/internal/repository"
)

const (
	topSkillsLimit    = 10
	topCompaniesLimit = 5
	salaryTrendsLimit = 8
)

var (
	salaryNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)
	parenthetic  = regexp.MustCompile(`\(.*?\)`)
)

// 归一化职位名称的关键字，按顺序匹配
var roleKeywords = []struct {
	keywords []string
	role     string
}{
	{[]string{"manager"}, "Manager"},
	{[]string{"director"}, "Director"},
	{[]string{"intern"}, "Intern"},
	{[]string{"full stack", "full-stack"}, "Full Stack Developer"},
	{[]string{"backend", "back end"}, "Backend Engineer"},
	{[]string{"frontend", "front end"}, "Frontend Engineer"},
	{[]string{"data scientist"}, "Data Scientist"},
	{[]string{"data engineer"}, "Data Engineer"},
	{[]string{"devops", "sre"}, "DevOps / SRE"},
	{[]string{"product"}, "Product Manager"},
	{[]string{"sales"}, "Sales"},
}

var experienceKeywords = []struct {
	keywords []string
	level    string
}{
	{[]string{"senior", "sr.", "lead", "principal"}, "Senior/Lead"},
	{[]string{"junior", "jr.", "entry", "graduate"}, "Junior/Entry"},
	{[]string{"mid", "intermediate"}, "Mid-Level"},
	{[]string{"intern"}, "Internship"},
}

// MarketService 基于已激活职位的市场统计
type MarketService struct {
	jobRepo *repository.JobRepository
}

func NewMarketService(jobRepo *repository.JobRepository) *MarketService {
	return &MarketService{jobRepo: jobRepo}
}

// MarketStats 技能、公司、薪资、工作方式与经验要求的分布
func (s *MarketService) MarketStats(ctx context.Context) (*dto.MarketStats, error) {
	jobs, err := s.jobRepo.ListForMarket(ctx)
	if err != nil {
		return nil, err
	}
	companies, err := s.jobRepo.TopCompanies(ctx, topCompaniesLimit)
	if err != nil {
		return nil, err
	}

	stats := &dto.MarketStats{
		TotalJobs:    len(jobs),
		TopSkills:    topSkills(jobs, topSkillsLimit),
		TopCompanies: make([]dto.NameCount, 0, len(companies)),
		SalaryTrends: salaryTrends(jobs, salaryTrendsLimit),
	}
	for _, c := range companies {
		stats.TopCompanies = append(stats.TopCompanies, dto.NameCount{Name: c.CompanyName, Count: c.Count})
	}

	styles := newCounter()
	levels := newCounter()
	for _, j := range jobs {
		styles.add(WorkStyle(j.Location, j.Title))
		levels.add(ExperienceLevel(j.Title))
	}
	stats.WorkStyles = styles.top(0)
	stats.ExperienceLevels = levels.top(0)
	return stats, nil
}

// ParseSalaryRange 取薪资描述中的前两个数字，"k" 后缀按千计
func ParseSalaryRange(raw string) (lo, hi float64, ok bool) {
	clean := strings.ReplaceAll(raw, ",", "")
	nums := salaryNumber.FindAllString(clean, -1)
	if len(nums) < 2 {
		return 0, 0, false
	}
	lo, err1 := strconv.ParseFloat(nums[0], 64)
	hi, err2 := strconv.ParseFloat(nums[1], 64)
	if err1 != nil || err2 != nil || lo <= 0 || hi <= 0 {
		return 0, 0, false
	}
	if strings.Contains(strings.ToLower(clean), "k") && hi < 1000 {
		lo *= 1000
		hi *= 1000
	}
	return lo, hi, true
}

// NormalizeRole 把职位名称归到粗粒度角色，未命中时保留去掉括号后的原名
func NormalizeRole(title string) string {
	stripped := strings.TrimSpace(parenthetic.ReplaceAllString(title, ""))
	lower := strings.ToLower(stripped)
	for _, rk := range roleKeywords {
		if containsAny(lower, rk.keywords) {
			return rk.role
		}
	}
	if stripped == "" {
		return "Unknown"
	}
	return strings.Join(strings.Fields(stripped), " ")
}

func WorkStyle(location, title string) string {
	text := strings.ToLower(location + " " + title)
	switch {
	case strings.Contains(text, "remote"):
		return "Remote"
	case strings.Contains(text, "hybrid"):
		return "Hybrid"
	default:
		return "On-site"
	}
}

func ExperienceLevel(title string) string {
	lower := strings.ToLower(title)
	for _, ek := range experienceKeywords {
		if containsAny(lower, ek.keywords) {
			return ek.level
		}
	}
	return "Not Specified"
}

func topSkills(jobs []*model.JobPosting, limit int) []dto.NameCount {
	c := newCounter()
	for _, j := range jobs {
		for _, skill := range j.Skills {
			c.addFolded(skill)
		}
	}
	return c.top(limit)
}

func salaryTrends(jobs []*model.JobPosting, limit int) []dto.SalaryTrend {
	type acc struct {
		lo, hi float64
		count  int
	}
	byRole := make(map[string]*acc)
	for _, j := range jobs {
		lo, hi, ok := ParseSalaryRange(j.SalaryRange)
		if !ok {
			continue
		}
		role := NormalizeRole(j.Title)
		a := byRole[role]
		if a == nil {
			a = &acc{}
			byRole[role] = a
		}
		a.lo += lo
		a.hi += hi
		a.count++
	}

	out := make([]dto.SalaryTrend, 0, len(byRole))
	for role, a := range byRole {
		out = append(out, dto.SalaryTrend{
			Role:   role,
			AvgMin: round1(a.lo / float64(a.count)),
			AvgMax: round1(a.hi / float64(a.count)),
			Count:  a.count,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Role < out[j].Role
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// counter 计数并保留每个键第一次出现时的写法
type counter struct {
	counts  map[string]int64
	display map[string]string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int64), display: make(map[string]string)}
}

func (c *counter) add(name string) {
	c.counts[name]++
	c.display[name] = name
}

// addFolded 忽略大小写和首尾空白
func (c *counter) addFolded(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	key := strings.ToLower(name)
	c.counts[key]++
	if _, ok := c.display[key]; !ok {
		c.display[key] = name
	}
}

// top 按次数降序、名称升序；limit <= 0 表示全部
func (c *counter) top(limit int) []dto.NameCount {
	out := make([]dto.NameCount, 0, len(c.counts))
	for key, n := range c.counts {
		out = append(out, dto.NameCount{Name: c.display[key], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
