package dto

// NameCount 名称与出现次数
type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// SalaryTrend 按归一化职位名称统计的薪资均值，单位与 salary_range 一致
type SalaryTrend struct {
	Role   string  `json:"role"`
	AvgMin float64 `json:"avg_min"`
	AvgMax float64 `json:"avg_max"`
	Count  int     `json:"count"`
}

// MarketStats 已激活职位的市场概况
type MarketStats struct {
	TotalJobs        int           `json:"total_jobs"`
	TopSkills        []NameCount   `json:"top_skills"`
	TopCompanies     []NameCount   `json:"top_companies"`
	SalaryTrends     []SalaryTrend `json:"salary_trends"`
	WorkStyles       []NameCount   `json:"work_styles"`
	ExperienceLevels []NameCount   `json:"experience_levels"`
}
