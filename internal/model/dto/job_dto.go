package dto

// CreateJobRequest provider 直接提交职位
type CreateJobRequest struct {
	Title       string   `json:"title" binding:"required,min=2,max=300"`
	Description string   `json:"description" binding:"required,min=20"`
	CompanyName string   `json:"company_name" binding:"required,max=200"`
	Skills      []string `json:"skills" binding:"max=50"`
	ExternalID  string   `json:"external_id" binding:"max=200"`
	ApplyURL    string   `json:"apply_url" binding:"omitempty,url,max=1000"`
	Location    string   `json:"location" binding:"max=200"`
}

// JobListItem 职位列表项
type JobListItem struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	CompanyName string   `json:"company_name"`
	Location    string   `json:"location,omitempty"`
	Skills      []string `json:"skills"`
	Status      string   `json:"status"`
	Source      string   `json:"source"`
	CreatedAt   string   `json:"created_at"`
}

// JobDetail 职位详情，包含富化结果
type JobDetail struct {
	JobListItem
	Description string   `json:"description"`
	ApplyURL    string   `json:"apply_url,omitempty"`
	ResumeGuide []string `json:"resume_guide,omitempty"`
	PrepGuide   []string `json:"prep_guide,omitempty"`
	SalaryRange string   `json:"salary_range,omitempty"`
	ActivatedAt string   `json:"activated_at,omitempty"`
}

// CreateJobResponse 提交后职位处于 processing，富化异步完成
type CreateJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// MatchResult 匹配度结果，不落库
type MatchResult struct {
	JobID           string   `json:"job_id"`
	SimilarityScore float64  `json:"similarity_score"`
	GapDetected     bool     `json:"gap_detected"`
	MissingSkills   []string `json:"missing_skills,omitempty"`
}
