package dto

// UpdateResumeRequest 更新简历文本；文件通过 multipart 另行上传
type UpdateResumeRequest struct {
	ResumeText string   `json:"resume_text" form:"resume_text" binding:"required,min=50"`
	Skills     []string `json:"skills" form:"skills"`
}

// UserProfile 用户资料
type UserProfile struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FullName  string   `json:"full_name"`
	Role      string   `json:"role"`
	Skills    []string `json:"skills"`
	HasResume bool     `json:"has_resume"`
	CreatedAt string   `json:"created_at"`
}

// SignedURLResponse 简历下载链接，每次请求重新签发
type SignedURLResponse struct {
	URL              string `json:"url"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
}
