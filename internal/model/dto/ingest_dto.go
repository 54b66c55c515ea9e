package dto

// RunStats 单源抓取的汇总计数
type RunStats struct {
	RunID     string `json:"run_id,omitempty"`
	Source    string `json:"source"`
	Status    string `json:"status"`
	Found     int    `json:"found"`
	New       int    `json:"new"`
	Skipped   int    `json:"skipped"`
	DedupHits int    `json:"dedup_hits"`
	Errors    int    `json:"errors"`
	Error     string `json:"error,omitempty"`
}

// BatchResult 批量富化结果
type BatchResult struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	DedupHits int               `json:"dedup_hits"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// ReenrichRequest 重新富化卡住的职位
type ReenrichRequest struct {
	JobIDs []string `json:"job_ids"`
	Limit  int      `json:"limit" binding:"omitempty,min=1,max=500"`
}
