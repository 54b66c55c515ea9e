package llm

import (
	"fmt"
	"strings"
)

const guideSystemPrompt = `You are a career coach for entry-level candidates in India.
Given a job posting, reply with a single JSON object and nothing else:
{
  "resume_guide": [exactly 5 short, specific resume optimisation tips for this role],
  "prep_guide": [exactly 5 likely interview questions for this role],
  "salary_range": "estimated annual CTC range in INR, e.g. \"4-6 LPA\"",
  "skills": [up to 10 key skills required by the role]
}`

const chatSystemPrompt = `You are CareerLane's career assistant. Help the candidate understand the role,
tailor their resume and prepare for interviews. Be concise, practical and encouraging.
If you do not know something about the company, say so instead of guessing.`

// maxDescriptionChars 描述过长时截断，控制 token 消耗
const maxDescriptionChars = 6000

func buildGuidePrompt(req GuideRequest) string {
	desc := req.Description
	if len(desc) > maxDescriptionChars {
		desc = desc[:maxDescriptionChars]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Job title: %s\n", req.Title)
	if req.CompanyName != "" {
		fmt.Fprintf(&b, "Company: %s\n", req.CompanyName)
	}
	if len(req.Skills) > 0 {
		fmt.Fprintf(&b, "Listed skills: %s\n", strings.Join(req.Skills, ", "))
	}
	fmt.Fprintf(&b, "\nJob description:\n%s\n", desc)
	return b.String()
}

func buildChatSystem(extra string) string {
	if strings.TrimSpace(extra) == "" {
		return chatSystemPrompt
	}
	return chatSystemPrompt + "\n\n" + extra
}
