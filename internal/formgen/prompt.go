package formgen

import (
	"fmt"
	"strings"
)

const schema = `{
  "app": {
    "name": "<string>",
    "description": "<string>",
    "group_id": <integer>,
    "pass_score": <integer 0-100>,
    "target_role": "groups/{group_id}/roles/{rank}"
  },
  "style": {"primary_color": "#rrggbb", "secondary_color": "#rrggbb"},
  "questions": [
    {
      "id": "q1",
      "type": "multiple_choice|checkboxes|short_answer",
      "text": "<string>",
      "points": <integer>,
      "grading_criteria": "<string, short_answer only>",
      "options": [{"id": "opt0", "text": "<string>", "correct": true}]
    }
  ]
}`

func buildPrompt(p Params) string {
	rank := rankPlaceholder
	if p.Rank > 0 {
		rank = fmt.Sprint(int64(p.Rank))
	}
	instructions := p.Instructions
	if instructions == "" {
		instructions = "[none]"
	}

	parts := []string{
		"You generate Roblox group application forms.",
		"Output ONLY a single JSON object and nothing else. It must match this schema:",
		schema,
		"CONSTRAINTS:\n" + strings.Join([]string{
			fmt.Sprintf("- Provide exactly %d questions in the \"questions\" array.", p.Questions),
			"- multiple_choice: at least 2 options and exactly one with correct:true.",
			"- checkboxes: at least 2 options and at least one with correct:true.",
			"- short_answer: options is an empty array; give grading_criteria.",
			"- Use integer points from 1 to 20 matching the question difficulty.",
			"- Question ids are unique: q1, q2, ... Option ids are opt0, opt1, ...",
			fmt.Sprintf("- Set app.group_id to %d and app.target_role to groups/%d/roles/%s.", int64(p.GroupID), int64(p.GroupID), rank),
			fmt.Sprintf("- Use %s for style.primary_color and %s for style.secondary_color.", p.PrimaryColor, p.SecondaryColor),
			"- No commentary or markdown, only the JSON object.",
		}, "\n"),
		"USER CONTEXT:\n" + strings.Join([]string{
			"name: " + p.Name,
			"description: " + p.Description,
			"vibe/tone: " + p.Vibe,
			"instructions: " + instructions,
		}, "\n"),
	}
	return strings.Join(parts, "\n\n")
}
