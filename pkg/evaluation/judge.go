package evaluation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// judgeVerdict is the strict JSON contract for remote judges.
type judgeVerdict struct {
	Overall      *float64 `json:"overall"`
	Relevance    *float64 `json:"relevance"`
	Accuracy     *float64 `json:"accuracy"`
	Completeness *float64 `json:"completeness"`
	Reason       string   `json:"reason"`
}

// buildJudgePrompt asks a model to grade a response. The contract is
// JSON only, all scores in [0,1].
func buildJudgePrompt(query, response string) string {
	var sb strings.Builder
	sb.WriteString("You are a strict response-quality judge.\n")
	sb.WriteString("Return ONLY JSON: {\"overall\":0-1,\"relevance\":0-1,\"accuracy\":0-1,\"completeness\":0-1,\"reason\":\"...\"}.\n\n")
	sb.WriteString("Query:\n")
	sb.WriteString(query)
	sb.WriteString("\n\nResponse:\n")
	sb.WriteString(response)
	sb.WriteString("\n\nGrade how well the response answers the query.")
	return sb.String()
}

// parseJudgeVerdict decodes a judge reply into a Score. Markdown fences
// are tolerated; a missing or out-of-range overall is an error so the
// loop falls through to its synthesized-failure path.
func parseJudgeVerdict(content string) (*Score, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return nil, err
	}
	if verdict.Overall == nil {
		return nil, fmt.Errorf("judge verdict missing overall")
	}
	if *verdict.Overall < 0 || *verdict.Overall > 1 {
		return nil, fmt.Errorf("judge overall %f out of range", *verdict.Overall)
	}

	metrics := make(map[string]float64)
	for name, v := range map[string]*float64{
		"relevance":    verdict.Relevance,
		"accuracy":     verdict.Accuracy,
		"completeness": verdict.Completeness,
	} {
		if v == nil {
			continue
		}
		if *v < 0 || *v > 1 {
			return nil, fmt.Errorf("judge %s %f out of range", name, *v)
		}
		metrics[name] = *v
	}

	return &Score{Overall: *verdict.Overall, Metrics: metrics}, nil
}
