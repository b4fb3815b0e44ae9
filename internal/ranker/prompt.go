package ranker

import (
	"encoding/json"
	"fmt"

	"github.com/1000heads/curator/internal/feed"
)

// maxContentChars bounds each candidate's content in the serialized request
// so the prompt stays within model limits.
const maxContentChars = 3000

const promptTemplate = `
You are an expert marketing news curator. You will be given a list of articles in JSON format.

Your task:
1. Evaluate each article based on the criteria below.
2. Select the single highest-scoring article.
3. Return the result in strict JSON format (no extra text).

### Criteria for article selection:
- Articles must be published within the last 60 days.
- Articles must be in English.
- Articles must NOT be paywalled.
- Articles must be relevant to one or more of the following topics:
  - Campaign case studies
  - Tools in use
  - AI in social
  - AI in creative automation
  - AI platforms
  - AI measurement
  - Regulation and ethics
  - Marketing automation
  - Marketing technology
  - Marketing trends
  - Marketing best practices
  - Marketing case studies
  - Marketing research
  - Marketing insights
- Prioritize reputable sources with original reporting or analysis.
- Prefer globally relevant content, but give a modest boost to APAC-related articles (AU/NZ/SG/HK/JP/KR/IN).
- Exclude region specific news that are outside of APAC (e.g. US political ads regulation).

### Scoring rubric:
Each article is scored as follows (more recent = higher recency score):
- Relevance to brief themes: 0-12
- Impact for marketers: 0-12
- Source quality: 0-9
- Recency: 0-9
- APAC relevance bonus: +3 if applicable

### Output generation:
For the chosen article:
- Generate a **Key Takeaway** (1-2 sentences summarizing the main insight).
- Generate **Why it matters** (1 short paragraph for marketers).
- Generated **Key Takeaway** and **Why it matters** should be of roughly equal length, with **Key Takeaway** allowed to be slightly longer if needed.
- Generate **Insights** (3-5 bullet points of specific learnings or implications). Do not always use 5 points if fewer are sufficient.
- Generate **Why it matters for 1000heads** (1 short paragraph contextualized to 1000heads' marketing and innovation focus).
- Emphasize words by wrapping them in * for bold, and _ for italics. Always add emphases where you think appropriate to make the text more engaging and readable.
- Emphasize numbers and statistics by wrapping them in ` + "`" + ` for code style.

### Return format (STRICT JSON only, an array with exactly one object):
[
  {
    "articleTitle": "<title of the article chosen>",
    "articleUrl": "<url of the article chosen>",
    "articlePublisher": "<publisher of the article chosen>",
    "articlePublishedDate": "<published date of the article chosen>",
    "articleImageUrl": "<image url of the article chosen>",
    "articleImageCaption": "<caption of the image of the article chosen>",
    "articleImageCredit": "<credit of the image of the article chosen>",
    "articleImageLicense": "<license of the image of the article chosen>",
    "articleImageLicenseUrl": "<license url of the image of the article chosen>",
    "score_relevance": "<score for relevance to brief themes>",
    "score_impact": "<score for impact for marketers>",
    "score_source": "<score for source quality>",
    "score_recency": "<score for recency>",
    "score_apac": "<score for APAC relevance bonus>",
    "score_total": "<total score including bonus if applicable>",
    "keyTakeaway": "<generated takeaway from the article chosen>",
    "insights": [
      "<generated insight #1>",
      "<generated insight #2>",
      "<generated insight #3>"
    ],
    "whyItMatters": "<generated conclusion on why this article matters, short, direct, framed for marketers>",
    "whyItMattersFor1000heads": "<generated conclusion on why this article matters, short, direct, framed for 1000heads>"
  }
]

Articles are as below:
%s
`

// BuildPrompt serializes the candidates (content truncated) into the fixed
// rubric prompt.
func BuildPrompt(articles []feed.Article) (string, error) {
	prepared := make([]feed.Article, len(articles))
	copy(prepared, articles)
	for i := range prepared {
		prepared[i].Content = truncate(prepared[i].Content, maxContentChars)
	}

	payload, err := json.MarshalIndent(prepared, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidates: %w", err)
	}
	return fmt.Sprintf(promptTemplate, payload), nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
