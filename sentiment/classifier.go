package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jcarlson/subreddit-health/llm"
	"github.com/jcarlson/subreddit-health/models"
)

const classifyPrompt = `You are a community-moderation analyst. You will receive a JSON array of Reddit comment bodies. Classify every comment, in order.

For each comment report:
- "constructive": true if it offers help, suggestions, or substantive discussion
- "toxic": true if it is insulting, hostile, or abusive
- "mood": exactly one of "supportive", "neutral", "aggressive", "sarcastic"

Output JSON only, no other text:
{"comments": [{"constructive": bool, "toxic": bool, "mood": "..."}]}
The "comments" array must have exactly one entry per input comment, in input order.`

var classifySchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "comments": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "constructive": {"type": "boolean"},
          "toxic": {"type": "boolean"},
          "mood": {"type": "string", "enum": ["supportive", "neutral", "aggressive", "sarcastic"]}
        },
        "required": ["constructive", "toxic", "mood"],
        "additionalProperties": false
      }
    }
  },
  "required": ["comments"],
  "additionalProperties": false
}`)

// Completer is the chat-completion call the classifier depends on
type Completer interface {
	Chat(ctx context.Context, messages []llm.Message, format *llm.ResponseFormat) (string, error)
}

// Classifier turns comment bodies into a CommentAnalysis. Classification
// failures never escape: any error or malformed response degrades to a
// deterministic keyword heuristic, and the result's Source field records
// which path produced it.
type Classifier struct {
	llm Completer
	log *logrus.Logger
}

type verdict struct {
	Constructive bool   `json:"constructive"`
	Toxic        bool   `json:"toxic"`
	Mood         string `json:"mood"`
}

// NewClassifier creates a classifier backed by the given completer
func NewClassifier(completer Completer, log *logrus.Logger) *Classifier {
	return &Classifier{
		llm: completer,
		log: log,
	}
}

// Classify analyzes an ordered batch of comment bodies. An empty batch
// yields an all-zero result without any network call.
func (c *Classifier) Classify(ctx context.Context, bodies []string) models.CommentAnalysis {
	if len(bodies) == 0 {
		return models.CommentAnalysis{}
	}

	verdicts, err := c.classifyWithModel(ctx, bodies)
	if err != nil {
		c.log.WithError(err).WithField("comment_count", len(bodies)).
			Warn("Comment classification failed, using keyword fallback")
		return Fallback(bodies)
	}

	analysis := tally(verdicts)
	analysis.Source = models.SourceModel
	return analysis
}

func (c *Classifier) classifyWithModel(ctx context.Context, bodies []string) ([]verdict, error) {
	input, err := json.Marshal(bodies)
	if err != nil {
		return nil, fmt.Errorf("failed to encode comments: %w", err)
	}

	content, err := c.llm.Chat(ctx, []llm.Message{
		{Role: "system", Content: classifyPrompt},
		{Role: "user", Content: string(input)},
	}, &llm.ResponseFormat{
		Type: "json_schema",
		JSONSchema: &llm.JSONSchema{
			Name:   "comment_classification",
			Strict: true,
			Schema: classifySchema,
		},
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Comments []verdict `json:"comments"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("malformed classification response: %w", err)
	}
	if len(out.Comments) != len(bodies) {
		return nil, fmt.Errorf("classification returned %d verdicts for %d comments", len(out.Comments), len(bodies))
	}

	return out.Comments, nil
}

// Fallback classifies comments with case-insensitive keyword matching.
// It is pure and deterministic: identical input always yields identical
// counts, and it never touches the network.
func Fallback(bodies []string) models.CommentAnalysis {
	verdicts := make([]verdict, 0, len(bodies))
	for _, body := range bodies {
		lower := strings.ToLower(body)

		v := verdict{Mood: "neutral"}
		if strings.Contains(lower, "lol") || strings.Contains(lower, "this is dumb") {
			v.Mood = "sarcastic"
		}
		if strings.Contains(lower, "try") || strings.Contains(lower, "suggest") || strings.Contains(lower, "could") {
			v.Constructive = true
		}
		if strings.Contains(lower, "idiot") || strings.Contains(lower, "shut up") {
			v.Toxic = true
		}
		verdicts = append(verdicts, v)
	}

	analysis := tally(verdicts)
	analysis.Source = models.SourceFallback
	return analysis
}

// tally folds per-comment verdicts into counts. The categories are not
// mutually exclusive (a comment can be constructive and toxic at once),
// so the subtractive neutral count is clamped at zero.
func tally(verdicts []verdict) models.CommentAnalysis {
	analysis := models.CommentAnalysis{Total: len(verdicts)}
	for _, v := range verdicts {
		if v.Constructive {
			analysis.Constructive++
		}
		if v.Toxic {
			analysis.Toxic++
		}
		if v.Mood == "sarcastic" {
			analysis.Ridicule++
		}
	}

	neutral := analysis.Total - analysis.Constructive - analysis.Toxic - analysis.Ridicule
	if neutral < 0 {
		neutral = 0
	}
	analysis.Neutral = neutral

	return analysis
}
