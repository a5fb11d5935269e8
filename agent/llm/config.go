package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
	groqx "github.com/tanpawarit/smartops-bi/pkg/groq"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.groq.com/openai/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"qwen/qwen3-32b"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	HideReasoning      bool          `envconfig:"HIDE_REASONING" split_words:"true" default:"false"`

	ChatModel       string  `envconfig:"CHAT_MODEL" split_words:"true"`
	SQLModel        string  `envconfig:"SQL_MODEL" split_words:"true"`
	ChatTemperature float32 `envconfig:"CHAT_TEMPERATURE" split_words:"true" default:"0.1"`
	SQLTemperature  float32 `envconfig:"SQL_TEMPERATURE" split_words:"true" default:"0"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: llm api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	for name, temp := range map[string]float32{"chat": c.ChatTemperature, "sql": c.SQLTemperature} {
		if temp < 0 || temp > 1 {
			return fmt.Errorf("%w: %s temperature must be within [0, 1], got %v", contractx.ErrValidation, name, temp)
		}
	}
	return nil
}

// ModelFor resolves the endpoint settings for one agent; the per-agent
// model name overrides the default when set.
func (c Config) ModelFor(agentType contractx.AgentType) groqx.Config {
	modelName := strings.TrimSpace(c.Model)
	var temp float32

	switch agentType {
	case contractx.AgentTypeSQL:
		if v := strings.TrimSpace(c.SQLModel); v != "" {
			modelName = v
		}
		temp = c.SQLTemperature
	default:
		if v := strings.TrimSpace(c.ChatModel); v != "" {
			modelName = v
		}
		temp = c.ChatTemperature
	}

	maxCompletionToken := c.MaxCompletionToken
	return groqx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		HideReasoning:      c.HideReasoning,
	}
}
