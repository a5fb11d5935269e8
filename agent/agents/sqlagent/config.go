package sqlagent

import (
	"fmt"
	"time"

	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
)

type Config struct {
	MaxIterations    int           `split_words:"true" default:"5"`
	MaxExecutionTime time.Duration `split_words:"true" default:"20s"`
	TopK             int           `envconfig:"TOP_K" default:"10"`
	SampleRows       int           `split_words:"true" default:"3"`
}

var DefaultConfig = Config{
	MaxIterations:    5,
	MaxExecutionTime: 20 * time.Second,
	TopK:             10,
	SampleRows:       3,
}

func (c Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max iterations must be >= 1, got %d", contractx.ErrValidation, c.MaxIterations)
	}
	if c.MaxExecutionTime <= 0 {
		return fmt.Errorf("%w: max execution time must be > 0", contractx.ErrValidation)
	}
	return nil
}
