package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
)

const (
	ToolQueryDatabase = "query_database"

	queryDatabaseDescription = "Útil para responder perguntas sobre dados reais, vendas, estoque e clientes. Entrada: a pergunta do usuário."
)

// QueryDatabase exposes a natural-language query runner as the
// query_database tool.
type QueryDatabase struct {
	runner        contractx.QueryRunner
	failurePrefix string
}

var _ contractx.Tool = (*QueryDatabase)(nil)

func NewQueryDatabase(runner contractx.QueryRunner, failurePrefix string) (*QueryDatabase, error) {
	if runner == nil {
		return nil, fmt.Errorf("%w: query runner is required", contractx.ErrValidation)
	}
	return &QueryDatabase{runner: runner, failurePrefix: failurePrefix}, nil
}

func (q *QueryDatabase) Descriptor() contractx.ToolDescriptor {
	return contractx.ToolDescriptor{
		Name:        ToolQueryDatabase,
		Description: queryDatabaseDescription,
		Parameters:  inputParameters("A pergunta do usuário em linguagem natural."),
	}
}

func (q *QueryDatabase) Execute(ctx context.Context, input string) (out string) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("tool", ToolQueryDatabase).Msg("query runner panicked")
			out = fmt.Sprintf("%s%v", q.failurePrefix, r)
		}
		log.Debug().
			Str("tool", ToolQueryDatabase).
			Dur("elapsed", time.Since(start)).
			Int("result_len", len(out)).
			Msg("tool executed")
	}()

	return q.runner.Run(ctx, input)
}
