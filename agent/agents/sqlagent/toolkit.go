package sqlagent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/smartops-bi/agent/answer"
	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
	toolx "github.com/tanpawarit/smartops-bi/agent/tool"
	"github.com/tanpawarit/smartops-bi/agent/warehouse"
)

const (
	ToolListTables   = "sql_db_list_tables"
	ToolSchema       = "sql_db_schema"
	ToolQueryChecker = "sql_db_query_checker"
	ToolQuery        = "sql_db_query"

	observationErrorPrefix = "Error: "
)

// NewToolkit builds the four database tools the SQL agent may call.
func NewToolkit(
	gateway contractx.CompletionGateway,
	wh warehouse.Warehouse,
	checkerPrompt string,
	sampleRows int,
) (*toolx.Registry, error) {
	if wh == nil {
		return nil, fmt.Errorf("%w: warehouse is required", contractx.ErrValidation)
	}
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway is required", contractx.ErrValidation)
	}
	return toolx.NewRegistry(
		&listTablesTool{wh: wh},
		&schemaTool{wh: wh, sampleRows: sampleRows},
		&queryCheckerTool{gateway: gateway, prompt: checkerPrompt},
		&queryTool{wh: wh},
	)
}

type listTablesTool struct {
	wh warehouse.Warehouse
}

func (t *listTablesTool) Descriptor() contractx.ToolDescriptor {
	return contractx.ToolDescriptor{
		Name:        ToolListTables,
		Description: "Input is an empty string, output is a comma-separated list of tables in the database.",
		Parameters: map[string]contractx.Parameter{
			"tool_input": {Desc: "An empty string"},
		},
	}
}

func (t *listTablesTool) Execute(ctx context.Context, _ string) string {
	names, err := t.wh.ListTables(ctx)
	if err != nil {
		return observationErrorPrefix + err.Error()
	}
	return strings.Join(names, ", ")
}

type schemaTool struct {
	wh         warehouse.Warehouse
	sampleRows int
}

func (t *schemaTool) Descriptor() contractx.ToolDescriptor {
	return contractx.ToolDescriptor{
		Name: ToolSchema,
		Description: "Input to this tool is a comma-separated list of tables, output is the schema and sample rows for those tables. " +
			"Be sure that the tables actually exist by calling " + ToolListTables + " first! Example Input: table1, table2, table3",
		Parameters: map[string]contractx.Parameter{
			"table_names": {Desc: "A comma-separated list of the table names for which to return the schema.", Required: true},
		},
	}
}

func (t *schemaTool) Execute(ctx context.Context, input string) string {
	var parts []string
	for _, raw := range strings.Split(input, ",") {
		name := strings.Trim(strings.TrimSpace(raw), `"'`)
		if name == "" {
			continue
		}
		tbl, err := t.wh.DescribeTable(ctx, name)
		if errors.Is(err, warehouse.ErrTableNotFound) {
			return fmt.Sprintf("%stable_names {%s} not found in database", observationErrorPrefix, name)
		}
		if err != nil {
			return observationErrorPrefix + err.Error()
		}
		sample, err := t.wh.SampleRows(ctx, name, t.sampleRows)
		if err != nil {
			log.Warn().
				Err(err).
				Str("tool", ToolSchema).
				Str("table", name).
				Msg("sample rows unavailable, describing columns only")
			sample = warehouse.Result{}
		}
		parts = append(parts, warehouse.FormatTable(tbl, sample))
	}
	if len(parts) == 0 {
		return observationErrorPrefix + "no table names given"
	}
	return strings.Join(parts, "\n\n")
}

// queryCheckerTool asks the model to review a query before it runs. The
// review call does not count against the agent's iteration budget.
type queryCheckerTool struct {
	gateway contractx.CompletionGateway
	prompt  string
}

func (t *queryCheckerTool) Descriptor() contractx.ToolDescriptor {
	return contractx.ToolDescriptor{
		Name: ToolQueryChecker,
		Description: "Use this tool to double check if your query is correct before executing it. " +
			"Always use this tool before executing a query with " + ToolQuery + "!",
		Parameters: map[string]contractx.Parameter{
			"query": {Desc: "A detailed and SQL query to be checked.", Required: true},
		},
	}
}

func (t *queryCheckerTool) Execute(ctx context.Context, input string) string {
	conv, err := contractx.NewConversation(t.prompt, input)
	if err != nil {
		return observationErrorPrefix + err.Error()
	}
	resp, err := t.gateway.Complete(ctx, conv, nil)
	if err != nil {
		return observationErrorPrefix + err.Error()
	}
	checked := answer.StripReasoning(resp.Text)
	if checked == "" {
		return strings.TrimSpace(input)
	}
	return checked
}

type queryTool struct {
	wh warehouse.Warehouse
}

func (t *queryTool) Descriptor() contractx.ToolDescriptor {
	return contractx.ToolDescriptor{
		Name: ToolQuery,
		Description: "Input to this tool is a detailed and correct SQL query, output is a result from the database. " +
			"If the query is not correct, an error message will be returned. " +
			"If an error is returned, rewrite the query, check the query, and try again.",
		Parameters: map[string]contractx.Parameter{
			"query": {Desc: "A detailed and correct SQL query.", Required: true},
		},
	}
}

func (t *queryTool) Execute(ctx context.Context, input string) string {
	res, err := t.wh.Query(ctx, input)
	if err != nil {
		return observationErrorPrefix + err.Error()
	}
	return warehouse.FormatResult(res)
}
