package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"go.uber.org/dig"

	orchestratorx "github.com/tanpawarit/smartops-bi/agent/agents/orchestrator"
	"github.com/tanpawarit/smartops-bi/agent/agents/sqlagent"
	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
	"github.com/tanpawarit/smartops-bi/agent/llm"
	promptx "github.com/tanpawarit/smartops-bi/agent/prompt"
	toolx "github.com/tanpawarit/smartops-bi/agent/tool"
	"github.com/tanpawarit/smartops-bi/agent/warehouse"
	"github.com/tanpawarit/smartops-bi/api"
	configx "github.com/tanpawarit/smartops-bi/pkg/config"
	groqx "github.com/tanpawarit/smartops-bi/pkg/groq"
	"github.com/tanpawarit/smartops-bi/pkg/postgres"
)

// chatGateway and sqlGateway let dig tell the two model bindings apart.
type chatGateway struct{ contractx.CompletionGateway }

type sqlGateway struct{ contractx.CompletionGateway }

// Container resolves services lazily, so a command only builds what it
// asks for: stats never needs an LLM key.
type Container struct {
	ctx context.Context
	d   *dig.Container

	mu      sync.Mutex
	closers []func() error
}

func NewContainer(ctx context.Context) (*Container, error) {
	c := &Container{ctx: ctx, d: dig.New()}

	providers := []any{
		func() context.Context { return c.ctx },
		newLLMConfig,
		loadConfig[postgres.Config]("DATABASE"),
		loadConfig[sqlagent.Config]("SQL_AGENT"),
		loadConfig[warehouse.CacheConfig]("SCHEMA_CACHE"),
		loadConfig[orchestratorx.Config]("ASSISTANT"),
		loadConfig[api.Config]("HTTP"),
		newChatGateway,
		newSQLGateway,
		newProbe,
		c.newDB,
		newSchemaCache,
		newWarehouse,
		newMessages,
		newPromptSet,
		newSQLAgent,
		newChatTools,
		newOrchestrator,
	}
	for _, p := range providers {
		if err := c.d.Provide(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Container) Assistant() (*orchestratorx.Orchestrator, error) {
	var out *orchestratorx.Orchestrator
	err := c.d.Invoke(func(o *orchestratorx.Orchestrator) { out = o })
	return out, unwrapDig(err)
}

func (c *Container) Warehouse() (warehouse.Warehouse, error) {
	var out warehouse.Warehouse
	err := c.d.Invoke(func(w warehouse.Warehouse) { out = w })
	return out, unwrapDig(err)
}

func (c *Container) Probe() (*groqx.Probe, error) {
	var out *groqx.Probe
	err := c.d.Invoke(func(p *groqx.Probe) { out = p })
	return out, unwrapDig(err)
}

func (c *Container) Messages() promptx.Messages {
	var out promptx.Messages
	if err := c.d.Invoke(func(m promptx.Messages) { out = m }); err != nil {
		return promptx.MessagesFor(promptx.LocalePTBR)
	}
	return out
}

func (c *Container) HTTPConfig() (*api.Config, error) {
	var out *api.Config
	err := c.d.Invoke(func(cfg *api.Config) { out = cfg })
	return out, unwrapDig(err)
}

// Close releases what was actually built.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

func unwrapDig(err error) error {
	if err == nil {
		return nil
	}
	return dig.RootCause(err)
}

func loadConfig[T any](prefix string) func() (*T, error) {
	return func() (*T, error) {
		cfg, err := configx.New[T](prefix)
		if err != nil {
			return nil, fmt.Errorf("load %s config: %w", prefix, err)
		}
		return cfg, nil
	}
}

func newLLMConfig() (*llm.Config, error) {
	cfg, err := loadConfig[llm.Config]("LLM")()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newGateway(ctx context.Context, cfg *llm.Config, agentType contractx.AgentType) (*llm.Gateway, error) {
	modelCfg := cfg.ModelFor(agentType)
	chatModel, err := modelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: build %s model: %v", contractx.ErrModelInvoke, agentType, err)
	}
	return llm.NewGateway(chatModel)
}

func newChatGateway(ctx context.Context, cfg *llm.Config) (chatGateway, error) {
	gw, err := newGateway(ctx, cfg, contractx.AgentTypeChat)
	return chatGateway{gw}, err
}

func newSQLGateway(ctx context.Context, cfg *llm.Config) (sqlGateway, error) {
	gw, err := newGateway(ctx, cfg, contractx.AgentTypeSQL)
	return sqlGateway{gw}, err
}

func newProbe(cfg *llm.Config) (*groqx.Probe, error) {
	return groqx.NewProbe(cfg.ModelFor(contractx.AgentTypeChat))
}

func (c *Container) newDB(ctx context.Context, cfg *postgres.Config) (*bun.DB, error) {
	db, err := postgres.New(ctx, *cfg)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.closers = append(c.closers, db.Close)
	c.mu.Unlock()
	log.Info().Str("schema", cfg.Schema).Strs("include_tables", cfg.Tables()).Msg("postgres connected")
	return db, nil
}

func newSchemaCache(ctx context.Context, cfg *warehouse.CacheConfig) (warehouse.SchemaCache, error) {
	cache, err := warehouse.NewCache(ctx, *cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.Driver).Dur("ttl", cfg.TTL).Msg("schema cache ready")
	return cache, nil
}

func newWarehouse(db *bun.DB, cfg *postgres.Config, cache warehouse.SchemaCache) (warehouse.Warehouse, error) {
	bw, err := warehouse.NewBunWarehouse(db, warehouse.Options{
		Schema:        cfg.Schema,
		IncludeTables: cfg.Tables(),
		QueryTimeout:  cfg.QueryTimeout,
		RowLimit:      cfg.RowLimit,
	})
	if err != nil {
		return nil, err
	}
	return warehouse.NewCached(bw, cache), nil
}

func newMessages(cfg *orchestratorx.Config) promptx.Messages {
	return promptx.MessagesFor(promptx.ParseLocale(cfg.Language))
}

func newPromptSet(cfg *orchestratorx.Config, wh warehouse.Warehouse, sqlCfg *sqlagent.Config) promptx.PromptSet {
	return promptx.LoadPromptSet(promptx.ParseLocale(cfg.Language), wh.Dialect(), sqlCfg.TopK)
}

func newSQLAgent(
	gw sqlGateway,
	wh warehouse.Warehouse,
	prompts promptx.PromptSet,
	messages promptx.Messages,
	cfg *sqlagent.Config,
) (*sqlagent.Agent, error) {
	tools, err := sqlagent.NewToolkit(gw, wh, prompts.QueryChecker, cfg.SampleRows)
	if err != nil {
		return nil, err
	}
	return sqlagent.New(gw, tools, prompts.SQL, messages, *cfg)
}

func newChatTools(agent *sqlagent.Agent, messages promptx.Messages) (*toolx.Registry, error) {
	queryDatabase, err := toolx.NewQueryDatabase(agent, messages.ToolFailurePrefix)
	if err != nil {
		return nil, err
	}
	return toolx.NewRegistry(
		queryDatabase,
		toolx.NewCalculator(messages.ToolFailurePrefix),
	)
}

func newOrchestrator(
	gw chatGateway,
	tools *toolx.Registry,
	cfg *orchestratorx.Config,
	prompts promptx.PromptSet,
) (*orchestratorx.Orchestrator, error) {
	orchestratorCfg := *cfg
	orchestratorCfg.SystemPrompt = prompts.Chat
	return orchestratorx.New(gw, tools, orchestratorCfg)
}
