package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
	nodex "github.com/tanpawarit/smartops-bi/agent/nodes/orchestrator"
	promptx "github.com/tanpawarit/smartops-bi/agent/prompt"
	toolx "github.com/tanpawarit/smartops-bi/agent/tool"
)

var ErrInvalidMessage = nodex.ErrInvalidMessage

type Config struct {
	Language string `split_words:"true" default:"pt-BR"`
	// SystemPrompt overrides the embedded chat prompt when set.
	SystemPrompt string `ignored:"true"`
}

// Orchestrator answers one question per Ask call. It keeps no
// conversation between calls; everything it holds is read-only after New.
type Orchestrator struct {
	gateway contractx.CompletionGateway
	tools   *toolx.Registry

	systemPrompt string
	messages     promptx.Messages

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]
}

func New(
	gateway contractx.CompletionGateway,
	tools *toolx.Registry,
	cfg Config,
) (*Orchestrator, error) {
	if gateway == nil {
		return nil, errors.New("completion gateway is required")
	}
	if tools == nil {
		return nil, errors.New("tool registry is required")
	}

	locale := promptx.ParseLocale(cfg.Language)
	systemPrompt := strings.TrimSpace(cfg.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = promptx.LoadPromptSet(locale, "", 0).Chat
	}
	if systemPrompt == "" {
		return nil, fmt.Errorf("%w: chat system prompt", contractx.ErrPromptMissing)
	}

	o := &Orchestrator{
		gateway:      gateway,
		tools:        tools,
		systemPrompt: systemPrompt,
		messages:     promptx.MessagesFor(locale),
	}

	graphRunner, err := o.compileAskGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Ask always returns text that can be shown to the user. The error is
// non-nil when that text is the empty-question prompt or the apology.
func (o *Orchestrator) Ask(ctx context.Context, message string) (string, error) {
	start := time.Now()
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{Message: message})
	if err != nil {
		if errors.Is(err, ErrInvalidMessage) {
			return o.messages.EmptyQuestion, err
		}
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("ask failed")
		return o.messages.Apology, err
	}

	log.Info().
		Int("tool_rounds", out.Rounds).
		Int("gateway_calls", out.GatewayCalls).
		Dur("elapsed", time.Since(start)).
		Msg("ask answered")
	return out.Answer, nil
}

func (o *Orchestrator) Messages() promptx.Messages {
	return o.messages
}
