package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
)

var askCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: "Ask one question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	c, err := NewContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	assistant, err := c.Assistant()
	if err != nil {
		return err
	}

	answer, err := assistant.Ask(cmd.Context(), strings.Join(args, " "))
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	if err != nil && !errors.Is(err, contractx.ErrValidation) {
		return err
	}
	return nil
}
