package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"dossier/internal/answer"
	"dossier/internal/api"
	"dossier/internal/config"
	"dossier/internal/store"
)

// withAnswers wires the answer service against the profile database. The
// profile named by ref is resolved the way cache show resolves it, so a
// plain query works too.
func (c *commandContext) withAnswers(cmd *cobra.Command, ref string, fn func(*answer.Service, string) error) error {
	return c.withStore(func(cfg *config.Config, profiles *store.Store) error {
		p, err := findProfile(cmd.Context(), profiles, ref)
		if err != nil {
			return err
		}
		logger, err := c.logger(cfg)
		if err != nil {
			return err
		}
		svc, err := answer.FromConfig(cfg, profiles, logger)
		if err != nil {
			return err
		}
		return fn(svc, p.Key.String())
	})
}

func newAnswerCommand(ctx *commandContext) *cobra.Command {
	var regenerate bool

	cmd := &cobra.Command{
		Use:   "answer <key|id|query>",
		Short: "Write a biography of a stored profile",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAnswers(cmd, strings.Join(args, " "), func(svc *answer.Service, key string) error {
				res, err := svc.Generate(cmd.Context(), key, regenerate)
				if err != nil {
					return err
				}
				resp := api.FromAnswer(res)
				if ctx.wantJSON(cmd) {
					return writeJSON(cmd, resp)
				}
				renderAnswer(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "Ignore the stored answer and write a new one")
	return cmd
}

func newAskCommand(ctx *commandContext) *cobra.Command {
	var question string

	cmd := &cobra.Command{
		Use:   "ask <key|id|query> --question <text>",
		Short: "Answer a follow-up question from a stored profile",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(question) == "" {
				return fmt.Errorf("--question is required")
			}
			return ctx.withAnswers(cmd, strings.Join(args, " "), func(svc *answer.Service, key string) error {
				res, err := svc.FollowUp(cmd.Context(), key, question)
				if err != nil {
					return err
				}
				res = api.FromFollowUp(res)
				if ctx.wantJSON(cmd) {
					return writeJSON(cmd, res)
				}
				renderFollowUp(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "Question to answer")
	return cmd
}

func newChatCommand(ctx *commandContext) *cobra.Command {
	var message, chatID string

	cmd := &cobra.Command{
		Use:   "chat <key|id|query> --message <text>",
		Short: "Continue a conversation about a stored profile",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(message) == "" {
				return fmt.Errorf("--message is required")
			}
			return ctx.withAnswers(cmd, strings.Join(args, " "), func(svc *answer.Service, key string) error {
				reply, err := svc.Chat(cmd.Context(), key, chatID, message)
				if err != nil {
					return err
				}
				if ctx.wantJSON(cmd) {
					return writeJSON(cmd, reply)
				}
				fmt.Fprintln(cmd.OutOrStdout(), reply.Reply)
				fmt.Fprintf(cmd.OutOrStdout(), "\nchat %s (%d messages)\n", reply.ChatID, reply.Messages)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Message to send")
	cmd.Flags().StringVar(&chatID, "chat-id", "", "Conversation to continue (defaults to the most recent one)")
	return cmd
}

func renderAnswer(out io.Writer, resp api.AnswerResponse) {
	fmt.Fprintln(out, resp.Answer)
	if resp.Fallback {
		fmt.Fprintln(out, "\n(condensed from stored facts)")
	}
	renderQuestions(out, resp.RelatedQuestions)
	if resp.Cached {
		fmt.Fprintf(out, "\nStored answer from %s; use --regenerate for a new one\n", resp.GeneratedAt)
	}
}

func renderFollowUp(out io.Writer, f answer.FollowUp) {
	fmt.Fprintln(out, f.Answer)
	if len(f.Sources) > 0 {
		rows := make([][]string, 0, len(f.Sources))
		for _, s := range f.Sources {
			rows = append(rows, []string{s.Type, s.Name, s.URL})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]string{"Type", "Source", "URL"}, rows, nil))
	}
	renderQuestions(out, f.Related)
}

func renderQuestions(out io.Writer, questions []string) {
	if len(questions) == 0 {
		return
	}
	fmt.Fprintln(out, "\nRelated questions:")
	for _, q := range questions {
		fmt.Fprintf(out, "  - %s\n", q)
	}
}
