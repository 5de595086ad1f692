package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/transfer"
)

func exportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export [conversation-id]",
		Short: "Export a conversation as json, txt or md",
		Long: `Export a conversation. Without an id the current conversation is used.

Examples:
  gopherchat export                     # current conversation as JSON on stdout
  gopherchat export 01J... -f md -o .   # write conversation-<id>.md into .`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(context.Background())
			if err != nil {
				return err
			}
			defer a.close()

			cv, err := pickConversation(a, args)
			if err != nil {
				return err
			}

			f := transfer.ParseFormat(format)
			body := transfer.ExportConversation(cv.Messages, f)

			if output == "" {
				fmt.Fprintln(cmd.OutOrStdout(), body)
				return nil
			}
			if st, err := os.Stat(output); err == nil && st.IsDir() {
				output = filepath.Join(output, "conversation-"+cv.ID+f.FileExtension())
			}
			if err := os.WriteFile(output, []byte(body), 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d messages to %s\n", len(cv.Messages), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json, txt or md")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file or directory (default stdout)")
	return cmd
}

func importCmd() *cobra.Command {
	var (
		format string
		into   string
		title  string
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import messages from an exported JSON file",
		Long: `Import messages into a new conversation, or append them to an
existing one with --into. Only the JSON format can be read back.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import: %w", err)
			}
			if format == "" {
				format = strings.TrimPrefix(filepath.Ext(args[0]), ".")
			}

			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			msgs := transfer.ImportConversation(ctx, string(raw), transfer.ParseFormat(format))
			if len(msgs) == 0 {
				return fmt.Errorf("no messages found in %s", args[0])
			}

			id := into
			if id == "" {
				id = a.repo.CreateConversation(ctx, title, "")
			} else if _, ok := a.repo.ConversationByID(id); !ok {
				return fmt.Errorf("%w: %s", chat.ErrConversationNotFound, id)
			}

			n := 0
			for _, m := range msgs {
				if _, ok := a.repo.AddMessage(ctx, id, chat.NewMessage{Role: m.Role, Content: m.Content, Metadata: m.Metadata}); ok {
					n++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d messages into %s\n", n, id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Input format (default from file extension)")
	cmd.Flags().StringVar(&into, "into", "", "Append to this conversation instead of creating one")
	cmd.Flags().StringVar(&title, "title", "", "Title for the new conversation")
	return cmd
}

func pickConversation(a *app, args []string) (chat.Conversation, error) {
	if len(args) > 0 {
		cv, ok := a.repo.ConversationByID(args[0])
		if !ok {
			return chat.Conversation{}, fmt.Errorf("%w: %s", chat.ErrConversationNotFound, args[0])
		}
		return cv, nil
	}
	cv, ok := a.repo.CurrentConversation()
	if !ok {
		return chat.Conversation{}, fmt.Errorf("no current conversation; pass an id")
	}
	return cv, nil
}
