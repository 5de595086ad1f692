package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/stream"
)

func chatCmd() *cobra.Command {
	var (
		conversationID string
		newChat        bool
		model          string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal",
		Long: `Start an interactive chat. Replies stream as they are generated;
press Ctrl-C to stop a reply and Ctrl-D to quit.

Commands inside the chat:
  /new      start a new conversation
  /list     list conversations
  /regen    regenerate the last reply
  /quit     exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			switch {
			case newChat:
				if model != "" {
					if _, err := a.catalog.Resolve(model, ""); err != nil {
						return err
					}
				}
				a.repo.CreateConversation(ctx, "", model)
			case conversationID != "":
				if _, ok := a.repo.ConversationByID(conversationID); !ok {
					return fmt.Errorf("%w: %s", chat.ErrConversationNotFound, conversationID)
				}
				a.repo.SetCurrentConversation(ctx, conversationID)
			}

			return runREPL(ctx, a)
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Continue the given conversation")
	cmd.Flags().BoolVar(&newChat, "new", false, "Start a new conversation")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model for a new conversation")
	return cmd
}

func runREPL(ctx context.Context, a *app) error {
	if cv, ok := a.repo.CurrentConversation(); ok {
		fmt.Printf("Conversation %q (%d messages, model %s)\n", cv.Title, len(cv.Messages), cv.Model)
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		fmt.Print("> ")
		var line string
		select {
		case l, ok := <-lines:
			if !ok {
				fmt.Println()
				return nil
			}
			line = strings.TrimSpace(l)
		case <-interrupts:
			fmt.Println()
			return nil
		}
		if line == "" {
			continue
		}

		var (
			g   *stream.Generation
			err error
			out = &replyPrinter{}
		)
		switch line {
		case "/quit", "/exit":
			return nil
		case "/new":
			id := a.repo.CreateConversation(ctx, "", "")
			fmt.Println("Started conversation", id)
			continue
		case "/list":
			current := a.repo.CurrentConversationID()
			for _, cv := range a.repo.Conversations() {
				marker := " "
				if cv.ID == current {
					marker = "*"
				}
				fmt.Printf("%s %s  %-40s %d messages\n", marker, cv.ID, cv.Title, len(cv.Messages))
			}
			continue
		case "/regen":
			cv, ok := a.repo.CurrentConversation()
			if !ok || len(cv.Messages) == 0 {
				fmt.Println("Nothing to regenerate.")
				continue
			}
			last := cv.Messages[len(cv.Messages)-1]
			if last.Role != chat.RoleAssistant {
				fmt.Println("The last message is not a reply.")
				continue
			}
			g, err = a.ctrl.Regenerate(ctx, cv.ID, last.ID, out)
		default:
			g, err = a.ctrl.Send(ctx, line, out)
		}

		if err != nil {
			if errors.Is(err, chat.ErrModelUnavailable) {
				fmt.Println("That model is not available; pick another with `gopherchat chat --new -m <model>`.")
				continue
			}
			return err
		}
		if g == nil {
			continue
		}

		select {
		case <-g.Done():
		case <-interrupts:
			a.ctrl.Stop(g.ConversationID)
			g.Wait()
		}
		fmt.Println()
		if g.Result() == stream.StateAborted {
			fmt.Println("[stopped]")
		}
	}
}

// replyPrinter writes the new tail of each snapshot to stdout.
type replyPrinter struct {
	mu      sync.Mutex
	printed int
}

func (p *replyPrinter) OnGeneration(e stream.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch e.Kind {
	case stream.EventSnapshot:
		if len(e.Content) > p.printed {
			fmt.Print(e.Content[p.printed:])
			p.printed = len(e.Content)
		}
	case stream.EventErrored:
		fmt.Print(stream.ApologyText)
	}
}
