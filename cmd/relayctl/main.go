// Command relayctl prints the conversations and transcripts stored by the relay.
// It opens the Badger directory read-only, stop the relay or point it at a backup.
package main

import (
	"campus-relay/domain"
	"campus-relay/repositories"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "relayctl: %v\n", err)
		os.Exit(1)
	}
}

func run(out io.Writer, args []string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	flags := flag.NewFlagSet("relayctl", flag.ContinueOnError)
	dbPath := flags.String("db", cfg.BadgerFilepath, "Path to badger DB")
	user := flags.String("user", "", "Only list the conversations of this user")
	conversation := flags.String("conversation", "", "Print the transcript of this conversation")
	limit := flags.Int("limit", cfg.Limit, "Messages per transcript page")
	if err = flags.Parse(args); err != nil {
		return err
	}

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("error while opening Badger: %w", err)
	}
	defer func() { _ = db.Close() }()

	repository := repositories.NewConversationRepository(db, logs.GetLoggerFromLevel(slog.LevelWarn), limit)
	r := renderer{out: out, colours: cfg.Colours}
	ctx := context.Background()

	if *conversation != "" {
		return transcript(ctx, repository, r, domain.ConversationID(*conversation))
	}
	if *user != "" {
		conversations, err := repository.ListConversations(ctx, domain.UserID(*user))
		if err != nil {
			return err
		}
		r.conversations(conversations)
		return nil
	}
	var conversations []domain.Conversation
	if err = repository.ScanConversations(ctx, func(conv domain.Conversation) error {
		conversations = append(conversations, conv)
		return nil
	}); err != nil {
		return err
	}
	r.conversations(conversations)
	return nil
}

// transcript prints every page of a conversation, oldest first.
func transcript(ctx context.Context, repository repositories.ConversationRepository, r renderer, id domain.ConversationID) error {
	conv, err := repository.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	var pages [][]domain.Message
	var cursor *string
	for {
		page, next, err := repository.GetMessages(ctx, id, cursor)
		if err != nil {
			return err
		}
		pages = append(pages, page)
		if next == nil {
			break
		}
		cursor = next
	}
	var messages []domain.Message
	for i := len(pages) - 1; i >= 0; i-- {
		messages = append(messages, pages[i]...)
	}
	r.transcript(conv, messages)
	return nil
}
