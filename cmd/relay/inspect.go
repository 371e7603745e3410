package main

import (
	"campus-relay/domain"
	"campus-relay/repositories"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mama165/sdk-go/database"
)

// RelayMapper renders relay keys in the Badger debug inspector.
func RelayMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	prefix, _, _ := strings.Cut(key, ":")
	row.Type = strings.ToUpper(prefix)

	switch prefix {
	case "conv":
		var conv domain.Conversation
		if err := json.Unmarshal(val, &conv); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Detail = fmt.Sprintf("item=%s buyer=%s seller=%s status=%s messages=%d",
			conv.ItemID, conv.Buyer(), conv.Seller(), conv.Status, len(conv.MessageIDs))
	case "msg":
		var message repositories.DiskMessage
		if err := json.Unmarshal(val, &message); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Detail = fmt.Sprintf("%s -> %s: %s", message.Author, message.Receiver, message.Content)
	case "convidx", "msgid":
		row.Detail = string(val)
	}
	return row
}
