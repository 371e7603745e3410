package main

import (
	"campus-relay/domain"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

type renderer struct {
	out     io.Writer
	colours bool
}

func (r renderer) table(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(r.out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func (r renderer) conversations(conversations []domain.Conversation) {
	table := r.table([]string{"ID", "Item", "Buyer", "Seller", "Status", "Messages", "Updated"})
	for _, conv := range conversations {
		table.Append([]string{
			string(conv.ID),
			string(conv.ItemID),
			string(conv.Buyer()),
			string(conv.Seller()),
			r.status(conv.Status),
			fmt.Sprint(len(conv.MessageIDs)),
			conv.UpdatedAt.Format(time.RFC3339),
		})
	}
	table.Render()
	fmt.Fprintf(r.out, "\n%d conversations\n", len(conversations))
}

func (r renderer) transcript(conv domain.Conversation, messages []domain.Message) {
	header := fmt.Sprintf("  ====== %s (%s) ======", conv.ID, conv.ItemID)
	if r.colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Fprintln(r.out, header)
	fmt.Fprintf(r.out, "buyer %s, seller %s, %s\n\n", conv.Buyer(), conv.Seller(), r.status(conv.Status))

	table := r.table([]string{"At", "From", "To", "Content"})
	for _, m := range messages {
		table.Append([]string{
			m.CreatedAt.Format(time.RFC3339),
			string(m.SenderID),
			string(m.ReceiverID),
			strings.ReplaceAll(m.Content, "\n", " "),
		})
	}
	table.Render()
}

func (r renderer) status(status domain.Status) string {
	if !r.colours {
		return string(status)
	}
	switch status {
	case domain.StatusAccepted:
		return color.Green.Sprint(status)
	case domain.StatusRejected:
		return color.Red.Sprint(status)
	default:
		return color.Yellow.Sprint(status)
	}
}
