package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/urfave/cli/v3"

	"github.com/greeddj/imapmw/internal/fetchpipe"
	"github.com/greeddj/imapmw/internal/stdout"
	"github.com/greeddj/imapmw/internal/thread"
	"github.com/greeddj/imapmw/internal/utils"
)

// Thread returns the "thread" subcommand, listing sorted and sliced
// conversations over a folder.
func Thread() *cli.Command {
	return &cli.Command{
		Name:  "thread",
		Usage: "list sorted, sliced conversations over a folder",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.json"},
			&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Value: "INBOX"},
			&cli.BoolFlag{Name: "include-sent"},
			&cli.StringFlag{Name: "sent-folder", Value: "Sent"},
			&cli.IntFlag{Name: "index-range-start", Value: 0},
			&cli.IntFlag{Name: "index-range-end", Value: 0},
			&cli.IntFlag{Name: "max", Value: 20},
			&cli.BoolFlag{Name: "descending", Value: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			spin := stdout.New(false, false)
			defer spin.Stop()

			spin.Update("Connecting...")
			s, err := dial(ctx, cmd.String("config"))
			if err != nil {
				spin.Error(err.Error())
				return err
			}
			defer s.close()

			folder := cmd.String("folder")
			includeSent := cmd.Bool("include-sent")
			order := thread.Ascending
			if cmd.Bool("descending") {
				order = thread.Descending
			}

			spin.UpdateFolder(folder, "Building conversation list...")
			convs, err := s.rt.GetThreadSorted(ctx, s.conn, 0, folder, includeSent, s.conn, cmd.String("sent-folder"),
				int(cmd.Int("index-range-start")), int(cmd.Int("index-range-end")), int(cmd.Int("max")),
				thread.SortReceivedDate, order, profileFromFlags(nil), nil, nil, nil)
			if err != nil {
				spin.Error(err.Error())
				return err
			}
			spin.Success(utils.Pluralize(len(convs), "conversation"))

			printConversationTable(convs)
			return nil
		},
	}
}

// References returns the "references" subcommand, listing conversations
// as reply-graph trees.
func References() *cli.Command {
	return &cli.Command{
		Name:  "references",
		Usage: "list conversations as reply-graph trees",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.json"},
			&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Value: "INBOX"},
			&cli.IntFlag{Name: "size", Value: 20},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			spin := stdout.New(false, false)
			defer spin.Stop()

			spin.Update("Connecting...")
			s, err := dial(ctx, cmd.String("config"))
			if err != nil {
				spin.Error(err.Error())
				return err
			}
			defer s.close()

			folder := cmd.String("folder")
			spin.UpdateFolder(folder, "Building reference trees...")
			threads, err := s.rt.GetThreadReferences(ctx, s.conn, 0, folder, int(cmd.Int("size")),
				thread.SortReceivedDate, thread.Descending, nil, profileFromFlags(nil), nil, nil)
			if err != nil {
				spin.Error(err.Error())
				return err
			}
			spin.Success(utils.Pluralize(len(threads), "thread"))

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.Style().Options.DrawBorder = false
			t.Style().Options.SeparateColumns = false
			t.AppendHeader(table.Row{"Root subject", "Root UID", "Messages"})
			for _, th := range threads {
				var rootSubject string
				var rootUID uint32
				if th.Root != nil {
					rootSubject = th.Root.Subject
					rootUID = th.Root.UID
				}
				t.AppendRow(table.Row{rootSubject, rootUID, len(th.Messages)})
			}
			t.Render()
			return nil
		},
	}
}

// ClearCache returns the "clear-cache" subcommand, the CLI's analogue
// of the teacher's pre-sync confirmation prompt (internal/utils.
// AskConfirm), repurposed here to gate an explicit cache wipe.
func ClearCache() *cli.Command {
	return &cli.Command{
		Name:  "clear-cache",
		Usage: "drop every cached conversation list",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.json"},
			&cli.BoolFlag{Name: "confirm", Aliases: []string{"y", "yes"}, Usage: "auto-confirm (skip confirmation prompt)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if !cmd.Bool("confirm") {
				ok, err := confirmAction(ctx, "Clear the entire conversation cache?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Aborted.")
					return nil
				}
			}

			s, err := dial(ctx, cmd.String("config"))
			if err != nil {
				return err
			}
			defer s.close()

			s.rt.ClearCache()
			fmt.Println("Cache cleared.")
			return nil
		},
	}
}

func printConversationTable(convs [][]*fetchpipe.MailMessage) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateColumns = false
	t.AppendHeader(table.Row{"Subject", "Messages", "Last received"})
	for _, conv := range convs {
		if len(conv) == 0 {
			continue
		}
		last := conv[0].ReceivedDate
		for _, m := range conv {
			if m.ReceivedDate.After(last) {
				last = m.ReceivedDate
			}
		}
		t.AppendRow(table.Row{conv[0].Subject, len(conv), last.Format("2006-01-02 15:04")})
	}
	t.AppendFooter(table.Row{text.Bold.Sprint(fmt.Sprintf("total %d", len(convs)))})
	t.Render()
}
