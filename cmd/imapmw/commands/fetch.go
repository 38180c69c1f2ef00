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
	"github.com/greeddj/imapmw/internal/utils"
)

func profileFromFlags(headers []string) fetchpipe.Profile {
	p := fetchpipe.NewProfile(
		fetchpipe.FieldUID,
		fetchpipe.FieldInternalDate,
		fetchpipe.FieldFlags,
		fetchpipe.FieldSize,
		fetchpipe.FieldEnvelope,
	)
	if len(headers) > 0 {
		p.Fields[fetchpipe.FieldHeaders] = true
		p.HeaderNames = headers
	}
	return p
}

// FetchAll returns the "fetch-all" subcommand, grounded on the
// teacher's Show command's table-output shape
// (cmd/commands/show.go printAccountInfo).
func FetchAll() *cli.Command {
	return &cli.Command{
		Name:  "fetch-all",
		Usage: "fetch every message in a folder",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.json"},
			&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Value: "INBOX"},
			&cli.BoolFlag{Name: "descending"},
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
			spin.UpdateFolder(folder, "Fetching...")
			messages, err := s.rt.FetchAll(s.conn, 0, folder, !cmd.Bool("descending"), profileFromFlags(nil))
			if err != nil {
				spin.Error(err.Error())
				return err
			}
			spin.Success(fmt.Sprintf("Fetched %s from %s", utils.Pluralize(len(messages), "message"), folder))

			printMessageTable(messages)
			return nil
		},
	}
}

// Fetch returns the "fetch" subcommand, fetching a specific set of
// messages by sequence number or UID under the given fetch profile.
func Fetch() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "fetch specific messages by sequence number or UID",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.json"},
			&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Value: "INBOX"},
			&cli.BoolFlag{Name: "uid", Usage: "treat ids as UIDs instead of sequence numbers"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ids, err := parseInt64Args(cmd.Args().Slice())
			if err != nil {
				return err
			}

			spin := stdout.New(false, false)
			defer spin.Stop()

			spin.Update("Connecting...")
			s, err := dial(ctx, cmd.String("config"))
			if err != nil {
				spin.Error(err.Error())
				return err
			}
			defer s.close()

			idKind := fetchpipe.BySequenceNumber
			if cmd.Bool("uid") {
				idKind = fetchpipe.ByUID
			}

			folder := cmd.String("folder")
			spin.UpdateFolder(folder, fmt.Sprintf("Fetching %s...", utils.Pluralize(len(ids), "message")))
			result, err := s.rt.Fetch(s.conn, 0, folder, profileFromFlags(nil), ids, idKind)
			if err != nil {
				spin.Error(err.Error())
				return err
			}
			spin.Success(fmt.Sprintf("Fetched %d of %d requested", len(result), len(ids)))

			messages := make([]*fetchpipe.MailMessage, 0, len(result))
			for _, m := range result {
				messages = append(messages, m)
			}
			printMessageTable(messages)
			return nil
		},
	}
}

func parseInt64Args(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		var id int64
		if _, err := fmt.Sscanf(a, "%d", &id); err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printMessageTable(messages []*fetchpipe.MailMessage) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateColumns = false

	t.AppendHeader(table.Row{"Seq", "UID", "Date", "Subject", "Size"})
	for _, m := range messages {
		t.AppendRow(table.Row{m.SequenceNumber, m.UID, m.ReceivedDate.Format("2006-01-02 15:04"), m.Subject, utils.FormatSize(uint64(m.Size))})
	}
	t.AppendFooter(table.Row{text.Bold.Sprint(fmt.Sprintf("total %d", len(messages)))})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	t.Render()
}
