package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// runBansList lê direto do persister, sem passar pelo BanStore: um arquivo
// ilegível aqui é erro, não lista vazia.
func runBansList(out io.Writer, cfg config) error {
	if err := cfg.validateStore(); err != nil {
		return err
	}
	persister, closePersister, err := openPersister(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closePersister() }()

	bans, err := persister.Load()
	if err != nil {
		return fmt.Errorf("load bans: %w", err)
	}

	ids := make([]string, 0, len(bans))
	for k := range bans {
		ids = append(ids, string(k))
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTIFIER\tBANNED AT\tREASON\tBY")
	for _, id := range ids {
		rec := bans[domain.Key(id)]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, rec.BannedAt.UTC().Format(time.RFC3339), rec.Reason, rec.BannedBy)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d banned\n", len(ids))
	return nil
}
