package app

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints archived ledger events, most recent Limit only.
func (a *App) Show(opts ShowOptions, out io.Writer) error {
	filter, err := buildFilter(opts.Name, opts.From, opts.To)
	if err != nil {
		return err
	}

	ledger, err := a.openArchive()
	if err != nil {
		return err
	}

	events := ledger.Query(filter)
	if len(events) == 0 {
		fmt.Fprintln(out, "no events found")
		return nil
	}
	if opts.Limit > 0 && len(events) > opts.Limit {
		events = events[len(events)-opts.Limit:]
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tEvent\tParameters")
	for _, e := range events {
		fmt.Fprintf(writer, "%s\t%s\t%s\n",
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.Name,
			formatParams(e.Parameters),
		)
	}
	return writer.Flush()
}

func formatParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+sanitizeInline(params[k]))
	}
	return strings.Join(parts, " ")
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
