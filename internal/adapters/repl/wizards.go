package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"lab-booking/internal/adapters/cli"
	"lab-booking/internal/app"
)

// handleStage runs an interactive staging session: one slot, then any number
// of item or kit lines for it.
func handleStage(ctx context.Context, reader *bufio.Reader, out io.Writer, svc app.ApplicationService, sess app.Session) error {
	fmt.Fprintln(out, "Staging a slot. Type 'cancel' at any prompt to abort.")

	date, ok := prompt(reader, out, "  Date (YYYY-MM-DD): ")
	if !ok {
		return nil
	}
	start, ok := prompt(reader, out, "  Start (HH:MM): ")
	if !ok {
		return nil
	}
	end, ok := prompt(reader, out, "  End (HH:MM): ")
	if !ok {
		return nil
	}

	if err := cli.Run(ctx, svc, sess, []string{"availability", date, start, end, "--with-cart"}, out); err != nil {
		return err
	}

	fmt.Fprintln(out, "Enter lines. Type 'done' when finished.")
	fmt.Fprintln(out, "Format per line: <item|kit> <id> <quantity>")
	fmt.Fprintln(out, "  Example: item 3 2")

	staged := 0
	lineNum := 1
	for {
		raw, ok := prompt(reader, out, fmt.Sprintf("  Line %d: ", lineNum))
		if !ok {
			break
		}
		if strings.ToLower(raw) == "done" {
			break
		}
		if raw == "" {
			continue
		}

		parts := strings.Fields(raw)
		if len(parts) != 3 {
			fmt.Fprintln(out, "  Invalid format. Use: <item|kit> <id> <quantity>")
			continue
		}
		if _, err := strconv.ParseInt(parts[1], 10, 64); err != nil {
			fmt.Fprintln(out, "  Invalid id.")
			continue
		}
		if qty, err := strconv.Atoi(parts[2]); err != nil || qty <= 0 {
			fmt.Fprintln(out, "  Invalid quantity.")
			continue
		}

		args := []string{"add", strings.ToLower(parts[0]), parts[1], parts[2], date, start, end}
		if err := cli.Run(ctx, svc, sess, args, out); err != nil {
			fmt.Fprintf(out, "  Not staged: %v\n", err)
			continue
		}
		staged++
		lineNum++
	}

	fmt.Fprintf(out, "%d line(s) staged for %s %s-%s.\n", staged, date, start, end)
	return nil
}

// prompt reads one trimmed answer. It reports false on 'cancel' or end of input.
func prompt(reader *bufio.Reader, out io.Writer, label string) (string, bool) {
	fmt.Fprint(out, label)
	raw, err := reader.ReadString('\n')
	raw = strings.TrimSpace(raw)
	if strings.ToLower(raw) == "cancel" {
		fmt.Fprintln(out, "  Cancelled.")
		return "", false
	}
	if err != nil && raw == "" {
		return "", false
	}
	return raw, true
}
