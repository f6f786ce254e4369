package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"lab-booking/internal/app"
)

// Run executes a one-shot CLI command for sess and writes the result to out.
// args is the command line after global flags; the first element is the
// subcommand name.
func Run(ctx context.Context, svc app.ApplicationService, sess app.Session, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command\n%s", usage)
	}

	switch args[0] {
	case "availability", "avail", "a":
		if len(args) < 4 {
			return fmt.Errorf("usage: availability <YYYY-MM-DD> <HH:MM> <HH:MM> [--with-cart]")
		}
		req := app.AvailabilityRequest{Date: args[1], Start: args[2], End: args[3]}
		req.IncludeCart = len(args) > 4 && args[4] == "--with-cart"
		res, err := svc.ComputeAvailability(ctx, sess, req)
		if err != nil {
			return err
		}
		printAvailability(out, res)

	case "add":
		if len(args) < 7 {
			return fmt.Errorf("usage: add <item|kit> <id> <quantity> <YYYY-MM-DD> <HH:MM> <HH:MM>")
		}
		id, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[2])
		}
		qty, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[3])
		}
		res, err := svc.AddCartItem(ctx, sess, app.AddCartItemRequest{
			Type: args[1], ID: id, Quantity: qty, Date: args[4], Start: args[5], End: args[6],
		})
		if err != nil {
			return err
		}
		printCart(out, res)

	case "remove", "rm":
		if len(args) < 2 {
			return fmt.Errorf("usage: remove <line-id>")
		}
		lineID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid line id %q", args[1])
		}
		if err := svc.RemoveCartItem(ctx, sess, lineID); err != nil {
			return err
		}
		fmt.Fprintln(out, "Line removed.")

	case "clear":
		if err := svc.ClearCart(ctx, sess); err != nil {
			return err
		}
		fmt.Fprintln(out, "Cart cleared.")

	case "cart", "c":
		res, err := svc.GetCartContents(ctx, sess)
		if err != nil {
			return err
		}
		printCart(out, res)

	case "checkout":
		res, err := svc.Checkout(ctx, sess)
		if err != nil {
			return err
		}
		return printJSON(out, res)

	case "booking", "b":
		if len(args) < 2 {
			return fmt.Errorf("usage: booking <group-id>")
		}
		res, err := svc.GetBooking(ctx, sess, args[1])
		if err != nil {
			return err
		}
		return printJSON(out, res)

	case "cancel":
		if len(args) < 2 {
			return fmt.Errorf("usage: cancel <group-id>")
		}
		if err := svc.CancelBooking(ctx, sess, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(out, "Booking cancelled.")

	case "book-add":
		if len(args) < 5 {
			return fmt.Errorf("usage: book-add <group-id> <item|kit> <id> <quantity>")
		}
		id, err := strconv.ParseInt(args[3], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[3])
		}
		qty, err := strconv.Atoi(args[4])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[4])
		}
		res, err := svc.AddToBooking(ctx, sess, args[1], app.BookingItemRequest{Type: args[2], ID: id, Quantity: qty})
		if err != nil {
			return err
		}
		return printJSON(out, res)

	case "book-remove":
		if len(args) < 3 {
			return fmt.Errorf("usage: book-remove <group-id> <reservation-id> [quantity]")
		}
		resID, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid reservation id %q", args[2])
		}
		qty := 1
		if len(args) > 3 {
			if qty, err = strconv.Atoi(args[3]); err != nil {
				return fmt.Errorf("invalid quantity %q", args[3])
			}
		}
		res, err := svc.RemoveFromBooking(ctx, sess, args[1], resID, qty)
		if err != nil {
			return err
		}
		if res.Remaining == 0 {
			fmt.Fprintln(out, "Last reservation removed, booking closed.")
		} else {
			fmt.Fprintf(out, "Removed. %d reservation(s) left in the booking.\n", res.Remaining)
		}

	case "calendar", "cal":
		if len(args) < 3 {
			return fmt.Errorf("usage: calendar <year> <month>")
		}
		year, errY := strconv.Atoi(args[1])
		month, errM := strconv.Atoi(args[2])
		if errY != nil || errM != nil {
			return fmt.Errorf("year and month must be numbers")
		}
		res, err := svc.MonthCalendar(ctx, sess, year, month)
		if err != nil {
			return err
		}
		return printJSON(out, res)

	case "day":
		if len(args) < 2 {
			return fmt.Errorf("usage: day <YYYY-MM-DD>")
		}
		res, err := svc.DayBookings(ctx, sess, args[1])
		if err != nil {
			return err
		}
		return printJSON(out, res)

	default:
		return fmt.Errorf("unknown command: %s\n%s", args[0], usage)
	}
	return nil
}

const usage = "Available: availability, add, remove, clear, cart, checkout, booking, cancel, book-add, book-remove, calendar, day"

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAvailability(out io.Writer, res *app.AvailabilityResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 62))
	fmt.Fprintf(out, "  AVAILABILITY  %s  %s-%s\n", res.Date, res.Start, res.End)
	fmt.Fprintln(out, strings.Repeat("=", 62))
	fmt.Fprintf(out, "  %-6s %-34s %8s %8s\n", "ID", "ITEM", "FREE", "TOTAL")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 58))
	for _, it := range res.Items {
		fmt.Fprintf(out, "  %-6d %-34s %8d %8d\n", it.ItemID, truncate(it.Name, 34), it.Available, it.Total)
	}
	if len(res.Kits) > 0 {
		fmt.Fprintln(out, "  "+strings.Repeat("-", 58))
		fmt.Fprintf(out, "  %-6s %-34s %8s\n", "ID", "KIT", "FREE")
		for _, k := range res.Kits {
			fmt.Fprintf(out, "  %-6d %-34s %8d\n", k.KitID, truncate(k.Name, 34), k.Available)
		}
	}
	fmt.Fprintln(out, strings.Repeat("=", 62))
}

func printCart(out io.Writer, res *app.CartResult) {
	c := res.Cart
	fmt.Fprintln(out)
	if c == nil || len(c.Lines) == 0 {
		fmt.Fprintln(out, "  Cart is empty.")
		return
	}
	fmt.Fprintf(out, "  CART %s  (%d slot(s))\n", c.CartID, c.Total)
	fmt.Fprintln(out, "  "+strings.Repeat("-", 70))
	for _, l := range c.Lines {
		fmt.Fprintf(out, "  #%-5d %-4s %-30s x%-5d %s %s-%s\n",
			l.LineID, l.Type, truncate(l.Name, 30), l.Quantity, l.Date, l.Start, l.End)
	}
	if c.ExpiresAt != nil {
		fmt.Fprintf(out, "  expires %s\n", c.ExpiresAt.Format("2006-01-02 15:04"))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// Fatal prints err to stderr and exits with status 1.
func Fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
