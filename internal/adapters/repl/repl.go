package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"lab-booking/internal/adapters/cli"
	"lab-booking/internal/app"
)

var errExit = errors.New("exit")

// Run starts the interactive booking shell for sess. Every line is a slash
// command; booking commands are dispatched through the one-shot CLI so both
// surfaces share parsing and output.
func Run(ctx context.Context, svc app.ApplicationService, sess app.Session, reader *bufio.Reader, out io.Writer) {
	fmt.Fprintln(out, "Lab Booking")
	fmt.Fprintf(out, "User %d in organisation %d (%s)\n", sess.UserID, sess.TenantID, sess.Role)
	fmt.Fprintln(out, "Use /help for commands.")
	fmt.Fprintln(out, strings.Repeat("-", 70))

	for {
		fmt.Fprint(out, "\n> ")
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			if err != nil {
				return
			}
			continue
		}

		if !strings.HasPrefix(input, "/") {
			fmt.Fprintln(out, "Commands start with /. Type /help for all commands.")
			continue
		}
		if derr := dispatch(ctx, svc, sess, reader, out, input); derr != nil {
			if errors.Is(derr, errExit) {
				fmt.Fprintln(out, "Goodbye!")
				return
			}
			fmt.Fprintf(out, "Error: %v\n", derr)
		}
		if err != nil {
			return
		}
	}
}

func dispatch(ctx context.Context, svc app.ApplicationService, sess app.Session, reader *bufio.Reader, out io.Writer, input string) error {
	tokens := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(tokens) == 0 {
		return nil
	}
	cmd := strings.ToLower(tokens[0])

	switch cmd {
	case "help", "h":
		printHelp(out)
		return nil

	case "exit", "quit", "e", "q":
		return errExit

	case "stage", "new":
		return handleStage(ctx, reader, out, svc, sess)

	case "checkout":
		return handleCheckout(ctx, reader, out, svc, sess)
	}

	tokens[0] = cmd
	return cli.Run(ctx, svc, sess, tokens, out)
}

// handleCheckout shows the cart and asks for approval before booking it.
func handleCheckout(ctx context.Context, reader *bufio.Reader, out io.Writer, svc app.ApplicationService, sess app.Session) error {
	if err := cli.Run(ctx, svc, sess, []string{"cart"}, out); err != nil {
		return err
	}
	res, err := svc.GetCartContents(ctx, sess)
	if err != nil {
		return err
	}
	if res.Cart == nil || len(res.Cart.Lines) == 0 {
		return nil
	}

	fmt.Fprint(out, "\nBook this cart? (y/n): ")
	choice, _ := reader.ReadString('\n')
	choice = strings.TrimSpace(strings.ToLower(choice))
	if choice != "y" && choice != "yes" {
		fmt.Fprintln(out, "Checkout cancelled.")
		return nil
	}
	return cli.Run(ctx, svc, sess, []string{"checkout"}, out)
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `
Availability
  /availability <date> <start> <end> [--with-cart]   free stock for a slot

Cart
  /stage                                             add lines interactively
  /add <item|kit> <id> <qty> <date> <start> <end>    add one line
  /remove <line-id>                                  remove one line
  /clear                                             empty the cart
  /cart                                              show the cart
  /checkout                                          book the cart after confirmation

Bookings
  /booking <group-id>                                show one booking
  /cancel <group-id>                                 cancel a booking
  /book-add <group-id> <item|kit> <id> <qty>         add to a booking
  /book-remove <group-id> <reservation-id> [qty]     take units off a booking
  /calendar <year> <month>                           bookings per day
  /day <date>                                        bookings of one day

  /exit                                              leave

Dates are YYYY-MM-DD, times HH:MM on the quarter hour.`)
}
