package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"portal-admin/internal/apiclient"
	"portal-admin/internal/registration"
)

func newFlagSet(c *console, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func cmdLogin(ctx context.Context, c *console, args []string) error {
	fs := newFlagSet(c, "login")
	username := fs.String("username", os.Getenv("PORTAL_ADMIN_USERNAME"), "admin username")
	password := fs.String("password", "", "admin password, read from stdin when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *password == "" {
		line, err := readLine(c.stdin)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		*password = line
	}

	if err := c.rt.Auth.Login(ctx, *username, *password); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "logged in, session valid until %s\n", c.rt.Session.Expiry().Local().Format(time.RFC3339))
	return nil
}

func cmdLoginToken(ctx context.Context, c *console, args []string) error {
	fs := newFlagSet(c, "login-token")
	token := fs.String("token", os.Getenv("PORTAL_ADMIN_TOKEN"), "existing admin token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" && fs.NArg() > 0 {
		*token = fs.Arg(0)
	}
	if *token == "" {
		return usagef("%s", commands["login-token"].usage)
	}

	if err := c.rt.Auth.LoginWithToken(ctx, *token); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "token accepted, session valid until %s\n", c.rt.Session.Expiry().Local().Format(time.RFC3339))
	return nil
}

func cmdLogout(ctx context.Context, c *console, _ []string) error {
	if err := c.rt.Auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "logged out")
	return nil
}

func cmdStatus(_ context.Context, c *console, _ []string) error {
	printStatus(c.stdout, c)
	return nil
}

func cmdList(ctx context.Context, c *console, args []string) error {
	fs := newFlagSet(c, "list")
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", c.rt.Config.PageLimit, "rows per page")
	search := fs.String("search", "", "match name, email or phone")
	allergies := fs.Bool("allergies", false, "only registrations with allergies")
	ticketSent := fs.String("ticket-sent", "any", "any, true or false")
	checkedIn := fs.String("checked-in", "any", "any, true or false")
	sortBy := fs.String("sort", string(apiclient.SortCreatedAt), "createdAt, fullName or email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ticket, err := apiclient.ParseTri(*ticketSent)
	if err != nil {
		return usagef("-ticket-sent: %v", err)
	}
	checked, err := apiclient.ParseTri(*checkedIn)
	if err != nil {
		return usagef("-checked-in: %v", err)
	}

	query := registration.Query{
		Page:          *page,
		Limit:         *limit,
		Search:        *search,
		AllergiesOnly: *allergies,
		TicketSent:    ticket,
		CheckedIn:     checked,
		SortBy:        apiclient.SortField(*sortBy),
	}
	if err := c.rt.View.SetQuery(query); err != nil {
		return err
	}
	if err := c.rt.View.Fetch(ctx); err != nil {
		return err
	}

	printPage(c.stdout, c.rt.View, nil)
	return nil
}

func cmdAnalytics(ctx context.Context, c *console, _ []string) error {
	analytics, err := c.rt.Executor.Analytics(ctx)
	if err != nil {
		return err
	}
	printAnalytics(c.stdout, analytics)
	return nil
}

func cmdSendTicket(ctx context.Context, c *console, args []string) error {
	if len(args) != 1 {
		return usagef("%s", commands["send-ticket"].usage)
	}
	if err := c.rt.Executor.SendTicket(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "ticket sent for %s\n", args[0])
	return nil
}

func cmdSendBulk(ctx context.Context, c *console, args []string) error {
	if len(args) == 0 {
		return usagef("%s", commands["send-bulk"].usage)
	}
	result, err := c.rt.Executor.SendTicketsBulk(ctx, args)
	if err != nil {
		return err
	}
	printBulk(c.stdout, result)
	return nil
}

func cmdCheckIn(ctx context.Context, c *console, args []string) error {
	if len(args) != 1 {
		return usagef("%s", commands["checkin"].usage)
	}
	result, err := c.rt.Executor.ToggleCheckIn(ctx, args[0])
	if err != nil {
		return err
	}
	printCheckIn(c.stdout, result)
	return nil
}

func cmdVerify(ctx context.Context, c *console, args []string) error {
	if len(args) != 1 {
		return usagef("%s", commands["verify"].usage)
	}
	return verifyPayload(ctx, c, args[0])
}

func cmdExport(ctx context.Context, c *console, args []string) error {
	if len(args) != 1 {
		return usagef("%s", commands["export"].usage)
	}
	sink, err := c.rt.ExportSink(ctx, args[0], c.stdout)
	if err != nil {
		return err
	}
	location, err := c.rt.Executor.ExportCSV(ctx, sink)
	if err != nil {
		return err
	}
	if location != "-" {
		fmt.Fprintf(c.stdout, "exported to %s\n", location)
	}
	return nil
}

// verifyPayload checks a scanned check-in payload against the live record.
func verifyPayload(ctx context.Context, c *console, payload string) error {
	artifact, err := registration.ParseCheckInPayload(payload)
	if err != nil {
		return err
	}

	search := artifact.Email
	if err := c.rt.View.SetFilter(ctx, registration.Filter{Search: &search}); err != nil {
		return err
	}

	record, ok := c.rt.View.Record(artifact.ID)
	switch {
	case !ok:
		fmt.Fprintf(c.stdout, "no registration %s for %s\n", artifact.ID, artifact.Email)
	case !artifact.Matches(record):
		fmt.Fprintf(c.stdout, "payload does not match registration %s\n", record.ID)
	case record.CheckedIn:
		fmt.Fprintf(c.stdout, "valid: %s <%s> is checked in\n", record.FullName, record.Email)
	default:
		fmt.Fprintf(c.stdout, "valid ticket, but %s <%s> is not checked in\n", record.FullName, record.Email)
	}
	return nil
}

func printStatus(w io.Writer, c *console) {
	snapshot := c.rt.Session.Snapshot()
	switch {
	case c.rt.Session.IsValid():
		fmt.Fprintf(w, "logged in, session valid until %s\n", snapshot.Expiry.Local().Format(time.RFC3339))
	case snapshot.HasToken:
		fmt.Fprintln(w, "session expired")
	default:
		fmt.Fprintln(w, "not logged in")
	}

	if snapshot.Locked {
		fmt.Fprintf(w, "login locked for %s\n", c.rt.Session.LockRemaining().Round(time.Second))
	} else if snapshot.FailedAttempts > 0 {
		fmt.Fprintf(w, "failed login attempts: %d of %d\n", snapshot.FailedAttempts, c.rt.Session.MaxAttempts())
	}
}

func printPage(w io.Writer, view *registration.Coordinator, selection *registration.Selection) {
	pagination := view.Pagination()
	records := view.Records()

	fmt.Fprintf(w, "page %d of %d (%d registrations)\n", pagination.Page, pagination.Pages, pagination.Total)
	if len(records) == 0 {
		fmt.Fprintln(w, "no registrations match")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "SEL\tID\tNAME\tEMAIL\tPHONE\tALLERGIES\tTICKET\tCHECKED IN")
	for _, record := range records {
		mark := " "
		if selection != nil && selection.Has(record.ID) {
			mark = "x"
		}
		allergies := "-"
		if record.HasAllergy {
			allergies = record.Allergies
			if allergies == "" {
				allergies = "yes"
			}
		}
		fmt.Fprintf(tw, "[%s]\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			mark,
			record.ID,
			record.FullName,
			record.Email,
			record.Phone,
			allergies,
			yesNo(record.TicketSent),
			yesNo(record.CheckedIn),
		)
	}
	_ = tw.Flush()
}

func printAnalytics(w io.Writer, analytics apiclient.Analytics) {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintf(tw, "total registrations\t%d\n", analytics.TotalRegistrations)
	fmt.Fprintf(tw, "with allergies\t%d\n", analytics.WithAllergies)
	fmt.Fprintf(tw, "without allergies\t%d\n", analytics.WithoutAllergies)
	fmt.Fprintf(tw, "checked in\t%d\n", analytics.CheckedIn)
	fmt.Fprintf(tw, "not checked in\t%d\n", analytics.NotCheckedIn)
	fmt.Fprintf(tw, "tickets sent\t%d\n", analytics.TicketSent)
	fmt.Fprintf(tw, "tickets not sent\t%d\n", analytics.TicketNotSent)
	_ = tw.Flush()
}

func printBulk(w io.Writer, result registration.BulkResult) {
	fmt.Fprintf(w, "sent %d of %d tickets\n", result.Updated, result.Requested)
}

func printCheckIn(w io.Writer, result registration.CheckInResult) {
	if !result.Record.CheckedIn {
		fmt.Fprintf(w, "check-in undone for %s\n", result.Record.FullName)
		return
	}
	fmt.Fprintf(w, "%s checked in\n", result.Record.FullName)
	if result.Artifact != nil {
		fmt.Fprintf(w, "payload: %s\n", result.Artifact.Payload)
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func readLine(r io.Reader) (string, error) {
	if r == nil {
		return "", errors.New("no input")
	}
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimRight(scanner.Text(), "\r\n"), nil
}
