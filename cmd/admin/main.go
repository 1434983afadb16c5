// Command admin is the operator console for event registrations: it signs
// in against the registration service, browses and filters registrations,
// sends tickets, toggles check-in and exports the list.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"portal-admin/internal/apiclient"
	"portal-admin/internal/app"
	"portal-admin/internal/auth"
	"portal-admin/internal/registration"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

var exitFunc = os.Exit

type command struct {
	usage   string
	guarded bool
	run     func(ctx context.Context, c *console, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"login":       {usage: "login [-username name] [-password pw]", run: cmdLogin},
		"login-token": {usage: "login-token -token TOKEN", run: cmdLoginToken},
		"logout":      {usage: "logout", run: cmdLogout},
		"status":      {usage: "status", run: cmdStatus},
		"list":        {usage: "list [-page n] [-limit n] [-search q] [-allergies] [-ticket-sent any|true|false] [-checked-in any|true|false] [-sort createdAt|fullName|email]", guarded: true, run: cmdList},
		"analytics":   {usage: "analytics", guarded: true, run: cmdAnalytics},
		"send-ticket": {usage: "send-ticket ID", guarded: true, run: cmdSendTicket},
		"send-bulk":   {usage: "send-bulk ID [ID...]", guarded: true, run: cmdSendBulk},
		"checkin":     {usage: "checkin ID", guarded: true, run: cmdCheckIn},
		"verify":      {usage: "verify PAYLOAD", guarded: true, run: cmdVerify},
		"export":      {usage: "export TARGET (file path, directory, s3://bucket/key or -)", guarded: true, run: cmdExport},
		"shell":       {usage: "shell", run: cmdShell},
	}
}

type usageError struct {
	message string
}

func (e *usageError) Error() string {
	return e.message
}

func usagef(format string, args ...any) error {
	return &usageError{message: fmt.Sprintf(format, args...)}
}

type console struct {
	rt     *app.Runtime
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage(stdout)
		return exitOK
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		printUsage(stderr)
		return exitUsage
	}

	rt, err := app.Build(ctx, app.Options{LoadDotEnv: true, LogOutput: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return exitFailure
	}
	defer func() {
		if err := rt.Close(); err != nil {
			fmt.Fprintf(stderr, "shutdown: %v\n", err)
		}
	}()

	c := &console{rt: rt, stdin: stdin, stdout: stdout, stderr: stderr}
	return c.exec(ctx, cmd, args[1:])
}

func (c *console) exec(ctx context.Context, cmd command, args []string) int {
	if cmd.guarded {
		guard := c.rt.Gate.Guard(ctx)
		defer guard.Stop()
		if !guard.Authorized() {
			fmt.Fprintln(c.stderr, "not logged in or session expired; run: admin login")
			return exitUsage
		}
	}

	if err := cmd.run(ctx, c, args); err != nil {
		return c.report(err)
	}
	return exitOK
}

func (c *console) report(err error) int {
	var usageErr *usageError
	var lockout *auth.LockoutError

	switch {
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.As(err, &usageErr):
		fmt.Fprintf(c.stderr, "usage: %s\n", usageErr.message)
		return exitUsage
	case errors.As(err, &lockout):
		fmt.Fprintln(c.stderr, lockout.Error())
		return exitFailure
	case errors.Is(err, auth.ErrInvalidCredentials):
		fmt.Fprintf(c.stderr, "login failed: %v\n", err)
		return exitFailure
	case errors.Is(err, apiclient.ErrUnauthorized):
		fmt.Fprintln(c.stderr, "session expired, please log in again")
		return exitUsage
	case errors.Is(err, registration.ErrSessionEnded):
		fmt.Fprintln(c.stderr, "session ended while loading, please log in again")
		return exitUsage
	case apiclient.IsValidation(err):
		fmt.Fprintf(c.stderr, "invalid input: %v\n", err)
		return exitUsage
	default:
		fmt.Fprintf(c.stderr, "error: %v\n", err)
		return exitFailure
	}
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: admin <command> [flags]")
	fmt.Fprintln(w, "commands:")
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
}
