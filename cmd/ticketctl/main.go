package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/h1v3-io/ticketd/internal/client"
	"github.com/h1v3-io/ticketd/internal/config"
	"github.com/h1v3-io/ticketd/pkg/protocol"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "health":
		cmdHealth()
	case "create":
		cmdCreate(os.Args[2:])
	case "show":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: ticketctl show <id>")
			os.Exit(1)
		}
		cmdShow(os.Args[2])
	case "patch":
		cmdPatch(os.Args[2:])
	case "logs":
		cmdLogs(os.Args[2:])
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: ticketctl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func cmdHealth() {
	h, err := newClient().Health(context.Background())
	exitOnErr(err)
	fmt.Println(prettyJSON(h))
}

func cmdCreate(args []string) {
	fs := pflag.NewFlagSet("create", pflag.ExitOnError)
	title := fs.StringP("title", "t", "", "Ticket title (1-50 bytes)")
	description := fs.StringP("description", "d", "", "Ticket description (1-500 bytes)")
	fs.Parse(args)

	// Positional form: ticketctl create <title> <description>
	if rest := fs.Args(); len(rest) == 2 && *title == "" && *description == "" {
		*title, *description = rest[0], rest[1]
	}

	t, err := newClient().Create(context.Background(), *title, *description)
	exitOnErr(err)
	fmt.Println(prettyJSON(t))
}

func cmdShow(arg string) {
	id := parseID(arg)
	t, err := newClient().Get(context.Background(), id)
	if client.IsNotFound(err) {
		fmt.Fprintf(os.Stderr, "ticket %d not found\n", id)
		os.Exit(1)
	}
	exitOnErr(err)
	fmt.Println(prettyJSON(t))
}

func cmdPatch(args []string) {
	fs := pflag.NewFlagSet("patch", pflag.ExitOnError)
	title := fs.StringP("title", "t", "", "New title")
	description := fs.StringP("description", "d", "", "New description")
	status := fs.StringP("status", "s", "", "New status (ToDo|InProgress|Done)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ticketctl patch <id> [--title T] [--description D] [--status S]")
		os.Exit(1)
	}
	id := parseID(fs.Arg(0))

	// Only flags given on the command line are sent, so --title "" reaches
	// the server and is rejected there.
	var req protocol.PatchTicketRequest
	if fs.Changed("title") {
		req.Title = title
	}
	if fs.Changed("description") {
		req.Description = description
	}
	if fs.Changed("status") {
		req.Status = status
	}

	t, err := newClient().Patch(context.Background(), id, req)
	if client.IsNotFound(err) {
		fmt.Fprintf(os.Stderr, "ticket %d not found\n", id)
		os.Exit(1)
	}
	exitOnErr(err)
	fmt.Println(prettyJSON(t))
}

func cmdLogs(args []string) {
	fs := pflag.NewFlagSet("logs", pflag.ExitOnError)
	level := fs.String("level", "", "Minimum level (debug|info|warn|error)")
	requestID := fs.String("request-id", "", "Only entries for this request")
	limit := fs.Int("limit", 50, "Max entries")
	since := fs.Duration("since", 0, "Only entries newer than this, e.g. 10m")
	fs.Parse(args)

	q := client.LogQuery{Level: *level, RequestID: *requestID, Limit: *limit}
	if *since > 0 {
		q.Since = time.Now().Add(-*since)
	}
	entries, err := newClient().Logs(context.Background(), q)
	exitOnErr(err)
	for _, e := range entries {
		line := fmt.Sprintf("%s %-5s %s", e.Time.Format(time.RFC3339), e.Level, e.Message)
		if e.RequestID != "" {
			line += " request_id=" + e.RequestID
		}
		fmt.Println(line)
	}
}

func cmdConfigValidate(path string) {
	_, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func newClient() *client.Client {
	var opts []client.Option
	if os.Getenv("TICKETD_API_CBOR") != "" {
		opts = append(opts, client.WithCBOR())
	}
	return client.New(envOr("TICKETD_API_URL", "http://localhost:3000"), opts...)
}

func parseID(s string) uint64 {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid ticket id %q\n", s)
		os.Exit(1)
	}
	return id
}

func exitOnErr(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func prettyJSON(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println("ticketctl - ticket service CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  health                        Check daemon health")
	fmt.Println("  create <title> <description>  Create a ticket (or --title, --description)")
	fmt.Println("  show <id>                     Show a ticket")
	fmt.Println("  patch <id>                    Update a ticket (--title, --description, --status)")
	fmt.Println("  logs                          Recent daemon logs (--level, --request-id, --limit, --since)")
	fmt.Println("  config validate <path>        Validate config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  TICKETD_API_URL   Daemon URL (default: http://localhost:3000)")
	fmt.Println("  TICKETD_API_CBOR  Set to use CBOR instead of JSON")
}
