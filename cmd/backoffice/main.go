// Command backoffice is the command-line client of the restaurant back-office
// API. Every resource gets a command tree (list, get, create, update, delete)
// driven through the same screen, cache and mutation layer a UI would use.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tbourn/restaurant-backoffice/internal/resource"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout, stderr)
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		printError(stderr, err)
		return 1
	}
	return 0
}

// printError writes err and, for validation failures, one line per field.
func printError(w io.Writer, err error) {
	fmt.Fprintln(w, "error:", err)
	fields := resource.FieldErrors(err)
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(w, "  %s: %s\n", k, fields[k])
	}
}
