package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/RowanDark/fbcrypt/internal/cipher"
)

func runOps(args []string) int {
	fs := flag.NewFlagSet("ops", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	opType := fs.String("type", "", "only list operations of this type (encode, decode, encrypt, decrypt)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ops := cipher.ListOperations()
	if *opType != "" {
		ops = cipher.ListOperationsByType(cipher.OperationType(*opType))
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tINVERSE\tDESCRIPTION")
	for _, op := range ops {
		inverse := "-"
		if rev, ok := op.Reverse(); ok {
			inverse = rev.Name()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", op.Name(), op.Type(), inverse, op.Description())
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}
