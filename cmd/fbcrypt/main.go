package main

import (
	"flag"
	"fmt"
	"os"
)

const productName = "fbcrypt"
const cliBanner = productName + " - FBC substitution cipher"

func init() {
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintln(out, cliBanner)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Usage: fbcrypt <command> [flags]")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Commands:")
		fmt.Fprintln(out, "  encrypt   encrypt a file (-f IN [-o OUT] [-k KEY] [-r RUNS] [-t THREADS] [-armor hex|base64])")
		fmt.Fprintln(out, "  decrypt   decrypt a file (-f IN [-o OUT] [-k KEY] [-r RUNS] [-t THREADS] [-armor hex|base64|auto])")
		fmt.Fprintln(out, "  keygen    write a new key file (-o PATH [-hex] [-force])")
		fmt.Fprintln(out, "  config    print or migrate the resolved configuration")
		fmt.Fprintln(out, "  ops       list the registered operations")
		fmt.Fprintln(out, "  version   print the version")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Run 'fbcrypt <command> -h' for command flags.")
	}
}

func main() {
	flag.Parse()
	if maybePrintVersion() {
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	os.Exit(dispatch(args))
}

func dispatch(args []string) int {
	switch args[0] {
	case "encrypt", "enc", "e":
		return runEncrypt(args[1:])
	case "decrypt", "dec", "d":
		return runDecrypt(args[1:])
	case "keygen":
		return runKeygen(args[1:])
	case "config":
		return runConfig(args[1:])
	case "ops":
		return runOps(args[1:])
	case "version":
		return runVersion(args[1:])
	case "help":
		flag.Usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		flag.Usage()
		return 2
	}
}
