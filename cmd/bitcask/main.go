// Command bitcask is a minimal example harness for the core package: get,
// set, and delete a single key against a database directory.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/misakimei123/bitcask/core"
)

func main() {
	dir := flag.String("dir", "", "database directory")
	flag.Parse()

	if *dir == "" || flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: bitcask -dir=<path> [get <key>|set <key> <value>|delete <key>|keys]")
		os.Exit(2)
	}

	db, err := core.Open(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bitcask:", err)
		os.Exit(1)
	}
	defer db.Close()

	args := flag.Args()
	switch args[0] {
	case "get":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: get <key>")
			os.Exit(2)
		}
		val, err := db.Get([]byte(args[1]))
		if err != nil {
			fmt.Fprintln(os.Stderr, "bitcask:", err)
			os.Exit(1)
		}
		fmt.Println(string(val))

	case "set":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: set <key> <value>")
			os.Exit(2)
		}
		if err := db.Put([]byte(args[1]), []byte(args[2])); err != nil {
			fmt.Fprintln(os.Stderr, "bitcask:", err)
			os.Exit(1)
		}

	case "delete":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: delete <key>")
			os.Exit(2)
		}
		if err := db.Delete([]byte(args[1])); err != nil {
			fmt.Fprintln(os.Stderr, "bitcask:", err)
			os.Exit(1)
		}

	case "keys":
		for _, k := range db.ListKeys() {
			fmt.Println(string(k))
		}

	default:
		fmt.Fprintf(os.Stderr, "bitcask: unknown command %q\n", args[0])
		os.Exit(2)
	}
}
