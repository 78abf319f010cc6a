package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dromkey/todolist/internal/cli"
)

func main() {
	def := os.Getenv("TODOLIST_API")
	if def == "" {
		def = cli.DefaultAPI
	}
	apiURL := flag.String("api", def, "base URL of the todolist API")
	flag.Usage = cli.PrintHelp
	flag.Parse()

	code := cli.Run(flag.Args(), cli.Options{API: *apiURL})
	if code != 0 {
		fmt.Fprintln(os.Stderr)
	}
	os.Exit(code)
}
