// install writes .env.example and the SQL migrations into a deployment directory.
package main

import (
	"flag"
	"fmt"
	"os"

	"seshlock/internal/install"
)

func main() {
	dir := flag.String("dir", ".", "Target directory")
	force := flag.Bool("force", false, "Overwrite existing files")
	flag.Parse()

	res, err := install.Run(*dir, *force)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for _, f := range res.Written {
		fmt.Println("create", f)
	}
	for _, f := range res.Skipped {
		fmt.Println("skip  ", f)
	}
}
