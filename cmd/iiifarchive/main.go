package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/iiif-archive/iiifarchive/types"
)

func main() {
	rootCmd, _ := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		// provide tips for common errors
		switch {
		case errors.Is(err, types.ErrTransientFetch):
			fmt.Fprintf(os.Stderr, "The server is busy, rerun the command to resume, or raise --retry-delay\n")
		case errors.Is(err, types.ErrUnsupportedCompositeAsset):
			fmt.Fprintf(os.Stderr, "Canvases with more than one image cannot be archived\n")
		}
		os.Exit(1)
	}
	os.Exit(0)
}
