package main

import (
	"fmt"
	"io"

	"github.com/kurobon/ortmerge/internal/ort"
)

func writeResult(w io.Writer, res *ort.Result) {
	fmt.Fprintln(w, res.Tree)
	if res.Clean {
		return
	}

	for _, c := range res.Conflicts {
		for stage, v := range c.Stages {
			if v.IsNull() || v.IsDir() {
				continue
			}
			// Index stages are 1-based: base is stage 1.
			fmt.Fprintf(w, "%06o %s %d\t%s\n", uint32(v.Mode), v.Hash, stage+1, c.Pathnames[stage])
		}
	}

	fmt.Fprintln(w)
	for _, c := range res.Conflicts {
		fmt.Fprintln(w, c.Message)
	}
}
