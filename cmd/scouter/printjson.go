package main

import (
	"encoding/json"
	"fmt"
	"io"
)

func printJSON(w io.Writer, message interface{}) {
	b, err := json.MarshalIndent(message, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "error: %s\n", err)
		return
	}
	fmt.Fprintf(w, "%s\n", b)
}
