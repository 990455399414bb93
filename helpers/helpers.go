package helpers

import (
	// Go Internal Packages
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// PrintStruct prints a given struct to stdout in pretty format with indent
func PrintStruct(v any) {
	FprintStruct(os.Stdout, v)
}

// FprintStruct writes v as indented JSON followed by a newline.
func FprintStruct(w io.Writer, v any) {
	res, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "%+v\n", v)
		return
	}
	fmt.Fprintln(w, string(res))
}
