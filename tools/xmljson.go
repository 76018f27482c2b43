//go:build ignore

// xmljson converts between XML and JSON on the command line, for manual
// inspection of codec output.
// Run with: go run tools/xmljson.go --mode xml2json --file doc.xml
package main

import (
	"flag"
	"fmt"
	"os"

	sdk "github.com/atlas-foundry/xmldict-go-sdk/xmldict"
)

func main() {
	mode := flag.String("mode", "xml2json", "xml2json|json2xml")
	file := flag.String("file", "", "input file")
	pretty := flag.Bool("pretty", false, "pretty-print XML output")
	flag.Parse()
	if *file == "" {
		fmt.Println("missing --file")
		os.Exit(1)
	}
	switch *mode {
	case "xml2json":
		doc, err := sdk.ParseFile(*file)
		if err != nil {
			fail(err)
		}
		out, err := sdk.ToJSONString(doc)
		if err != nil {
			fail(err)
		}
		fmt.Println(out)
	case "json2xml":
		body, err := os.ReadFile(*file)
		if err != nil {
			fail(err)
		}
		value, err := sdk.FromJSON(body)
		if err != nil {
			fail(err)
		}
		root, ok := value.(*sdk.Container)
		if !ok {
			fail(fmt.Errorf("top-level json value must be an object"))
		}
		opts := sdk.DefaultEncodeOptions()
		opts.Pretty = *pretty
		out, err := sdk.EncodeWithOptions(root, opts)
		if err != nil {
			fail(err)
		}
		fmt.Println(out)
	default:
		fmt.Printf("unknown mode %q\n", *mode)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
