// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Command mediameta prints the metadata decoded from a JPEG, TIFF or HEIF file.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/bep/mediameta"
	"github.com/kr/pretty"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("mediameta: ")

	var (
		limit   uint
		showXMP bool
	)
	flag.UintVar(&limit, "limit", 0, "maximum number of EXIF tags to read, 0 for the default")
	flag.BoolVar(&showXMP, "xmp", false, "also print the decoded XMP properties")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-limit n] [-xmp] file\n", os.Args[0])
		os.Exit(2)
	}

	b, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	res, err := mediameta.Decode(mediameta.Options{
		R:            bytes.NewReader(b),
		Warnf:        log.Printf,
		LimitNumTags: uint32(limit),
	})
	if err != nil {
		log.Fatal(err)
	}

	pretty.Println(res)

	if res.EXIF != nil {
		if lat, long, found := res.EXIF.LatLong(); found {
			fmt.Printf("GPS: %f, %f\n", lat, long)
		}
	}

	if showXMP && res.XMP != nil {
		props, err := res.XMP.Properties()
		if err != nil {
			log.Fatal(err)
		}
		for _, p := range props {
			fmt.Printf("%s %s: %v\n", p.Namespace, p.Name, p.Value)
		}
	}
}
