package main

import (
	"flag"
	"log"
)

func main() {
	describe := flag.Bool("describe", false, "print the dependency graph (dot) and exit")
	flag.Parse()

	startWithDig(*describe)
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
