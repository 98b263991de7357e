package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/wbrown/bpe_prep"
	"github.com/wbrown/bpe_prep/resources"
)

func main() {
	inputFile := flag.String("input", "",
		"dataset block to decode")
	tokenMapFile := flag.String("tokenmap", "",
		"token map written next to the dataset")
	outputFile := flag.String("output", "detokenized.txt",
		"output file to write one decoded document per line")
	flag.Parse()

	if *inputFile == "" {
		flag.Usage()
		log.Fatal("Must provide -input")
	}
	if *tokenMapFile == "" {
		flag.Usage()
		log.Fatal("Must provide -tokenmap")
	}
	if *outputFile == "" {
		flag.Usage()
		log.Fatal("Must provide -output")
	}

	// check if input file exists
	if _, err := os.Stat(*inputFile); os.IsNotExist(err) {
		log.Fatal("Input file does not exist")
	}

	tokenMap, err := bpe_prep.ReadTokenMap(*tokenMapFile)
	if err != nil {
		log.Fatal(err)
	}
	docs, err := bpe_prep.ReadBlock(*inputFile)
	if err != nil {
		log.Fatal(err)
	}

	out, err := resources.CreateAtomic(*outputFile)
	if err != nil {
		log.Fatal(err)
	}
	symbols := tokenMap.Invert()
	for _, doc := range docs {
		// Units were space separated in the resampled corpus.
		out.WriteString(strings.Join(
			bpe_prep.DecodeTokens(symbols, doc.Tokens), " "))
		out.WriteByte('\n')
	}
	if err := out.Commit(); err != nil {
		log.Fatal(err)
	}
	log.Printf("decoded %d documents to %s", len(docs), *outputFile)
}
