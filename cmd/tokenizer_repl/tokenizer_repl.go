package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/wbrown/bpe_prep"
)

// A REPL for encoding text with a learned vocabulary.

func main() {
	vocabPath := flag.String("vocab", "",
		"vocabulary artifact (<corpus>.bpe.<size>)")
	tokenizerOpt := flag.String("tokenizer", bpe_prep.TokenizerWhitespace,
		"The tokenizer to use [whitespace, regex, prose].")
	flag.Parse()

	if *vocabPath == "" {
		flag.Usage()
		log.Fatal("Must provide -vocab")
	}
	vocab, err := bpe_prep.ReadVocabulary(*vocabPath)
	if err != nil {
		log.Fatal(err)
	}
	tokenizer, err := bpe_prep.NewTokenizer(*tokenizerOpt)
	if err != nil {
		log.Fatal(err)
	}
	tokenMap := bpe_prep.BuildTokenMap(vocab)
	encoder := bpe_prep.NewDocumentEncoder(vocab, tokenMap, tokenizer, 0)

	reader := bufio.NewReader(os.Stdin)
	// Provide a REPL
	for {
		fmt.Print(">>> ")
		input, err := reader.ReadString('\n')
		if err != nil {
			log.Fatal(err)
		}
		input = strings.TrimSuffix(input, "\n")

		tokens := encoder.Encode(input)
		fmt.Printf("%v\n", tokens)
		for _, symbol := range encoder.Decode(tokens) {
			fmt.Printf("|%s", symbol)
		}
		fmt.Printf("\n")
	}
}
