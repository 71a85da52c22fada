//go:build ignore

// Package main generates a synthetic corpus for `amanidx index` benchmarks.
// Usage: go run scripts/generate-test-corpus.go -files 1000 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numFiles  = flag.Int("files", 1000, "Number of files to generate")
	docsPer   = flag.Int("docs", 3, "Documents per XML file")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// xmlDocument is one document of index XML, read as is by
// builtin/passthrough.tmpl. Every document of a file carries the file key as
// uri so that reindexing the file replaces all of them.
const xmlDocument = `  <document>
    <field name="uri" store="yes" index="un-tokenised">%s</field>
    <field name="part" store="yes" index="no">%d</field>
    <field name="title" store="yes" index="tokenised">%s</field>
    <field name="topic" store="yes" index="un-tokenised">%s</field>
    <field name="content" store="no" index="tokenised">%s</field>
  </document>
`

var (
	nouns = []string{
		"Scheduler", "Index", "Reader", "Writer", "Queue",
		"Worker", "Template", "Document", "Field", "Searcher",
		"Pool", "Bucket", "Commit", "Snapshot", "Request",
	}
	verbs = []string{
		"commits", "fetches", "parses", "transforms", "queues",
		"books", "releases", "evicts", "replaces", "deletes",
	}
	topics = []string{
		"indexing", "searching", "scheduling", "caching", "parsing",
		"logging", "monitoring", "storage", "templates", "queries",
	}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	for _, sub := range []string{"text", "xml"} {
		if err := os.MkdirAll(filepath.Join(*outputDir, sub), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating directory %s: %v\n", sub, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generating %d files in %s...\n", *numFiles, *outputDir)

	// 70% plain text, 30% index XML
	textFiles := *numFiles * 70 / 100
	generated := 0
	for i := 0; i < *numFiles; i++ {
		var err error
		if i < textFiles {
			err = generateText(rng, i)
		} else {
			err = generateXML(rng, i)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating file %d: %v\n", i, err)
			continue
		}
		generated++
	}

	fmt.Printf("Generated %d files successfully.\n", generated)
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func sentence(rng *rand.Rand) string {
	return fmt.Sprintf("The %s %s the %s during %s.",
		strings.ToLower(pick(rng, nouns)), pick(rng, verbs), strings.ToLower(pick(rng, nouns)), pick(rng, topics))
}

func paragraph(rng *rand.Rand, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = sentence(rng)
	}
	return strings.Join(parts, " ")
}

func generateText(rng *rand.Rand, index int) error {
	var b strings.Builder
	for p := 0; p < 3+rng.Intn(5); p++ {
		b.WriteString(paragraph(rng, 4+rng.Intn(6)))
		b.WriteString("\n\n")
	}
	name := filepath.Join(*outputDir, "text", fmt.Sprintf("%s_%d.txt", strings.ToLower(pick(rng, nouns)), index))
	return os.WriteFile(name, []byte(b.String()), 0644)
}

func generateXML(rng *rand.Rand, index int) error {
	key := fmt.Sprintf("xml/%s_%d.xml", strings.ToLower(pick(rng, nouns)), index)

	var b strings.Builder
	b.WriteString(`<documents version="1.0">` + "\n")
	for d := 0; d < *docsPer; d++ {
		fmt.Fprintf(&b, xmlDocument, key, d, pick(rng, nouns)+" "+pick(rng, verbs), pick(rng, topics), paragraph(rng, 5))
	}
	b.WriteString("</documents>\n")
	return os.WriteFile(filepath.Join(*outputDir, filepath.FromSlash(key)), []byte(b.String()), 0644)
}
