// cmd/firidx/main.go
//
// firidx CLI - interactive shell over a disk-resident B+ tree index.
//
// Usage:
//
//	firidx [flags] [index-file]
//
// If no index file is specified, the index lives in memory for the
// session. Use .help for available commands.
package main

import (
	"flag"
	"fmt"
	"os"

	"firidx/pkg/blockio"
	"firidx/pkg/btree"
	"firidx/pkg/cli"
)

func main() {
	var (
		create    = flag.Bool("create", false, "format the index file instead of opening it")
		keySize   = flag.Uint("keysize", 8, "key width in bytes (create only)")
		valueSize = flag.Uint("valuesize", 8, "value width in bytes (create only)")
		blockSize = flag.Int("blocksize", 4096, "block size in bytes")
		numBlocks = flag.Int("blocks", 1024, "total number of blocks")
		cacheSize = flag.Int("cache", 256, "blocks held in the read cache")
	)
	flag.Parse()

	var base blockio.BlockStore
	fresh := *create
	if path := flag.Arg(0); path != "" {
		_, statErr := os.Stat(path)
		fresh = fresh || os.IsNotExist(statErr)
		fs, err := blockio.OpenFileStore(path, *blockSize, *numBlocks)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening index file: %v\n", err)
			os.Exit(1)
		}
		base = fs
	} else {
		base = blockio.NewMemStore(*blockSize, *numBlocks)
		fresh = true
	}

	store := blockio.NewCacheStore(base, *cacheSize)
	defer store.Close()

	var ix *btree.Index
	var err error
	if fresh {
		ix, err = btree.Create(store, uint32(*keySize), uint32(*valueSize))
	} else {
		ix, err = btree.Open(store)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error attaching index: %v\n", err)
		os.Exit(1)
	}
	defer ix.Detach()

	repl := cli.NewREPL(ix, os.Stdin, os.Stdout, os.Stderr)
	repl.Run()
}
