// juicevox-admin backs up and restores the persistent state of a juicevox
// data directory, and hashes console passwords.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/zond/juicevox"
	"github.com/zond/juicevox/console"
	"github.com/zond/juicevox/mapdb"
	"github.com/zond/juicevox/storage"
	"golang.org/x/term"

	goccy "github.com/goccy/go-json"
)

type block struct {
	X, Y, Z int16
	// Data is the serialized block, base64 encoded.
	Data string
}

type data struct {
	Objects []storage.StaticObject
	Blocks  []block
}

func main() {
	dir := flag.String("dir", "data", "Where the database is saved.")
	dataPath := flag.String("data", "", "Path of the JSON file to back up to or restore from.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  backup         Write objects and blocks from -dir to -data\n")
		fmt.Fprintf(os.Stderr, "  restore        Replace objects and blocks in -dir with -data\n")
		fmt.Fprintf(os.Stderr, "  hash-password  Read a password from the terminal and print its hash\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	ctx := juicevox.MakeMainContext(context.Background())

	var err error
	switch flag.Arg(0) {
	case "backup":
		err = withStore(ctx, *dir, *dataPath, backup)
	case "restore":
		err = withStore(ctx, *dir, *dataPath, restore)
	case "hash-password":
		err = hashPassword()
	default:
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%v\n%s", err, juicevox.StackTrace(err))
	}
}

func withStore(ctx context.Context, dir, dataPath string, f func(context.Context, *storage.Storage, string) error) error {
	if dataPath == "" {
		return fmt.Errorf("-data is required")
	}
	store, err := storage.New(ctx, dir)
	if err != nil {
		return err
	}
	defer store.Close()
	return f(ctx, store, dataPath)
}

func backup(ctx context.Context, store *storage.Storage, dataPath string) error {
	d := &data{Blocks: []block{}}
	var err error
	if d.Objects, err = store.LoadObjects(ctx); err != nil {
		return err
	}
	if err := store.EachBlock(func(pos mapdb.BlockPos, b []byte) error {
		d.Blocks = append(d.Blocks, block{X: pos.X, Y: pos.Y, Z: pos.Z, Data: base64.StdEncoding.EncodeToString(b)})
		return nil
	}); err != nil {
		return err
	}
	b, err := goccy.MarshalIndent(d, "", "  ")
	if err != nil {
		return juicevox.WithStack(err)
	}
	if err := os.WriteFile(dataPath, b, 0600); err != nil {
		return juicevox.WithStack(err)
	}
	log.Printf("Wrote %d objects and %d blocks to %q", len(d.Objects), len(d.Blocks), dataPath)
	return nil
}

func restore(ctx context.Context, store *storage.Storage, dataPath string) error {
	f, err := os.Open(dataPath)
	if err != nil {
		return juicevox.WithStack(err)
	}
	defer f.Close()

	d := &data{}
	if err := goccy.NewDecoder(f).Decode(d); err != nil {
		return juicevox.WithStack(err)
	}
	if err := store.SaveObjects(ctx, d.Objects); err != nil {
		return err
	}
	for _, blk := range d.Blocks {
		b, err := base64.StdEncoding.DecodeString(blk.Data)
		if err != nil {
			return juicevox.WithStack(err)
		}
		pos := mapdb.BlockPos{X: blk.X, Y: blk.Y, Z: blk.Z}
		if _, err := mapdb.DeserializeBlock(pos, b); err != nil {
			return fmt.Errorf("block %v: %w", pos, err)
		}
		if err := store.SaveBlock(pos, b); err != nil {
			return err
		}
	}
	log.Printf("Restored %d objects and %d blocks from %q", len(d.Objects), len(d.Blocks), dataPath)
	return nil
}

func hashPassword() error {
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return juicevox.WithStack(err)
	}
	hash, err := console.NewPasswordHash(string(password))
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
