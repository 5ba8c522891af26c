// Command fileharbor is the FileHarbor client CLI: it drives pkg/client's
// transfer engine to put, get, list, and manage files against a library on
// a running fileharbordctl server (spec §4.9 "Client transfer engine").
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/fileharbor/fileharbor/internal/logger"
	"github.com/fileharbor/fileharbor/pkg/client"
	"github.com/fileharbor/fileharbor/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	configPath := os.Getenv("FILEHARBOR_CLIENT_CONFIG")
	args := os.Args[2:]
	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	fs.StringVar(&configPath, "config", configPath, "path to client configuration file")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	cfg, err := config.LoadClient(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load client configuration: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	rest := fs.Args()
	if err := dispatch(ctx, cfg, os.Args[1], rest); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, cfg *config.ClientTransferConfig, cmd string, args []string) error {
	switch cmd {
	case "put":
		return runPut(ctx, cfg, args)
	case "get":
		return runGet(ctx, cfg, args)
	case "ls":
		return runList(ctx, cfg, args)
	case "rm":
		return runDelete(ctx, cfg, args)
	case "mv":
		return runRename(ctx, cfg, args)
	case "mkdir":
		return runMkdir(ctx, cfg, args)
	case "rmdir":
		return runRmdir(ctx, cfg, args)
	case "stat":
		return runStat(ctx, cfg, args)
	case "manifest":
		return runManifest(ctx, cfg, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: fileharbor <command> [args]

commands:
  put <local> <remote>     upload a local file to the library
  get <remote> <local>     download a library file locally
  ls <path> [-r]           list directory entries
  rm <path>                delete a file
  mv <from> <to>           rename a file within the library
  mkdir <path>             create a directory
  rmdir <path> [-r]        remove a directory
  stat <path>              print size, digest, and mtime
  manifest <root>          recursively list files with digests`)
}

func runPut(ctx context.Context, cfg *config.ClientTransferConfig, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: put <local> <remote>")
	}
	local, remote := args[0], args[1]

	start := time.Now()
	err := client.RetryUpload(ctx, cfg, client.UploadOptions{
		LocalPath:  local,
		RemotePath: remote,
		Progress:   printProgress(start),
	})
	fmt.Println()
	return err
}

func runGet(ctx context.Context, cfg *config.ClientTransferConfig, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: get <remote> <local>")
	}
	remote, local := args[0], args[1]

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}

	start := time.Now()
	err := client.RetryDownload(ctx, cfg, client.DownloadOptions{
		RemotePath: remote,
		LocalPath:  local,
		Progress:   printProgress(start),
	})
	fmt.Println()
	return err
}

func printProgress(start time.Time) client.ProgressFunc {
	return func(ev client.Event) {
		fmt.Printf("\r%s %s: %s/%s", ev.Operation, ev.Path,
			humanize.Bytes(ev.BytesDone), humanize.Bytes(ev.TotalBytes))
	}
}

func runList(ctx context.Context, cfg *config.ClientTransferConfig, args []string) error {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	recursive := fs.Bool("r", false, "list recursively")
	if len(args) == 0 {
		return fmt.Errorf("usage: ls <path> [-r]")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("usage: ls <path> [-r]")
	}

	c, err := client.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	entries, err := c.List(ctx, args[0], *recursive)
	if err != nil {
		return err
	}
	for _, e := range entries {
		kind := "file"
		if e.IsDir {
			kind = "dir "
		}
		fmt.Printf("%s  %10s  %s  %s\n", kind, humanize.Bytes(e.Size), e.ModTime.Format(time.RFC3339), e.Path)
	}
	return nil
}

func runManifest(ctx context.Context, cfg *config.ClientTransferConfig, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: manifest <root>")
	}
	c, err := client.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	entries, err := c.Manifest(ctx, args[0])
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s  %10s  %s  %s\n", e.Digest, humanize.Bytes(e.Size), e.ModTime.Format(time.RFC3339), e.Path)
	}
	return nil
}

func runDelete(ctx context.Context, cfg *config.ClientTransferConfig, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: rm <path>")
	}
	c, err := client.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Delete(ctx, args[0])
}

func runRename(ctx context.Context, cfg *config.ClientTransferConfig, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: mv <from> <to>")
	}
	c, err := client.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Rename(ctx, args[0], args[1])
}

func runMkdir(ctx context.Context, cfg *config.ClientTransferConfig, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: mkdir <path>")
	}
	c, err := client.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Mkdir(ctx, args[0])
}

func runRmdir(ctx context.Context, cfg *config.ClientTransferConfig, args []string) error {
	fs := flag.NewFlagSet("rmdir", flag.ExitOnError)
	recursive := fs.Bool("r", false, "remove recursively")
	if len(args) == 0 {
		return fmt.Errorf("usage: rmdir <path> [-r]")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("usage: rmdir <path> [-r]")
	}
	c, err := client.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Rmdir(ctx, args[0], *recursive)
}

func runStat(ctx context.Context, cfg *config.ClientTransferConfig, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: stat <path>")
	}
	c, err := client.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	info, err := c.Stat(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("size:    %s\ndigest:  %s\nmtime:   %s\n", humanize.Bytes(info.Size), info.Digest, info.ModTime.Format(time.RFC3339))
	return nil
}
