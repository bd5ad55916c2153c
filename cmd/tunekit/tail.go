package main

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const resultFileName = "result.json"

func newTailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tail trial-dir",
		Short: "follow a trial's result log as it is written",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return tailResults(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

// tailResults prints the trial's result log and then follows appends until the context
// is canceled. The log may not exist yet; it is picked up on creation.
func tailResults(ctx context.Context, out io.Writer, dir string) error {
	path := dir
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		path = filepath.Join(dir, resultFileName)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating file watcher")
	}
	defer watcher.Close()
	// Watch the directory, not the file: the file may not exist yet, and some editors
	// and atomic writers replace it rather than appending.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrap(err, "watching trial directory")
	}

	offset, err := copyFrom(out, path, 0)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if offset, err = copyFrom(out, path, offset); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return errors.Wrap(err, "watching trial directory")
		}
	}
}

// copyFrom writes the file's content past offset to out and returns the new offset. A
// missing file, or one truncated below the offset, restarts from the beginning.
func copyFrom(out io.Writer, path string, offset int64) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return offset, errors.Wrap(err, "opening result log")
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() < offset {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, errors.Wrap(err, "seeking result log")
	}
	n, err := io.Copy(out, f)
	if err != nil {
		return offset + n, errors.Wrap(err, "reading result log")
	}
	return offset + n, nil
}
