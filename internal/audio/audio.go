// Package audio handles MP3 segment assembly and duration measurement.
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tcolgate/mp3"
)

// Concat appends the named MP3 segment files to w in the order given.
// MP3 is a frame stream, so concatenation at file granularity produces a
// valid playable file as long as the segments share an encoding profile.
func Concat(w io.Writer, paths []string) error {
	if len(paths) == 0 {
		return errors.New("no segments to concatenate")
	}
	for i, path := range paths {
		if err := copySegment(w, path); err != nil {
			return fmt.Errorf("concat segment %d (%s): %w", i, path, err)
		}
	}
	return nil
}

func copySegment(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Duration walks every frame of an MP3 stream and sums the frame
// durations. Undecodable leading or trailing junk ends the walk rather
// than failing it; whatever was decoded so far is returned.
func Duration(r io.Reader) (time.Duration, error) {
	var (
		decoder = mp3.NewDecoder(r)
		frame   mp3.Frame
		skipped int
		total   time.Duration
		decoded bool
	)
	for {
		if err := decoder.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) || decoded {
				break
			}
			return 0, fmt.Errorf("decode mp3 frame: %w", err)
		}
		decoded = true
		total += frame.Duration()
	}
	if !decoded {
		return 0, errors.New("no mp3 frames found")
	}
	return total, nil
}

// FileDuration measures the duration of an MP3 file on disk.
func FileDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Duration(f)
}
