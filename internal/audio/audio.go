// Package audio copies a compressed audio track into a muxer unchanged.
package audio

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/logging"
	"github.com/five82/clarify/internal/media"
)

// Result counts what happened to each sample read from the source.
type Result struct {
	Copied  int
	Skipped int
}

// Copy moves every sample from src to track on sink with its original
// timestamp and flags. Rejected writes are logged and skipped. A read error
// stops the copy and is returned together with the counts so far.
func Copy(ctx context.Context, src media.AudioSource, sink media.SampleWriter, track int) (Result, error) {
	var res Result
	log := logging.WithFields(logrus.Fields{
		"function": "audio.Copy",
		"track":    track,
	})

	for {
		if ctx.Err() != nil {
			return res, cerrors.NewCancelledError()
		}

		sample, err := src.ReadSample()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}

		info := media.SampleInfo{TimestampUs: sample.TimestampUs, Flags: sample.Flags}
		if err := sink.WriteSample(track, sample.Data, info); err != nil {
			res.Skipped++
			log.WithField("timestamp", sample.TimestampUs).Warnf("audio sample rejected: %v", err)
			continue
		}
		res.Copied++
	}

	log.WithFields(logrus.Fields{
		"copied":  res.Copied,
		"skipped": res.Skipped,
	}).Debug("audio passthrough finished")
	return res, nil
}
