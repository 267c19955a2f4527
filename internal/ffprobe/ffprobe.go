// Package ffprobe provides functions for extracting media information using ffprobe.
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	cerrors "github.com/five82/clarify/internal/errors"
)

// MediaInfo contains what the transcode pipeline needs about a source.
type MediaInfo struct {
	DurationSecs float64
	SizeBytes    int64
	Width        int64 // display width, after rotation
	Height       int64 // display height, after rotation
	Rotation     int
	VideoCodec   string
	FrameRate    float64
	Audio        []AudioStreamInfo
}

// VideoProperties contains video stream properties used for output validation.
type VideoProperties struct {
	Width        uint32
	Height       uint32
	DurationSecs float64
	CodecName    string
	VideoStreams int
}

// AudioStreamInfo contains information about an audio stream.
type AudioStreamInfo struct {
	Index      int
	CodecName  string
	Profile    string
	Channels   uint32
	SampleRate int
	BitRate    int64

	// StartOffsetSecs is how far the stream starts after the container does.
	StartOffsetSecs float64
}

// ffprobeOutput represents the JSON output from ffprobe.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration  string `json:"duration"`
	Size      string `json:"size"`
	StartTime string `json:"start_time"`
}

type ffprobeStream struct {
	CodecType    string            `json:"codec_type"`
	CodecName    string            `json:"codec_name"`
	Profile      string            `json:"profile"`
	Width        int64             `json:"width"`
	Height       int64             `json:"height"`
	Channels     int               `json:"channels"`
	SampleRate   string            `json:"sample_rate"`
	BitRate      string            `json:"bit_rate"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	Duration     string            `json:"duration"`
	StartTime    string            `json:"start_time"`
	Tags         map[string]string `json:"tags"`
	SideDataList []sideData        `json:"side_data_list"`
	Disposition  struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

type sideData struct {
	SideDataType string  `json:"side_data_type"`
	Rotation     float64 `json:"rotation"`
}

// runFFprobe executes ffprobe and returns the parsed output.
func runFFprobe(ctx context.Context, inputPath string) (*ffprobeOutput, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return nil, cerrors.WrapExecError("ffprobe", err, stderr.String())
	}
	return parseFFprobeOutput(output)
}

// parseFFprobeOutput decodes ffprobe's JSON.
func parseFFprobeOutput(data []byte) (*ffprobeOutput, error) {
	var result ffprobeOutput
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, cerrors.NewJSONParseError("failed to parse ffprobe output", err)
	}
	return &result, nil
}

// GetMediaInfo probes a source file.
func GetMediaInfo(ctx context.Context, inputPath string) (*MediaInfo, error) {
	probe, err := runFFprobe(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	return extractMediaInfo(probe, inputPath)
}

func extractMediaInfo(probe *ffprobeOutput, inputPath string) (*MediaInfo, error) {
	video := firstVideoStream(probe)
	if video == nil {
		return nil, cerrors.NewVideoInfoError(fmt.Sprintf("no video stream found in %s", inputPath))
	}

	info := &MediaInfo{
		DurationSecs: parseDuration(probe, video),
		Width:        video.Width,
		Height:       video.Height,
		Rotation:     rotation(video),
		VideoCodec:   video.CodecName,
		FrameRate:    parseRate(video.AvgFrameRate),
		Audio:        extractAudioStreamInfo(probe),
	}
	if probe.Format.Size != "" {
		if size, err := strconv.ParseInt(probe.Format.Size, 10, 64); err == nil {
			info.SizeBytes = size
		}
	}

	// decoders apply the display matrix, so frames arrive in display orientation
	if info.Rotation == 90 || info.Rotation == 270 {
		info.Width, info.Height = info.Height, info.Width
	}
	return info, nil
}

// GetVideoProperties returns properties of the first video stream.
func GetVideoProperties(ctx context.Context, inputPath string) (*VideoProperties, error) {
	probe, err := runFFprobe(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	return extractVideoProperties(probe, inputPath)
}

func extractVideoProperties(probe *ffprobeOutput, inputPath string) (*VideoProperties, error) {
	video := firstVideoStream(probe)
	if video == nil {
		return nil, cerrors.NewVideoInfoError(fmt.Sprintf("no video stream found in %s", inputPath))
	}
	if video.Width <= 0 || video.Height <= 0 {
		return nil, cerrors.NewVideoInfoError(fmt.Sprintf("invalid dimensions in %s: %dx%d", inputPath, video.Width, video.Height))
	}
	return &VideoProperties{
		Width:        uint32(video.Width),
		Height:       uint32(video.Height),
		DurationSecs: parseDuration(probe, video),
		CodecName:    video.CodecName,
		VideoStreams: countVideoStreams(probe),
	}, nil
}

func countVideoStreams(probe *ffprobeOutput) int {
	n := 0
	for _, s := range probe.Streams {
		if s.CodecType == "video" && s.Disposition.AttachedPic == 0 {
			n++
		}
	}
	return n
}

// GetAudioStreamInfo returns detailed audio stream information.
func GetAudioStreamInfo(ctx context.Context, inputPath string) ([]AudioStreamInfo, error) {
	probe, err := runFFprobe(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	return extractAudioStreamInfo(probe), nil
}

func extractAudioStreamInfo(probe *ffprobeOutput) []AudioStreamInfo {
	var streams []AudioStreamInfo
	audioIndex := 0
	for _, stream := range probe.Streams {
		if stream.CodecType != "audio" || stream.Channels <= 0 {
			continue
		}
		info := AudioStreamInfo{
			Index:     audioIndex,
			CodecName: stream.CodecName,
			Profile:   stream.Profile,
			Channels:  uint32(stream.Channels),
		}
		if sr, err := strconv.Atoi(stream.SampleRate); err == nil {
			info.SampleRate = sr
		}
		if br, err := strconv.ParseInt(stream.BitRate, 10, 64); err == nil {
			info.BitRate = br
		}
		info.StartOffsetSecs = startOffset(probe.Format.StartTime, stream.StartTime)
		streams = append(streams, info)
		audioIndex++
	}
	return streams
}

// startOffset is stream start minus container start, never negative.
func startOffset(container, stream string) float64 {
	s, err := strconv.ParseFloat(stream, 64)
	if err != nil {
		return 0
	}
	c, err := strconv.ParseFloat(container, 64)
	if err != nil {
		c = 0
	}
	if s <= c {
		return 0
	}
	return s - c
}

func firstVideoStream(probe *ffprobeOutput) *ffprobeStream {
	for i := range probe.Streams {
		s := &probe.Streams[i]
		if s.CodecType == "video" && s.Disposition.AttachedPic == 0 {
			return s
		}
	}
	return nil
}

func parseDuration(probe *ffprobeOutput, video *ffprobeStream) float64 {
	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil && d > 0 {
		return d
	}
	if d, err := strconv.ParseFloat(video.Duration, 64); err == nil && d > 0 {
		return d
	}
	return 0
}

// rotation returns the clockwise display rotation normalized to 0, 90, 180 or 270.
func rotation(s *ffprobeStream) int {
	deg := 0
	for _, sd := range s.SideDataList {
		if sd.SideDataType == "Display Matrix" {
			deg = int(sd.Rotation)
			break
		}
	}
	if deg == 0 {
		if r, err := strconv.Atoi(s.Tags["rotate"]); err == nil {
			deg = r
		}
	}
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

// parseRate parses ffprobe's "num/den" rate strings.
func parseRate(r string) float64 {
	var num, den float64
	if _, err := fmt.Sscanf(r, "%f/%f", &num, &den); err != nil || den == 0 {
		return 0
	}
	return num / den
}
