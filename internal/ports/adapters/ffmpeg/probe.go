package ffmpeg

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/forPelevin/sopgen/internal/types"
)

type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	NBFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
}

func parseProbe(b []byte) (types.VideoInfo, error) {
	var res probeResult
	if err := json.Unmarshal(b, &res); err != nil {
		return types.VideoInfo{}, fmt.Errorf("parse ffprobe json: %w", err)
	}

	var vs *probeStream
	for i := range res.Streams {
		if res.Streams[i].CodecType == "video" {
			vs = &res.Streams[i]
			break
		}
	}
	if vs == nil {
		return types.VideoInfo{}, errors.New("no video stream")
	}

	fps := parseRate(vs.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(vs.RFrameRate)
	}
	duration := parseFloat(vs.Duration)
	if duration <= 0 {
		duration = parseFloat(res.Format.Duration)
	}

	frames, _ := strconv.Atoi(strings.TrimSpace(vs.NBFrames))
	if frames <= 0 && fps > 0 && duration > 0 {
		frames = int(math.Floor(duration * fps))
	}
	return types.VideoInfo{
		Duration:   duration,
		FPS:        fps,
		FrameCount: frames,
		Width:      vs.Width,
		Height:     vs.Height,
	}, nil
}

// parseRate reads ffprobe rationals such as "30000/1001".
func parseRate(s string) float64 {
	s = strings.TrimSpace(s)
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
