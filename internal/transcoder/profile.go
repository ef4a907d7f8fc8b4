package transcoder

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Quality tiers
const (
	QualityHigh    = "high"
	QualityMedium  = "medium"
	QualityLow     = "low"
	DefaultQuality = QualityMedium
)

// Video codecs understood by the burner
const (
	CodecAuto  = "auto"
	CodecX264  = "libx264"
	CodecNVENC = "h264_nvenc"
)

// EncodingProfile holds the encoder settings for one quality tier
type EncodingProfile struct {
	Tier         string `json:"tier"`
	Resolution   string `json:"resolution"`
	CRF          int    `json:"crf"`
	Preset       string `json:"preset"`
	VideoCodec   string `json:"video_codec"`
	AudioCodec   string `json:"audio_codec"`
	AudioBitrate string `json:"audio_bitrate"`
}

// Dimensions returns the target width and height
func (p EncodingProfile) Dimensions() (int, int, error) {
	parts := strings.Split(p.Resolution, "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid resolution %q", p.Resolution)
	}
	width, errW := strconv.Atoi(parts[0])
	height, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid resolution %q", p.Resolution)
	}
	return width, height, nil
}

// Validate checks the resolution and the speed preset
func (p EncodingProfile) Validate() error {
	if _, _, err := p.Dimensions(); err != nil {
		return err
	}
	if !IsValidPreset(p.Preset) {
		return fmt.Errorf("invalid preset %q", p.Preset)
	}
	return nil
}

// ScaleFilter returns the ffmpeg scale filter for the profile
func (p EncodingProfile) ScaleFilter() (string, error) {
	width, height, err := p.Dimensions()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("scale=%d:%d", width, height), nil
}

// EncoderArgs returns the video and audio encoder flags. NVENC has no CRF,
// so the constant-quality value goes to -cq and the preset is mapped onto
// the p1..p7 scale.
func (p EncodingProfile) EncoderArgs() []string {
	args := []string{"-c:v", p.VideoCodec}
	if p.VideoCodec == CodecNVENC {
		args = append(args, "-cq", strconv.Itoa(p.CRF), "-preset", nvencPreset(p.Preset))
	} else {
		args = append(args, "-crf", strconv.Itoa(p.CRF), "-preset", p.Preset)
	}
	args = append(args, "-c:a", p.AudioCodec, "-b:a", p.AudioBitrate)
	return args
}

// CodecConfig holds the codec choices shared by every tier
type CodecConfig struct {
	VideoCodec   string
	AudioCodec   string
	AudioBitrate string
}

// DefaultCodecConfig returns the codecs used when none are configured
func DefaultCodecConfig() CodecConfig {
	return CodecConfig{
		VideoCodec:   CodecX264,
		AudioCodec:   "aac",
		AudioBitrate: "128k",
	}
}

type tierSettings struct {
	resolution string
	crf        int
	preset     string
}

var tiers = map[string]tierSettings{
	QualityHigh:   {resolution: "1920x1080", crf: 18, preset: "slow"},
	QualityMedium: {resolution: "1280x720", crf: 23, preset: "medium"},
	QualityLow:    {resolution: "640x360", crf: 30, preset: "ultrafast"},
}

// x264 preset names, fastest first
var x264Presets = []string{
	"ultrafast", "superfast", "veryfast", "faster", "fast",
	"medium", "slow", "slower", "veryslow",
}

// ProfileTable maps quality tiers to encoding profiles
type ProfileTable struct {
	codecs CodecConfig
}

// NewProfileTable creates a profile table. Empty codec fields fall back to
// the defaults.
func NewProfileTable(codecs CodecConfig) *ProfileTable {
	defaults := DefaultCodecConfig()
	if codecs.VideoCodec == "" || codecs.VideoCodec == CodecAuto {
		codecs.VideoCodec = defaults.VideoCodec
	}
	if codecs.AudioCodec == "" {
		codecs.AudioCodec = defaults.AudioCodec
	}
	if codecs.AudioBitrate == "" {
		codecs.AudioBitrate = defaults.AudioBitrate
	}
	return &ProfileTable{codecs: codecs}
}

// Lookup returns the profile for a tier. Unknown tiers map to medium.
func (t *ProfileTable) Lookup(tier string) EncodingProfile {
	tier = ParseQuality(tier)
	settings := tiers[tier]
	return EncodingProfile{
		Tier:         tier,
		Resolution:   settings.resolution,
		CRF:          settings.crf,
		Preset:       settings.preset,
		VideoCodec:   t.codecs.VideoCodec,
		AudioCodec:   t.codecs.AudioCodec,
		AudioBitrate: t.codecs.AudioBitrate,
	}
}

// All returns every profile ordered from highest to lowest quality
func (t *ProfileTable) All() []EncodingProfile {
	names := Tiers()
	profiles := make([]EncodingProfile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, t.Lookup(name))
	}
	return profiles
}

// VideoCodec returns the codec the table encodes with
func (t *ProfileTable) VideoCodec() string {
	return t.codecs.VideoCodec
}

var defaultTable = NewProfileTable(DefaultCodecConfig())

// LookupProfile returns the default-codec profile for a tier
func LookupProfile(tier string) EncodingProfile {
	return defaultTable.Lookup(tier)
}

// ParseQuality normalizes a tier name, mapping anything unknown to medium
func ParseQuality(tier string) string {
	tier = strings.ToLower(strings.TrimSpace(tier))
	if _, ok := tiers[tier]; ok {
		return tier
	}
	return DefaultQuality
}

// IsKnownQuality reports whether tier names a defined quality tier
func IsKnownQuality(tier string) bool {
	_, ok := tiers[strings.ToLower(strings.TrimSpace(tier))]
	return ok
}

// Tiers returns the tier names ordered from highest to lowest resolution
func Tiers() []string {
	names := make([]string, 0, len(tiers))
	for name := range tiers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return tiers[names[i]].crf < tiers[names[j]].crf
	})
	return names
}

// IsValidPreset reports whether preset is an x264 speed preset
func IsValidPreset(preset string) bool {
	for _, p := range x264Presets {
		if p == preset {
			return true
		}
	}
	return false
}

func nvencPreset(preset string) string {
	switch preset {
	case "ultrafast", "superfast":
		return "p1"
	case "veryfast", "faster":
		return "p2"
	case "fast":
		return "p3"
	case "slow":
		return "p6"
	case "slower", "veryslow":
		return "p7"
	default:
		return "p4"
	}
}
