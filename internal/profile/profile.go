// Package profile loads the recording profile: a layered default-then-
// override configuration merge, read via viper instead of hand
// re-implementing the .ini grammar spec.md §1 explicitly puts out of scope.
package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/viper"
)

// Profile mirrors the key names spec.md §6 lists for the .ini profile,
// read here as TOML through viper's layered merge instead.
type Profile struct {
	VideoFPS int `mapstructure:"video_fps"`

	MosampleEnabled bool    `mapstructure:"mosample_enabled"`
	MosampleMult    int     `mapstructure:"mosample_mult"`
	MosampleExposure float64 `mapstructure:"mosample_exposure"`

	VideoPixelFormat string `mapstructure:"video_pixel_format"`

	VideoEncoder    string `mapstructure:"video_encoder"`
	VideoX264CRF    int    `mapstructure:"video_x264_crf"`
	VideoX264Preset string `mapstructure:"video_x264_preset"`
	VideoX264Intra  bool   `mapstructure:"video_x264_intra"`
	VideoDNxHRProfile string `mapstructure:"video_dnxhr_profile"`

	AudioEnabled bool   `mapstructure:"audio_enabled"`
	AudioEncoder string `mapstructure:"audio_encoder"`

	OverlayEnabled bool `mapstructure:"overlay_enabled"`
}

// defaults mirror the base "default" profile always loaded first, per
// spec.md §6: "The base 'default' profile is always loaded first and then
// overlaid by the caller-specified profile."
func defaults() Profile {
	return Profile{
		VideoFPS:          60,
		MosampleEnabled:   false,
		MosampleMult:      1,
		MosampleExposure:  1.0,
		VideoPixelFormat:  "yuv420_601",
		VideoEncoder:      "libx264",
		VideoX264CRF:      23,
		VideoX264Preset:   "medium",
		VideoX264Intra:    false,
		VideoDNxHRProfile: "dnxhr_hq",
		AudioEnabled:      true,
		AudioEncoder:      "aac",
		OverlayEnabled:    false,
	}
}

// Load reads "<profilesDir>/default.toml" then overlays
// "<profilesDir>/<name>.toml" on top of it, returning the merged result.
// name may be "default" itself, in which case the overlay is a no-op.
func Load(profilesDir, name string) (Profile, error) {
	base := viper.New()
	base.SetConfigType("toml")
	applyDefaults(base)

	defaultPath := filepath.Join(profilesDir, "default.toml")
	base.SetConfigFile(defaultPath)
	if err := base.MergeInConfig(); err != nil {
		if !isNotFound(err) {
			return Profile{}, fmt.Errorf("profile: reading %s: %w", defaultPath, err)
		}
	}

	if name != "" && name != "default" {
		overlayPath := filepath.Join(profilesDir, name+".toml")
		base.SetConfigFile(overlayPath)
		if err := base.MergeInConfig(); err != nil {
			return Profile{}, fmt.Errorf("profile: reading %s: %w", overlayPath, err)
		}
	}

	var p Profile
	if err := base.Unmarshal(&p); err != nil {
		return Profile{}, fmt.Errorf("profile: unmarshal: %w", err)
	}
	return p, validate(p)
}

func applyDefaults(v *viper.Viper) {
	d := defaults()
	v.SetDefault("video_fps", d.VideoFPS)
	v.SetDefault("mosample_enabled", d.MosampleEnabled)
	v.SetDefault("mosample_mult", d.MosampleMult)
	v.SetDefault("mosample_exposure", d.MosampleExposure)
	v.SetDefault("video_pixel_format", d.VideoPixelFormat)
	v.SetDefault("video_encoder", d.VideoEncoder)
	v.SetDefault("video_x264_crf", d.VideoX264CRF)
	v.SetDefault("video_x264_preset", d.VideoX264Preset)
	v.SetDefault("video_x264_intra", d.VideoX264Intra)
	v.SetDefault("video_dnxhr_profile", d.VideoDNxHRProfile)
	v.SetDefault("audio_enabled", d.AudioEnabled)
	v.SetDefault("audio_encoder", d.AudioEncoder)
	v.SetDefault("overlay_enabled", d.OverlayEnabled)
}

func validate(p Profile) error {
	if p.VideoFPS <= 0 {
		return fmt.Errorf("profile: video_fps must be positive, got %d", p.VideoFPS)
	}
	if p.MosampleEnabled {
		if p.MosampleMult < 1 {
			return fmt.Errorf("profile: mosample_mult must be >= 1, got %d", p.MosampleMult)
		}
		if p.MosampleExposure <= 0 || p.MosampleExposure > 1 {
			return fmt.Errorf("profile: mosample_exposure must be in (0, 1], got %v", p.MosampleExposure)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	_, ok := err.(viper.ConfigFileNotFoundError)
	return ok
}
