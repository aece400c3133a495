package render

import (
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	FFmpegBinary  string        `env:"FFMPEG_BIN" envDefault:"ffmpeg"`
	FFprobeBinary string        `env:"FFPROBE_BIN" envDefault:"ffprobe"`
	TempRoot      string        `env:"RENDER_TEMP_DIR"`
	ConcatTimeout time.Duration `env:"RENDER_CONCAT_TIMEOUT" envDefault:"5m"`
}

func (c Config) withDefaults() Config {
	if c.FFmpegBinary == "" {
		c.FFmpegBinary = "ffmpeg"
	}
	if c.FFprobeBinary == "" {
		c.FFprobeBinary = "ffprobe"
	}
	if c.TempRoot == "" {
		c.TempRoot = filepath.Join(os.TempDir(), "publista-render")
	}
	if c.ConcatTimeout <= 0 {
		c.ConcatTimeout = 5 * time.Minute
	}
	return c
}
