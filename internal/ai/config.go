package ai

import "time"

type Config struct {
	GeminiAPIKey     string        `env:"GEMINI_API_KEY"`
	AnalysisModel    string        `env:"GEMINI_ANALYSIS_MODEL" envDefault:"gemini-2.5-pro"`
	CopyModel        string        `env:"GEMINI_COPY_MODEL" envDefault:"gemini-2.5-flash"`
	AnalysisTimeout  time.Duration `env:"GEMINI_ANALYSIS_TIMEOUT" envDefault:"3m"`
	CopyTimeout      time.Duration `env:"GEMINI_COPY_TIMEOUT" envDefault:"30s"`
	InlineLimit      int64         `env:"GEMINI_INLINE_LIMIT_BYTES" envDefault:"20971520"`
	FilePollInterval time.Duration `env:"GEMINI_FILE_POLL_INTERVAL" envDefault:"2s"`
	FilePollTimeout  time.Duration `env:"GEMINI_FILE_POLL_TIMEOUT" envDefault:"2m"`

	FalKey       string        `env:"FAL_KEY"`
	FalBaseURL   string        `env:"FAL_BASE_URL" envDefault:"https://fal.run"`
	MusicModel   string        `env:"FAL_MUSIC_MODEL" envDefault:"cassetteai/music-gen"`
	MusicTimeout time.Duration `env:"FAL_MUSIC_TIMEOUT" envDefault:"60s"`
}

func (c Config) withDefaults() Config {
	if c.AnalysisModel == "" {
		c.AnalysisModel = "gemini-2.5-pro"
	}
	if c.CopyModel == "" {
		c.CopyModel = "gemini-2.5-flash"
	}
	if c.AnalysisTimeout <= 0 {
		c.AnalysisTimeout = 3 * time.Minute
	}
	if c.CopyTimeout <= 0 {
		c.CopyTimeout = 30 * time.Second
	}
	if c.InlineLimit <= 0 {
		c.InlineLimit = 20 << 20
	}
	if c.FilePollInterval <= 0 {
		c.FilePollInterval = 2 * time.Second
	}
	if c.FilePollTimeout <= 0 {
		c.FilePollTimeout = 2 * time.Minute
	}
	if c.FalBaseURL == "" {
		c.FalBaseURL = "https://fal.run"
	}
	if c.MusicModel == "" {
		c.MusicModel = "cassetteai/music-gen"
	}
	if c.MusicTimeout <= 0 {
		c.MusicTimeout = 60 * time.Second
	}
	return c
}
