package api

import "time"

type Config struct {
	Addr            string        `envconfig:"ADDR" default:":8000"`
	AllowedOrigins  []string      `split_words:"true" default:"*"`
	ReadTimeout     time.Duration `split_words:"true" default:"15s"`
	WriteTimeout    time.Duration `split_words:"true" default:"90s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
	HealthTimeout   time.Duration `split_words:"true" default:"3s"`
	Debug           bool          `split_words:"true" default:"false"`
}
