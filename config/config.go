package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable of the service. It is populated once at process
// start and passed explicitly into each component constructor; pipeline code
// never reads the environment on its own.
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:"0.0.0.0:5000"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"json"`

	UploadDir  string `envconfig:"UPLOAD_FOLDER" default:"./uploads"`
	SessionDir string `envconfig:"SESSION_FOLDER" default:"./uploads/sessions"`
	StateDir   string `envconfig:"STATE_DIR" default:"./uploads/.state"`

	MongoURI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"replay_hub"`

	S3Bucket     string `envconfig:"S3_BUCKET_NAME"`
	S3Region     string `envconfig:"S3_REGION" default:"us-east-1"`
	AWSAccessKey string `envconfig:"AWS_ACCESS_KEY"`
	AWSSecretKey string `envconfig:"AWS_SECRET_KEY"`

	JWTSecret string `envconfig:"JWT_SECRET_KEY"`

	EnableConversion bool   `envconfig:"ENABLE_CONVERSION" default:"true"`
	AsyncConversion  bool   `envconfig:"ASYNC_CONVERSION" default:"true"`
	LosslessMode     bool   `envconfig:"LOSSLESS_CONVERSION" default:"false"`
	ConversionCRF    int    `envconfig:"CONVERSION_CRF" default:"18"`
	ConversionPreset string `envconfig:"CONVERSION_PRESET" default:"medium"`

	ProbeTimeout      time.Duration `envconfig:"PROBE_TIMEOUT" default:"10s"`
	ConversionTimeout time.Duration `envconfig:"CONVERSION_TIMEOUT" default:"10h"`
	FetchTimeout      time.Duration `envconfig:"FETCH_TIMEOUT" default:"10m"`

	// Lifetimes of staged local assets.
	LocalRetention   time.Duration `envconfig:"LOCAL_RETENTION" default:"10m"`
	OriginalGrace    time.Duration `envconfig:"ORIGINAL_GRACE" default:"300s"`
	SessionRetention time.Duration `envconfig:"SESSION_RETENTION" default:"24h"`
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
