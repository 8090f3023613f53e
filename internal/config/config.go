package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	DBMaxConns  int    `env:"DB_MAX_CONNS" envDefault:"10"`

	// ServerURL is the public base URL the carrier uses to reach this
	// process (webhooks and audio files). No trailing slash.
	ServerURL string `env:"SERVER_URL,required"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AuthToken    string        `env:"AUTH_TOKEN"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`

	AudioDir           string        `env:"AUDIO_DIR" envDefault:"./audio"`
	TempAudioRetention time.Duration `env:"TEMP_AUDIO_RETENTION" envDefault:"1h"`
	PruneInterval      time.Duration `env:"PRUNE_INTERVAL" envDefault:"10m"`
	PhraseCacheSize    int           `env:"PHRASE_CACHE_SIZE" envDefault:"128"`

	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID,required"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN,required"`
	TwilioFromNumber string `env:"TWILIO_FROM_NUMBER,required"`

	OpenAIAPIKey         string `env:"OPENAI_API_KEY,required"`
	OpenAIModel          string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	WhisperModel         string `env:"WHISPER_MODEL" envDefault:"whisper-1"`
	Language             string `env:"LANGUAGE" envDefault:"ru"`
	GPTMaxResponseTokens int    `env:"GPT_MAX_RESPONSE_TOKENS" envDefault:"150"`
	MaxResponseLength    int    `env:"MAX_RESPONSE_LENGTH" envDefault:"200"`

	ElevenLabsAPIKey  string        `env:"ELEVENLABS_API_KEY"`
	TTSVoiceID        string        `env:"TTS_VOICE_ID" envDefault:"EXAVITQu4vr4xnSDxMaL"`
	TTSModel          string        `env:"TTS_MODEL" envDefault:"eleven_multilingual_v2"`
	TTSFallbackVoice  string        `env:"TTS_FALLBACK_VOICE" envDefault:"Polly.Tatyana"`
	TTSTimeout        time.Duration `env:"TTS_TIMEOUT" envDefault:"15s"`
	TTSMaxAttempts    int           `env:"TTS_MAX_ATTEMPTS" envDefault:"3"`
	TTSDisablePrimary bool          `env:"TTS_DISABLE_PRIMARY" envDefault:"false"`

	VADThreshold      float64       `env:"VAD_THRESHOLD" envDefault:"0.03"`
	SilenceTimeout    time.Duration `env:"SILENCE_TIMEOUT" envDefault:"1500ms"`
	MinPhraseDuration time.Duration `env:"MIN_PHRASE_DURATION" envDefault:"500ms"`

	STTWorkers int `env:"STT_WORKERS" envDefault:"5"`
	LLMWorkers int `env:"LLM_WORKERS" envDefault:"3"`
	TTSWorkers int `env:"TTS_WORKERS" envDefault:"3"`

	ResponseTimeout    time.Duration `env:"RESPONSE_TIMEOUT" envDefault:"15s"`
	RecordingTimeout   time.Duration `env:"RECORDING_TIMEOUT" envDefault:"120s"`
	TeardownGrace      time.Duration `env:"TEARDOWN_GRACE" envDefault:"45s"`
	TeardownExtension  time.Duration `env:"TEARDOWN_EXTENSION" envDefault:"20s"`
	MediaStreamEnabled bool          `env:"MEDIA_STREAM_ENABLED" envDefault:"true"`

	ScriptPath string `env:"SCRIPT_PATH" envDefault:"./scripts/dialog_script.json"`

	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"dc-engine"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`
}

// Load reads configuration from an optional .env file and the process
// environment. Environment variables win over the .env file.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")

	if cfg.TTSMaxAttempts < 1 {
		return nil, fmt.Errorf("TTS_MAX_ATTEMPTS must be >= 1, got %d", cfg.TTSMaxAttempts)
	}
	if cfg.VADThreshold <= 0 || cfg.VADThreshold >= 1 {
		return nil, fmt.Errorf("VAD_THRESHOLD must be in (0,1), got %g", cfg.VADThreshold)
	}

	return cfg, nil
}
