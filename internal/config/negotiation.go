package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DefaultRetryablePatterns match gateway explanations that indicate the merchant
// profile rejected the request shape rather than the request itself.
var DefaultRetryablePatterns = []string{
	"unsupported",
	"invalid",
	"missing",
	"not.*allowed",
	"unexpected",
}

type NegotiationConfig struct {
	RetryablePatterns []string `mapstructure:"retryablePatterns"`
}

func DefaultNegotiationConfig() NegotiationConfig {
	return NegotiationConfig{RetryablePatterns: append([]string(nil), DefaultRetryablePatterns...)}
}

type compiledNegotiation struct {
	cfg     NegotiationConfig
	pattern *regexp.Regexp
}

type NegotiationHolder struct {
	current atomic.Value // holds compiledNegotiation
}

// NewNegotiationHolder loads negotiation.yml from the configured path (or the
// usual search paths) and keeps it reloaded on change.
func NewNegotiationHolder(cfg Config, log *zap.Logger) (*NegotiationHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.negotiation")

	v := viper.New()
	if cfg.MPGS.NegotiationFile != "" {
		v.SetConfigFile(cfg.MPGS.NegotiationFile)
	} else {
		v.SetConfigName("negotiation")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/qabalan")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MPGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("negotiation.retryablePatterns", DefaultRetryablePatterns)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	var loaded NegotiationConfig
	if err := v.UnmarshalKey("negotiation", &loaded); err != nil {
		return nil, err
	}

	holder := &NegotiationHolder{}
	if err := holder.Set(loaded); err != nil {
		return nil, err
	}

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated NegotiationConfig
			if err := v.UnmarshalKey("negotiation", &updated); err != nil {
				log.Warn("reload failed", zap.Error(err))
				return
			}
			if err := holder.Set(updated); err != nil {
				log.Warn("invalid negotiation config ignored", zap.Error(err))
				return
			}
			log.Info("negotiation config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

// NewStaticNegotiationHolder returns a holder that never reloads.
func NewStaticNegotiationHolder(cfg NegotiationConfig) (*NegotiationHolder, error) {
	holder := &NegotiationHolder{}
	if err := holder.Set(cfg); err != nil {
		return nil, err
	}
	return holder, nil
}

func (h *NegotiationHolder) Set(cfg NegotiationConfig) error {
	compiled, err := compileNegotiation(cfg)
	if err != nil {
		return err
	}
	h.current.Store(compiled)
	return nil
}

func (h *NegotiationHolder) Get() NegotiationConfig {
	return h.current.Load().(compiledNegotiation).cfg
}

// IsRetryable reports whether a gateway explanation matches one of the
// configured shape-rejection patterns. Matching is case-insensitive.
func (h *NegotiationHolder) IsRetryable(explanation string) bool {
	explanation = strings.TrimSpace(explanation)
	if explanation == "" {
		return false
	}
	return h.current.Load().(compiledNegotiation).pattern.MatchString(explanation)
}

func compileNegotiation(cfg NegotiationConfig) (compiledNegotiation, error) {
	patterns := make([]string, 0, len(cfg.RetryablePatterns))
	for _, p := range cfg.RetryablePatterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := regexp.Compile(p); err != nil {
			return compiledNegotiation{}, fmt.Errorf("negotiation.retryablePatterns: %q: %w", p, err)
		}
		patterns = append(patterns, p)
	}
	if len(patterns) == 0 {
		return compiledNegotiation{}, errors.New("negotiation.retryablePatterns cannot be empty")
	}
	re, err := regexp.Compile("(?i)(?:" + strings.Join(patterns, "|") + ")")
	if err != nil {
		return compiledNegotiation{}, err
	}
	return compiledNegotiation{cfg: NegotiationConfig{RetryablePatterns: patterns}, pattern: re}, nil
}
