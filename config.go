package pipetree

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	jsp "github.com/buger/jsonparser"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config bundles the process-wide knobs the reference implementation hard
// codes: a logger for every pipe, how many invariant failures the
// diagnostic sink retains before dropping the oldest, how fast it's
// allowed to log them, and a diagnostic-only relay join timeout. A host
// embedding the package can load these from its own deployment config
// instead of recompiling.
type Config struct {
	Logger *zerolog.Logger // if nil, logging is disabled

	ErrorSinkSize  int           // retained invariant-failure entries before drop-oldest
	ErrorLogBurst  int           // sink log burst allowance
	ErrorLogPeriod time.Duration // token refill interval for sink log lines, shared by failures of every pipe

	RelayJoinTimeout time.Duration // diagnostic only: a relay join exceeding this logs a warning, nothing fails
}

// DefaultConfig matches the reference implementation's fixed behavior: a
// generous sink, modest logging, and no relay join timeout warning.
var DefaultConfig = Config{
	ErrorSinkSize:    64,
	ErrorLogBurst:    20,
	ErrorLogPeriod:   50 * time.Millisecond,
	RelayJoinTimeout: 0,
}

// LoadConfig reads a JSON document from path and overlays whichever of
// Config's fields are present onto DefaultConfig, using partial field
// extraction so a config file that only sets one knob doesn't need to
// restate the rest. A missing file or field is not an error; malformed
// JSON, an unreadable file, or an unparseable duration string is.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if !json.Valid(data) {
		return cfg, fmt.Errorf("pipetree: %s: malformed JSON", path)
	}

	if v, dataErr := jsp.GetInt(data, "errorSinkSize"); dataErr == nil {
		cfg.ErrorSinkSize = int(v)
	}
	if v, dataErr := jsp.GetInt(data, "errorLogBurst"); dataErr == nil {
		cfg.ErrorLogBurst = int(v)
	}
	if v, dataErr := jsp.GetString(data, "errorLogPeriod"); dataErr == nil {
		d, parseErr := time.ParseDuration(v)
		if parseErr != nil {
			return cfg, parseErr
		}
		cfg.ErrorLogPeriod = d
	}
	if v, dataErr := jsp.GetString(data, "relayJoinTimeout"); dataErr == nil {
		d, parseErr := time.ParseDuration(v)
		if parseErr != nil {
			return cfg, parseErr
		}
		cfg.RelayJoinTimeout = d
	}
	return cfg, nil
}

// Apply wires cfg into the package's global diagnostic sink and the
// logger every newly opened or sent pipe will carry.
func (cfg Config) Apply() {
	globalSink.mu.Lock()
	globalSink.capacity = cfg.ErrorSinkSize
	globalSink.mu.Unlock()

	var limiter *rate.Limiter
	if cfg.ErrorLogPeriod > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.ErrorLogPeriod), cfg.ErrorLogBurst)
	}
	globalSink.configure(cfg.Logger, limiter)

	packageLogger = cfg.Logger
	relayJoinTimeout = cfg.RelayJoinTimeout
}
