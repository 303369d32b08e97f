package types

import (
	"errors"
	"time"
)

// Config carries every configuration key the core recognizes (spec §6).
// Loading it from files/env/flags is an external collaborator's job
// (cmd/artery does it with kingpin); the core only consumes the struct.
type Config struct {
	// HandshakeTimeout bounds how long the outbound handshake stage will
	// buffer envelopes waiting for the peer's UID promise. Required, > 0.
	HandshakeTimeout time.Duration

	// InjectHandshakeInterval is how often an unanswered HandshakeReq is
	// resent.
	InjectHandshakeInterval time.Duration

	// GiveUpSendAfter bounds backpressure on a send before it is dropped.
	GiveUpSendAfter time.Duration

	// LargeMessageDestinations are path patterns routed to the large
	// pipeline by the wildcard matcher.
	LargeMessageDestinations []string

	// SysMsgBufferSize bounds the sender-side reliable-delivery buffer.
	SysMsgBufferSize int

	// SystemMessageResendInterval is the retransmit period for unacked
	// system messages.
	SystemMessageResendInterval time.Duration

	// IdleCPULevel is the media driver's threading/idle level, 1 (idle)
	// .. 10 (busy-spin). Validate checks the range; the relt-backed
	// driver does not read it.
	IdleCPULevel int

	ArteryPort          int
	ArteryHostname      string
	AeronDirectoryName  string
	EmbeddedMediaDriver bool
	CompressionEnabled  bool

	// RestartTimeout and MaxRestarts configure the sliding-window restart
	// budget shared by the three inbound pipelines.
	RestartTimeout time.Duration
	MaxRestarts    int

	// ErrorLogPollInterval/First control the periodic media-driver error
	// poller, kept as explicit duration config (see DESIGN.md) rather
	// than a hardcoded constant.
	ErrorLogPollInterval   time.Duration
	ErrorLogPollFirstDelay time.Duration

	// ProtocolVersion is this node's artery wire-protocol version; peers
	// advertising an incompatible major version are rejected at handshake.
	ProtocolVersion string
}

// DefaultConfig returns the defaults named throughout spec.md.
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout:            4 * time.Second,
		InjectHandshakeInterval:     time.Second,
		GiveUpSendAfter:             60 * time.Second,
		SysMsgBufferSize:            1000,
		SystemMessageResendInterval: time.Second,
		IdleCPULevel:                5,
		ArteryHostname:              "localhost",
		EmbeddedMediaDriver:         true,
		CompressionEnabled:          true,
		RestartTimeout:              5 * time.Second,
		MaxRestarts:                 5,
		ErrorLogPollInterval:        5 * time.Second,
		ErrorLogPollFirstDelay:      3 * time.Second,
		ProtocolVersion:             "1.0.0",
	}
}

func (c *Config) Validate() error {
	if c.HandshakeTimeout <= 0 {
		return errors.New("artery: handshake-timeout must be > 0")
	}
	if c.SysMsgBufferSize <= 0 {
		return errors.New("artery: sys-msg-buffer-size must be positive")
	}
	if c.IdleCPULevel < 1 || c.IdleCPULevel > 10 {
		return errors.New("artery: idle-cpu-level must be in 1..10")
	}
	return nil
}
