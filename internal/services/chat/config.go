// File: internal/services/chat/config.go
package chat

import (
	"fmt"
	"time"
)

type Config struct {
	// Message Configuration
	MaxMessageLength int // Maximum runes per outgoing message

	// Performance Configuration
	WriteTimeout    time.Duration // Per-message deletion write timeout
	MarkSeenTimeout time.Duration // Per-message read-receipt write timeout
}

func (c *Config) Validate() error {
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("max_message_length must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}
	if c.MarkSeenTimeout <= 0 {
		return fmt.Errorf("mark_seen_timeout must be positive")
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		MaxMessageLength: 4000,
		WriteTimeout:     10 * time.Second,
		MarkSeenTimeout:  5 * time.Second,
	}
}
