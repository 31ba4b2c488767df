package connection

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

// Options tunes the Manager. Zero durations and sizes fall back to the defaults.
type Options struct {
	// AvailabilityTimeout bounds the scan of CheckAvailability.
	AvailabilityTimeout time.Duration `yaml:"availability_timeout" default:"5s"`
	// ConnectTimeout bounds a single dial.
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	// WriteTimeout bounds one frame write.
	WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
	// AckTimeout bounds the wait for the TX notification after a write.
	AckTimeout time.Duration `yaml:"ack_timeout" default:"2s"`

	AutoReconnect       bool          `yaml:"auto_reconnect" default:"true"`
	ReconnectBackoff    time.Duration `yaml:"reconnect_backoff" default:"1s"`
	MaxReconnectBackoff time.Duration `yaml:"max_reconnect_backoff" default:"30s"`

	// SendQueueSize is the number of frames that may wait for the writer.
	SendQueueSize int `yaml:"send_queue_size" default:"16"`
	// WriteWithResponse requests ATT write-with-response on the RX characteristic.
	WriteWithResponse bool `yaml:"write_with_response" default:"false"`
	// JournalSize is the number of recent send outcomes kept.
	JournalSize int `yaml:"journal_size" default:"256"`
}

// DefaultOptions returns the default tuning.
func DefaultOptions() Options {
	o := Options{}
	defaults.SetDefaults(&o)
	return o
}

// sanitized replaces unset durations and sizes with defaults. Booleans are
// taken as given.
func (o Options) sanitized() Options {
	d := DefaultOptions()
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&o.AvailabilityTimeout, d.AvailabilityTimeout)
	fill(&o.ConnectTimeout, d.ConnectTimeout)
	fill(&o.WriteTimeout, d.WriteTimeout)
	fill(&o.AckTimeout, d.AckTimeout)
	fill(&o.ReconnectBackoff, d.ReconnectBackoff)
	fill(&o.MaxReconnectBackoff, d.MaxReconnectBackoff)
	if o.MaxReconnectBackoff < o.ReconnectBackoff {
		o.MaxReconnectBackoff = o.ReconnectBackoff
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = d.SendQueueSize
	}
	if o.JournalSize <= 0 {
		o.JournalSize = d.JournalSize
	}
	return o
}
