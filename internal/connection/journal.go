package connection

import (
	"time"

	"github.com/google/uuid"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// SendRecord is the outcome of one send.
type SendRecord struct {
	ID     uuid.UUID     `json:"id"`
	Code   string        `json:"code"`
	Frame  string        `json:"frame"`
	Result string        `json:"result"`
	RTT    time.Duration `json:"rtt_ns"`
	At     time.Time     `json:"at"`
}

// journal keeps the most recent send outcomes; the oldest are overwritten.
type journal struct {
	buf mpmc.RichOverlappedRingBuffer[SendRecord]
}

func newJournal(size int) *journal {
	return &journal{buf: mpmc.NewOverlappedRingBuffer[SendRecord](uint32(size))}
}

func (j *journal) add(r SendRecord) {
	_, _ = j.buf.EnqueueM(r)
}

// drain removes and returns every buffered record, oldest first.
func (j *journal) drain() []SendRecord {
	var out []SendRecord
	for !j.buf.IsEmpty() {
		r, err := j.buf.Dequeue()
		if err != nil {
			break
		}
		out = append(out, r)
	}
	return out
}
