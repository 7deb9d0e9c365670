// Package inq implements an instrument queue: a single producer single
// consumer ring of fixed size order records in a memory mapped file
// shared between processes.
package inq

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"golang.org/x/sys/unix"
)

// DefaultDir is the default directory of queue files.
const DefaultDir = "/dev/shm"

var (
	// ErrQueueFull is returned by Write if the consumer has not read enough
	// records. The caller may retry later.
	ErrQueueFull = errors.New("queue full", j.C("ERR_7c21e4b09a5d3f18"))

	// ErrSizeMismatch is returned when a region is too small for the header
	// or its size does not match the slot count in the header.
	ErrSizeMismatch = errors.New("queue size mismatch", j.C("ERR_e54a0d9b27c6f381"))

	// ErrBadLayout is returned when a region header is not a known layout.
	ErrBadLayout = errors.New("unknown queue layout", j.C("ERR_19f3b6c8e0a47d52"))

	// ErrInexact is returned when a decimal is not representable as fixed-point.
	ErrInexact = errors.New("inexact fixed-point value", j.C("ERR_b08d5e3a61c9f274"))
)

// Queue is one end of an instrument queue. Write may only be called by a
// single producer and Read by a single consumer; the two ends may live in
// different processes or share a Queue.
type Queue struct {
	instrument uint32
	path       string
	data       []byte
	write      *uint64
	read       *uint64
	slots      uint64
	mask       uint64
	createdAt  time.Time
}

// Path returns the path of the queue file of the instrument.
func Path(dir string, instrument uint32) string {
	return filepath.Join(dir, fmt.Sprintf("inq-%d", instrument))
}

// Create creates and maps a new queue file for the instrument with capacity
// rounded up to a power of two. It fails if the file already exists.
func Create(dir string, instrument uint32, capacity int) (*Queue, error) {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	slots := roundUpToPowerOf2(uint64(capacity))
	if slots > maxSlots {
		return nil, errors.Wrap(ErrSizeMismatch, "capacity too large", j.KV("capacity", capacity))
	}

	path := Path(dir, instrument)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "create queue file", j.KV("path", path))
	}
	defer f.Close()

	size := regionSize(slots)
	if err := f.Truncate(int64(size)); err != nil {
		_ = os.Remove(path)
		return nil, errors.Wrap(err, "size queue file", j.KV("path", path))
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = os.Remove(path)
		return nil, errors.Wrap(err, "mmap queue file", j.KV("path", path))
	}

	now := time.Now()
	binary.LittleEndian.PutUint64(data[offWrite:], 0)
	binary.LittleEndian.PutUint64(data[offRead:], 0)
	binary.LittleEndian.PutUint16(data[offVersion:], version)
	binary.LittleEndian.PutUint16(data[offSlotSize:], SlotSize)
	binary.LittleEndian.PutUint64(data[offMask:], slots-1)
	binary.LittleEndian.PutUint64(data[offCreatedAt:], uint64(now.UnixNano()))

	// Publish the header last so a connecting consumer never sees it partially.
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&data[offMagic])), magic)

	return newQueue(instrument, path, data, slots, time.Unix(0, now.UnixNano())), nil
}

// Connect maps the existing queue file of the instrument. The capacity is
// derived from the file size.
func Connect(dir string, instrument uint32) (*Queue, error) {
	path := Path(dir, instrument)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open queue file", j.KV("path", path))
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat queue file", j.KV("path", path))
	}

	size := fi.Size()
	if size < HeaderSize {
		return nil, errors.Wrap(ErrSizeMismatch, "region smaller than header",
			j.MKV{"path": path, "size": size})
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, "mmap queue file", j.KV("path", path))
	}

	slots, err := validate(data)
	if err != nil {
		_ = unix.Munmap(data)
		return nil, errors.Wrap(err, "connect", j.KV("path", path))
	}

	createdAt := int64(binary.LittleEndian.Uint64(data[offCreatedAt:]))

	return newQueue(instrument, path, data, slots, time.Unix(0, createdAt)), nil
}

// Open connects to the queue of the instrument, creating it if it does not exist.
func Open(dir string, instrument uint32, capacity int) (*Queue, error) {
	q, err := Create(dir, instrument, capacity)
	if err == nil {
		return q, nil
	}

	if _, serr := os.Stat(Path(dir, instrument)); serr != nil {
		return nil, err
	}

	return Connect(dir, instrument)
}

// Remove deletes the queue file of the instrument. Mapped queues remain
// usable until closed.
func Remove(dir string, instrument uint32) error {
	path := Path(dir, instrument)
	if err := os.Remove(path); err != nil {
		return errors.Wrap(err, "remove queue file", j.KV("path", path))
	}
	return nil
}

// validate checks the header of a mapped region and returns its slot count.
func validate(data []byte) (uint64, error) {
	m := atomic.LoadUint32((*uint32)(unsafe.Pointer(&data[offMagic])))
	if m != magic {
		return 0, errors.Wrap(ErrBadLayout, "bad magic", j.KV("magic", m))
	}

	if v := binary.LittleEndian.Uint16(data[offVersion:]); v != version {
		return 0, errors.Wrap(ErrBadLayout, "unsupported version", j.KV("version", v))
	}

	if ss := binary.LittleEndian.Uint16(data[offSlotSize:]); ss != SlotSize {
		return 0, errors.Wrap(ErrBadLayout, "unsupported slot size", j.KV("slot_size", ss))
	}

	body := uint64(len(data) - HeaderSize)
	slots := body / SlotSize
	mask := binary.LittleEndian.Uint64(data[offMask:])

	if body%SlotSize != 0 || !isPowerOf2(slots) || mask != slots-1 {
		return 0, errors.Wrap(ErrSizeMismatch, "slot count mismatch",
			j.MKV{"size": len(data), "mask": mask})
	}

	return slots, nil
}

func newQueue(instrument uint32, path string, data []byte, slots uint64, createdAt time.Time) *Queue {
	return &Queue{
		instrument: instrument,
		path:       path,
		data:       data,
		write:      (*uint64)(unsafe.Pointer(&data[offWrite])),
		read:       (*uint64)(unsafe.Pointer(&data[offRead])),
		slots:      slots,
		mask:       slots - 1,
		createdAt:  createdAt,
	}
}

// Write copies the record into the next slot and publishes it to the
// consumer. It returns ErrQueueFull if all slots are unread.
func (q *Queue) Write(r Record) error {
	w := atomic.LoadUint64(q.write)
	if w-atomic.LoadUint64(q.read) >= q.slots {
		return ErrQueueFull
	}

	encode(q.slot(w), r)

	atomic.StoreUint64(q.write, w+1)
	return nil
}

// Read copies the next unread record out of its slot and releases the slot.
// It returns false if the queue is empty.
func (q *Queue) Read() (Record, bool) {
	r := atomic.LoadUint64(q.read)
	if r == atomic.LoadUint64(q.write) {
		return Record{}, false
	}

	rec := decode(q.slot(r))

	atomic.StoreUint64(q.read, r+1)
	return rec, true
}

// Depth returns the approximate number of unread records. It is only
// suitable for monitoring.
func (q *Queue) Depth() uint64 {
	w := atomic.LoadUint64(q.write)
	r := atomic.LoadUint64(q.read)
	if r > w {
		return 0
	}
	return w - r
}

func (q *Queue) slot(cursor uint64) []byte {
	off := HeaderSize + (cursor&q.mask)*SlotSize
	return q.data[off : off+SlotSize]
}

// Capacity returns the number of slots.
func (q *Queue) Capacity() int {
	return int(q.slots)
}

func (q *Queue) Instrument() uint32 {
	return q.instrument
}

func (q *Queue) Path() string {
	return q.path
}

func (q *Queue) CreatedAt() time.Time {
	return q.createdAt
}

// Close unmaps the region. The queue file is not removed.
func (q *Queue) Close() error {
	if q.data == nil {
		return nil
	}

	data := q.data
	q.data, q.write, q.read = nil, nil, nil

	if err := unix.Munmap(data); err != nil {
		return errors.Wrap(err, "munmap queue", j.KV("path", q.path))
	}
	return nil
}
