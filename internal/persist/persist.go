// Package persist owns the on-disk state: the user file, the time-series
// state header and one event log per completed day. All files are binary,
// big-endian, carry a magic and a version, and are written to a temp file
// and renamed into place so readers never observe a partial write.
package persist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"saleswatch/internal/auth"
	"saleswatch/internal/protocol"
)

const (
	userMagic  = 0x55534552 // "USER"
	stateMagic = 0x54534552 // "TSER"
	dayMagic   = 0x53444159 // "SDAY"

	userVersion  = 1
	stateVersion = 1
	dayVersion   = 1
)

// ErrCorrupt marks a file with a bad magic or unsupported version. Wrapped
// errors carry the file path.
var ErrCorrupt = errors.New("corrupt file")

// Store reads and writes all persisted state under one data directory:
//
//	<dir>/users.dat
//	<dir>/timeseries/state
//	<dir>/timeseries/day-<id>.dat
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. Directories are created lazily
// on first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) usersPath() string { return filepath.Join(s.dir, "users.dat") }
func (s *Store) statePath() string { return filepath.Join(s.dir, "timeseries", "state") }
func (s *Store) dayPath(dayID int32) string {
	return filepath.Join(s.dir, "timeseries", fmt.Sprintf("day-%d.dat", dayID))
}

// SaveUsers writes the full user list.
func (s *Store) SaveUsers(users []auth.User) error {
	return s.atomicWrite(s.usersPath(), func(w io.Writer) error {
		if err := writeHeader(w, userMagic, userVersion); err != nil {
			return err
		}
		if err := protocol.WriteInt32(w, int32(len(users))); err != nil {
			return err
		}
		for _, u := range users {
			if err := protocol.WriteString(w, u.Username); err != nil {
				return err
			}
			if err := protocol.WriteInt32(w, int32(len(u.PasswordHash))); err != nil {
				return err
			}
			if _, err := w.Write(u.PasswordHash); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadUsers reads the user file. A missing file is an empty user set.
func (s *Store) LoadUsers() ([]auth.User, error) {
	f, err := os.Open(s.usersPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if err := checkHeader(r, userMagic, userVersion, s.usersPath()); err != nil {
		return nil, err
	}
	count, err := protocol.ReadInt32(r)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("%s: negative user count: %w", s.usersPath(), ErrCorrupt)
	}
	users := make([]auth.User, 0, count)
	for i := int32(0); i < count; i++ {
		name, err := protocol.ReadString(r)
		if err != nil {
			return nil, err
		}
		hashLen, err := protocol.ReadInt32(r)
		if err != nil {
			return nil, err
		}
		if hashLen < 0 || hashLen > 1024 {
			return nil, fmt.Errorf("%s: bad hash length %d: %w", s.usersPath(), hashLen, ErrCorrupt)
		}
		hash := make([]byte, hashLen)
		if _, err := io.ReadFull(r, hash); err != nil {
			return nil, err
		}
		users = append(users, auth.User{Username: name, PasswordHash: hash})
	}
	return users, nil
}

// SaveState writes the time-series state header (current day id).
func (s *Store) SaveState(currentDayID int32) error {
	return s.atomicWrite(s.statePath(), func(w io.Writer) error {
		if err := writeHeader(w, stateMagic, stateVersion); err != nil {
			return err
		}
		return protocol.WriteInt32(w, currentDayID)
	})
}

// LoadState reads the current day id. ok is false when no state file exists.
func (s *Store) LoadState() (currentDayID int32, ok bool, err error) {
	f, err := os.Open(s.statePath())
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if err := checkHeader(r, stateMagic, stateVersion, s.statePath()); err != nil {
		return 0, false, err
	}
	id, err := protocol.ReadInt32(r)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// SaveDay writes the event log of one completed day.
func (s *Store) SaveDay(dayID int32, events []protocol.Event) error {
	return s.atomicWrite(s.dayPath(dayID), func(w io.Writer) error {
		if err := writeHeader(w, dayMagic, dayVersion); err != nil {
			return err
		}
		if err := protocol.WriteInt32(w, int32(len(events))); err != nil {
			return err
		}
		for _, ev := range events {
			if err := protocol.WriteString(w, ev.Product); err != nil {
				return err
			}
			if err := protocol.WriteInt32(w, ev.Quantity); err != nil {
				return err
			}
			if err := protocol.WriteFloat64(w, ev.Price); err != nil {
				return err
			}
			if err := protocol.WriteInt64(w, ev.Timestamp); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadDay reads one day's event log. A missing file yields an empty list.
func (s *Store) LoadDay(dayID int32) ([]protocol.Event, error) {
	path := s.dayPath(dayID)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []protocol.Event{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if err := checkHeader(r, dayMagic, dayVersion, path); err != nil {
		return nil, err
	}
	count, err := protocol.ReadInt32(r)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("%s: negative event count: %w", path, ErrCorrupt)
	}
	events := make([]protocol.Event, 0, count)
	for i := int32(0); i < count; i++ {
		var ev protocol.Event
		if ev.Product, err = protocol.ReadString(r); err != nil {
			return nil, err
		}
		if ev.Quantity, err = protocol.ReadInt32(r); err != nil {
			return nil, err
		}
		if ev.Price, err = protocol.ReadFloat64(r); err != nil {
			return nil, err
		}
		if ev.Timestamp, err = protocol.ReadInt64(r); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// DeleteDay removes an expired day file. Missing files are fine.
func (s *Store) DeleteDay(dayID int32) error {
	err := os.Remove(s.dayPath(dayID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// atomicWrite writes via <path>.tmp and renames over the destination.
func (s *Store) atomicWrite(path string, fill func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := fill(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeHeader(w io.Writer, magic, version int32) error {
	if err := protocol.WriteInt32(w, magic); err != nil {
		return err
	}
	return protocol.WriteInt32(w, version)
}

func checkHeader(r io.Reader, magic, version int32, path string) error {
	m, err := protocol.ReadInt32(r)
	if err != nil {
		return err
	}
	if m != magic {
		return fmt.Errorf("%s: bad magic 0x%08X: %w", path, uint32(m), ErrCorrupt)
	}
	v, err := protocol.ReadInt32(r)
	if err != nil {
		return err
	}
	if v != version {
		return fmt.Errorf("%s: unsupported version %d: %w", path, v, ErrCorrupt)
	}
	return nil
}
