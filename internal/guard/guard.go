// Package guard keeps at most one running instance per role on a host.
//
// A role holds two files in the lock directory:
//
//	<role>.lock  JSON {"role","pid","acquired_at"}
//	<role>.pid   the owner's PID as text
//
// A lock older than the stale threshold is treated as abandoned and reclaimed.
// The check-then-create sequence is not atomic across processes: two starters
// racing on a stale lock may both win. Lock files are created with O_EXCL, so
// the window is limited to the moment between removing a stale lock and
// writing the new one.
package guard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	logx "barzin/pkg/logx"
)

// DefaultStaleAfter is the age after which a lock is reclaimable.
const DefaultStaleAfter = time.Hour

var (
	// ErrLocked reports that another non-stale instance holds the role.
	ErrLocked = errors.New("guard: role already locked")
	// ErrNotHeld reports an operation on a role this process does not own.
	ErrNotHeld = errors.New("guard: role not held by this process")
)

// Record is the on-disk lock for one role.
type Record struct {
	Role       string    `json:"role"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Age returns how long ago the record was acquired.
func (r Record) Age(now time.Time) time.Duration { return now.Sub(r.AcquiredAt) }

// IsStale is true iff the record is strictly older than threshold.
func IsStale(r Record, threshold time.Duration, now time.Time) bool {
	return r.Age(now) > threshold
}

type Options struct {
	Dir        string
	StaleAfter time.Duration

	// Test hooks. Zero values use the real process and clock.
	PID   int
	Now   func() time.Time
	Alive func(pid int) bool

	Log logx.Logger
}

type Guard struct {
	dir        string
	staleAfter time.Duration
	pid        int
	now        func() time.Time
	alive      func(pid int) bool
	log        logx.Logger

	mu   sync.Mutex
	held map[string]Record
}

func New(opts Options) *Guard {
	g := &Guard{
		dir:        strings.TrimSpace(opts.Dir),
		staleAfter: opts.StaleAfter,
		pid:        opts.PID,
		now:        opts.Now,
		alive:      opts.Alive,
		log:        opts.Log,
		held:       map[string]Record{},
	}
	if g.dir == "" {
		g.dir = "."
	}
	if g.staleAfter <= 0 {
		g.staleAfter = DefaultStaleAfter
	}
	if g.pid <= 0 {
		g.pid = os.Getpid()
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.alive == nil {
		g.alive = processAlive
	}
	if g.log.IsZero() {
		g.log = logx.Nop()
	}
	g.log = g.log.With(logx.String("comp", "guard"))
	return g
}

func (g *Guard) Dir() string                 { return g.dir }
func (g *Guard) StaleAfter() time.Duration   { return g.staleAfter }
func (g *Guard) LockPath(role string) string { return filepath.Join(g.dir, role+".lock") }
func (g *Guard) PIDPath(role string) string  { return filepath.Join(g.dir, role+".pid") }

// IsStale applies the guard's threshold and clock.
func (g *Guard) IsStale(r Record) bool { return IsStale(r, g.staleAfter, g.now()) }

// Acquire reports whether this process now owns role. Contention and I/O
// failures both yield false; the caller must not run in either case.
func (g *Guard) Acquire(role string) bool {
	err := g.TryAcquire(role)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrLocked):
		g.log.Warn("role already running", logx.String("lock", role), logx.Err(err))
	default:
		g.log.Error("lock acquisition failed", logx.String("lock", role), logx.Err(err))
	}
	return false
}

// TryAcquire is Acquire with the failure reason: ErrLocked on contention,
// any other error on I/O failure.
func (g *Guard) TryAcquire(role string) error {
	if err := validRole(role); err != nil {
		return err
	}
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return fmt.Errorf("lock dir: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	cur, err := g.read(role)
	switch {
	case err == nil:
		reason := "stale"
		if !g.IsStale(cur) {
			if !g.ownerGone(cur) {
				return fmt.Errorf("%w: pid %d since %s", ErrLocked, cur.PID, cur.AcquiredAt.Format(time.RFC3339))
			}
			reason = "owner not running"
		}
		g.log.Warn("reclaiming lock",
			logx.String("lock", role),
			logx.String("reason", reason),
			logx.Int("pid", cur.PID),
			logx.Duration("age", cur.Age(g.now())),
		)
		if err := os.Remove(g.LockPath(role)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale lock: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return err
	}

	rec := Record{Role: role, PID: g.pid, AcquiredAt: g.now()}
	if err := g.create(rec); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: lost creation race", ErrLocked)
		}
		return err
	}
	if err := writeFileAtomic(g.PIDPath(role), []byte(strconv.Itoa(g.pid)+"\n")); err != nil {
		_ = os.Remove(g.LockPath(role))
		return fmt.Errorf("write pid file: %w", err)
	}
	g.held[role] = rec
	g.log.Info("lock acquired", logx.String("lock", role), logx.Int("pid", g.pid))
	return nil
}

// ownerGone is true when the record names another process that no longer
// exists. Records without a PID only age out.
func (g *Guard) ownerGone(r Record) bool {
	return r.PID > 0 && r.PID != g.pid && !g.alive(r.PID)
}

// Refresh rewrites the acquisition time of a held lock so a long-lived owner
// never looks stale.
func (g *Guard) Refresh(role string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[role]; !ok {
		return ErrNotHeld
	}
	cur, err := g.read(role)
	if err != nil {
		return err
	}
	if cur.PID != g.pid {
		delete(g.held, role)
		return fmt.Errorf("%w: lock now owned by pid %d", ErrNotHeld, cur.PID)
	}
	cur.AcquiredAt = g.now()
	b, err := json.Marshal(cur)
	if err != nil {
		return err
	}
	return writeFileAtomic(g.LockPath(role), append(b, '\n'))
}

// Release removes the lock and PID files for role if this process owns them.
// It is idempotent and never fails on missing files.
func (g *Guard) Release(role string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, wasHeld := g.held[role]
	delete(g.held, role)

	cur, err := g.read(role)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		g.log.Warn("lock unreadable on release", logx.String("lock", role), logx.Err(err))
		return
	case cur.PID != g.pid:
		if wasHeld {
			g.log.Warn("lock taken over; leaving it", logx.String("lock", role), logx.Int("owner_pid", cur.PID))
		}
		return
	default:
		if err := os.Remove(g.LockPath(role)); err != nil && !errors.Is(err, os.ErrNotExist) {
			g.log.Warn("remove lock failed", logx.String("lock", role), logx.Err(err))
		}
	}

	if pid, err := readPIDFile(g.PIDPath(role)); err == nil && pid == g.pid {
		if err := os.Remove(g.PIDPath(role)); err != nil && !errors.Is(err, os.ErrNotExist) {
			g.log.Warn("remove pid file failed", logx.String("lock", role), logx.Err(err))
		}
	}
	if wasHeld {
		g.log.Info("lock released", logx.String("lock", role))
	}
}

// ReleaseAll releases every role held by this guard.
func (g *Guard) ReleaseAll() {
	g.mu.Lock()
	roles := make([]string, 0, len(g.held))
	for r := range g.held {
		roles = append(roles, r)
	}
	g.mu.Unlock()
	for _, r := range roles {
		g.Release(r)
	}
}

// IsRunning is true iff a lock exists for role and its PID is a live process.
func (g *Guard) IsRunning(role string) bool {
	if validRole(role) != nil {
		return false
	}
	rec, err := g.Read(role)
	if err != nil || rec.PID <= 0 {
		return false
	}
	return g.alive(rec.PID)
}

// Held returns the record this process acquired for role.
func (g *Guard) Held(role string) (Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.held[role]
	return r, ok
}

// Read returns the current lock record for role. A missing lock yields an
// error matching os.ErrNotExist.
func (g *Guard) Read(role string) (Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.read(role)
}

func (g *Guard) read(role string) (Record, error) {
	path := g.LockPath(role)
	b, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	return parseRecord(role, b, func() (time.Time, error) {
		st, err := os.Stat(path)
		if err != nil {
			return time.Time{}, err
		}
		return st.ModTime(), nil
	})
}

// parseRecord accepts the JSON form and the bare-PID form written by older
// tooling. Bare or unreadable content falls back to the file mtime so it
// still ages out.
func parseRecord(role string, b []byte, mtime func() (time.Time, error)) (Record, error) {
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, "{") {
		var r Record
		if err := json.Unmarshal([]byte(s), &r); err == nil && !r.AcquiredAt.IsZero() {
			if r.Role == "" {
				r.Role = role
			}
			return r, nil
		}
	}
	at, err := mtime()
	if err != nil {
		return Record{}, err
	}
	r := Record{Role: role, AcquiredAt: at}
	if pid, err := strconv.Atoi(s); err == nil {
		r.PID = pid
	}
	return r, nil
}

func (g *Guard) create(rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(g.LockPath(rec.Role), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return err
	}
	return f.Close()
}

func readPIDFile(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(b)))
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func validRole(role string) error {
	if strings.TrimSpace(role) == "" {
		return errors.New("guard: empty role")
	}
	if strings.ContainsAny(role, `/\`) || role == "." || role == ".." {
		return fmt.Errorf("guard: invalid role %q", role)
	}
	return nil
}
