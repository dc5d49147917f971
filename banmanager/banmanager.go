// Package banmanager tracks failed-login IPs and banned IPs with time-based
// expiry, persisting the banned list to an INI file so bans survive a
// restart. Grounded in the original ban_manager.rs (both the in-memory
// bookkeeping logic and the persisted INI variant, see DESIGN.md) and
// structurally on the teacher's tunnel/server/tokencache.go (mutex-guarded
// map with TTL sweep).
package banmanager

import (
	"log"
	"net"
	"sync"
	"time"

	"gopkg.in/ini.v1"
)

const banSection = "ban"

// AttemptOutcome is the result of RegisterFailure.
type AttemptOutcome int

const (
	// OutcomeFailed means the ip is recorded as a failed attempt but not
	// yet banned.
	OutcomeFailed AttemptOutcome = iota
	// OutcomeBanned means this failure pushed the ip over the limit.
	OutcomeBanned
)

type failedIP struct {
	attempts       uint32
	lastAttemptAt  time.Time
}

type bannedIP struct {
	banStartAt time.Time
}

// Manager implements the C4 Ban Manager.
type Manager struct {
	maxAttempts  uint32
	banDuration  time.Duration
	banFilePath  string
	logger       *log.Logger

	mu     sync.Mutex
	failed map[string]*failedIP
	banned map[string]*bannedIP
}

// New constructs a Manager, loading any existing banned-ip entries from
// banFilePath. It panics if maxAttempts or banDuration is non-positive,
// mirroring the original's refusal to run with a useless ban policy.
func New(maxAttempts uint32, banDuration time.Duration, banFilePath string, logger *log.Logger) *Manager {
	if maxAttempts == 0 {
		panic("banmanager: max_allowed_login_attempts must not be zero")
	}
	if banDuration <= 0 {
		panic("banmanager: ban_time_duration_in_min must not be zero or negative")
	}
	if logger == nil {
		logger = log.Default()
	}

	m := &Manager{
		maxAttempts: maxAttempts,
		banDuration: banDuration,
		banFilePath: banFilePath,
		logger:      logger,
		failed:      make(map[string]*failedIP),
		banned:      make(map[string]*bannedIP),
	}
	m.loadBannedIPs()
	return m
}

func (m *Manager) loadBannedIPs() {
	cfg, err := ini.Load(m.banFilePath)
	if err != nil {
		// No file yet, or unreadable: start with an empty ban list.
		return
	}
	section := cfg.Section(banSection)
	for _, key := range section.Keys() {
		startAt, err := time.ParseInLocation(time.RFC3339, key.Value(), time.Local)
		if err != nil {
			continue
		}
		m.banned[key.Name()] = &bannedIP{banStartAt: startAt}
	}
}

func (m *Manager) persistBannedIP(ip string, startAt time.Time) {
	cfg, err := ini.LooseLoad(m.banFilePath)
	if err != nil {
		cfg = ini.Empty()
	}
	cfg.Section(banSection).Key(ip).SetValue(startAt.Format(time.RFC3339))
	if err := cfg.SaveTo(m.banFilePath); err != nil {
		m.logger.Printf("ban manager: failed to persist banned ip %s: %v", ip, err)
	}
}

func (m *Manager) removeBannedIPFromDisk(ip string) {
	cfg, err := ini.LooseLoad(m.banFilePath)
	if err != nil {
		return
	}
	cfg.Section(banSection).DeleteKey(ip)
	if err := cfg.SaveTo(m.banFilePath); err != nil {
		m.logger.Printf("ban manager: failed to remove banned ip %s from disk: %v", ip, err)
	}
}

// RegisterFailure records a failed login attempt for (username, ip). If the
// running attempt count for ip exceeds maxAttempts, ip is banned and
// OutcomeBanned is returned together with the failure count that triggered
// the ban; otherwise OutcomeFailed is returned with the new attempt count.
func (m *Manager) RegisterFailure(username string, ip net.IP) (AttemptOutcome, uint32) {
	key := ip.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	attempts := uint32(0)
	if f, ok := m.failed[key]; ok {
		attempts = f.attempts
	}
	attempts++

	if attempts > m.maxAttempts {
		delete(m.failed, key)
		now := time.Now()
		m.banned[key] = &bannedIP{banStartAt: now}
		m.logger.Printf("%s was banned for %s due to %d failed login attempts.", username, m.banDuration, attempts)
		m.persistBannedIP(key, now)
		return OutcomeBanned, attempts
	}

	m.failed[key] = &failedIP{attempts: attempts, lastAttemptAt: time.Now()}
	m.logger.Printf("%s failed to login: %d/%d allowed failed login attempts.", username, attempts, m.maxAttempts)
	return OutcomeFailed, attempts
}

// IsBanned reports whether ip is currently banned, expiring stale entries
// (from both lists) as a side effect.
func (m *Manager) IsBanned(ip net.IP) bool {
	key := ip.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.banned[key]; ok {
		if time.Since(b.banStartAt) < m.banDuration {
			m.logger.Printf("banned ip address (%s) attempted to connect. connection was rejected.", key)
			return true
		}
		delete(m.banned, key)
		m.removeBannedIPFromDisk(key)
		return false
	}

	if f, ok := m.failed[key]; ok {
		if time.Since(f.lastAttemptAt) >= m.banDuration {
			delete(m.failed, key)
		}
	}
	return false
}

// ClearFailures removes ip from the failed list, called after a successful
// login.
func (m *Manager) ClearFailures(ip net.IP) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failed, ip.String())
}

// Sweep removes all expired entries from both lists, erasing the on-disk
// entry for any banned ip that expires.
func (m *Manager) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	beforeFailed, beforeBanned := len(m.failed), len(m.banned)

	for key, f := range m.failed {
		if time.Since(f.lastAttemptAt) >= m.banDuration {
			delete(m.failed, key)
		}
	}
	for key, b := range m.banned {
		if time.Since(b.banStartAt) >= m.banDuration {
			delete(m.banned, key)
			m.removeBannedIPFromDisk(key)
		}
	}

	if beforeFailed != len(m.failed) || beforeBanned != len(m.banned) {
		m.logger.Printf("refreshed failed and banned ip lists: failed %d -> %d, banned %d -> %d",
			beforeFailed, len(m.failed), beforeBanned, len(m.banned))
	}
}
