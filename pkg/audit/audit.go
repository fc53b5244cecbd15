// Package audit provides an append-only event log with an HMAC chain for
// tamper detection. Each record carries the HMAC of its own fields plus the
// previous record's HMAC, so removing, reordering or editing records breaks
// the chain.
package audit

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

// MinDiskSpace is the minimum free space required before a write is attempted.
const MinDiskSpace = 1024 * 1024

// Operation types.
const (
	OpVaultStore    = "vault.store"
	OpVaultRetrieve = "vault.retrieve"
	OpVaultDenied   = "vault.retrieve_denied"
	OpVaultDelete   = "vault.delete"

	OpScheduleAdd    = "schedule.add"
	OpScheduleToggle = "schedule.toggle"
	OpScheduleRemove = "schedule.remove"

	OpEmergencyRequest  = "emergency.request"
	OpEmergencyCancel   = "emergency.cancel"
	OpEmergencyComplete = "emergency.complete"

	OpExport = "vault.export"
)

// Result values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

const keyInfo = "pinlock-audit-v1"

// Event is a single audit log record.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"`
	Timestamp string `json:"ts"` // RFC 3339 nanosecond precision

	Operation string `json:"op"`
	VaultHMAC string `json:"vault_hmac,omitempty"` // HMAC of the vault name, never the name itself
	OwnerID   string `json:"owner,omitempty"`

	Result string     `json:"result"`
	Error  *ErrorInfo `json:"error,omitempty"`

	Context map[string]interface{} `json:"ctx,omitempty"`

	Chain Chain `json:"chain"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain links a record to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger appends HMAC-chained events to monthly JSONL files.
type Logger struct {
	path     string // log directory
	ownerID  string
	hmacKey  []byte
	mu       sync.Mutex
	sequence int64
	prevHash string
	keySet   bool
}

// NewLogger creates a logger writing under path. The key must be loaded with
// LoadKey before events can be recorded.
func NewLogger(path, ownerID string) *Logger {
	return &Logger{
		path:     path,
		ownerID:  ownerID,
		prevHash: "genesis",
	}
}

// LoadKey reads the per-install key file at keyPath, creating it with fresh
// random bytes on first run, and derives the chain HMAC key from it with
// HKDF-SHA256.
func (l *Logger) LoadKey(keyPath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	seed, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		seed = make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			return fmt.Errorf("audit: failed to generate key: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
			return fmt.Errorf("audit: failed to create key directory: %w", err)
		}
		if err := os.WriteFile(keyPath, seed, 0600); err != nil {
			return fmt.Errorf("audit: failed to write key file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("audit: failed to read key file: %w", err)
	}

	hkdfReader := hkdf.New(sha256.New, seed, nil, []byte(keyInfo))
	l.hmacKey = make([]byte, 32)
	if _, err := hkdfReader.Read(l.hmacKey); err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	l.keySet = true

	// First run has no chain state yet.
	if err := l.loadChainState(); err != nil {
		l.sequence = 0
		l.prevHash = "genesis"
	}

	return nil
}

// Log records an audit event.
func (l *Logger) Log(op, result, vaultName string, errInfo *ErrorInfo, ctx map[string]interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.keySet {
		return fmt.Errorf("audit: HMAC key not set")
	}

	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}

	if err := l.checkDiskSpace(); err != nil {
		return err
	}

	event := Event{
		Version:   1,
		ID:        generateEventID(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		OwnerID:   l.ownerID,
		Result:    result,
		Error:     errInfo,
		Context:   ctx,
	}

	// Vault names may hint at what they protect, so only their HMAC is stored.
	if vaultName != "" {
		mac := hmac.New(sha256.New, l.hmacKey)
		mac.Write([]byte(vaultName))
		event.VaultHMAC = hex.EncodeToString(mac.Sum(nil))
	}

	l.sequence++
	event.Chain.Sequence = l.sequence
	event.Chain.PrevHash = l.prevHash

	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write(l.buildRecordData(&event))
	event.Chain.HMAC = hex.EncodeToString(mac.Sum(nil))

	l.prevHash = event.Chain.HMAC

	if err := l.writeEvent(&event); err != nil {
		return err
	}

	return l.saveChainState()
}

// LogSuccess is a convenience method for successful operations.
func (l *Logger) LogSuccess(op, vaultName string) error {
	return l.Log(op, ResultSuccess, vaultName, nil, nil)
}

// LogError is a convenience method for failed operations.
func (l *Logger) LogError(op, vaultName, errCode, errMsg string) error {
	return l.Log(op, ResultError, vaultName, &ErrorInfo{Code: errCode, Message: errMsg}, nil)
}

// LogDenied is a convenience method for operations refused by the access gate.
func (l *Logger) LogDenied(op, vaultName, reason string) error {
	return l.Log(op, ResultDenied, vaultName, nil, map[string]interface{}{"reason": reason})
}

// buildRecordData serializes every significant field into the byte string
// covered by the record HMAC.
func (l *Logger) buildRecordData(event *Event) []byte {
	errorData := ""
	if event.Error != nil {
		errorData = fmt.Sprintf("%s|%s", event.Error.Code, event.Error.Message)
	}

	// Context keys are sorted so the HMAC is deterministic.
	contextData := ""
	if event.Context != nil {
		keys := make([]string, 0, len(event.Context))
		for k := range event.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			contextData += fmt.Sprintf("%s=%v|", k, event.Context[k])
		}
	}

	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		event.Version,
		event.ID,
		event.Timestamp,
		event.Operation,
		event.VaultHMAC,
		event.OwnerID,
		event.Result,
		errorData,
		contextData,
		event.Chain.Sequence,
		event.Chain.PrevHash,
	)
	return []byte(data)
}

// writeEvent appends an event to the current month's log file.
func (l *Logger) writeEvent(event *Event) error {
	filename := time.Now().UTC().Format("2006-01") + ".jsonl"
	logPath := filepath.Join(l.path, filename)

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}

	return nil
}

// ChainState holds the persistent chain state.
type ChainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.path, "audit.meta"))
	if err != nil {
		return err
	}

	var state ChainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}

	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	state := ChainState{Sequence: l.sequence, PrevHash: l.prevHash}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(l.path, "audit.meta"), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}

	return nil
}

// generateEventID creates a time-sortable unique identifier
// (millisecond timestamp prefix plus random suffix).
func generateEventID() string {
	ts := time.Now().UnixMilli()
	tsBytes := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		tsBytes[i] = byte(ts & 0xFF)
		ts >>= 8
	}

	randBytes := make([]byte, 10)
	if _, err := rand.Read(randBytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}

	return hex.EncodeToString(append(tsBytes, randBytes...))
}

// VerifyResult contains the results of chain verification.
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"records_total"`
	RecordsVerified int      `json:"records_verified"`
	Errors          []string `json:"errors,omitempty"`
}

// Verify checks the integrity of the audit log chain.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.keySet {
		return nil, fmt.Errorf("audit: HMAC key not set")
	}

	result := &VerifyResult{Valid: true}

	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}

	expectedPrevHash := "genesis"
	var expectedSeq int64 = 1

	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}

		for _, event := range events {
			result.RecordsTotal++

			if event.Chain.Sequence != expectedSeq {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"sequence gap at record %s: expected %d, got %d",
					event.ID, expectedSeq, event.Chain.Sequence))
			}

			if event.Chain.PrevHash != expectedPrevHash {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"chain broken at record %s: expected prev %s, got %s",
					event.ID, expectedPrevHash, event.Chain.PrevHash))
			}

			mac := hmac.New(sha256.New, l.hmacKey)
			mac.Write(l.buildRecordData(&event))
			if event.Chain.HMAC != hex.EncodeToString(mac.Sum(nil)) {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"HMAC mismatch at record %s: possible tampering", event.ID))
			}

			expectedPrevHash = event.Chain.HMAC
			expectedSeq++
		}
	}

	result.RecordsVerified = result.RecordsTotal
	return result, nil
}

// ListEvents returns audit events in chronological order.
// limit caps the result to the most recent events (0 = all); since drops
// events at or before the given time (zero = no filter).
func (l *Logger) ListEvents(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}

	var all []Event
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		all = append(all, events...)
	}

	var filtered []Event
	if !since.IsZero() {
		for _, event := range all {
			eventTime, err := time.Parse(time.RFC3339Nano, event.Timestamp)
			if err != nil {
				continue
			}
			if eventTime.After(since) {
				filtered = append(filtered, event)
			}
		}
	} else {
		filtered = all
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}

	return filtered, nil
}

// Path returns the audit log directory path.
func (l *Logger) Path() string {
	return l.path
}

// logFiles lists the monthly log files in chronological order. The
// YYYY-MM.jsonl naming makes lexical order chronological.
func (l *Logger) logFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func readLogFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events []Event
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			if i > start {
				var event Event
				if err := json.Unmarshal(data[start:i], &event); err != nil {
					return nil, fmt.Errorf("failed to parse line: %w", err)
				}
				events = append(events, event)
			}
			start = i + 1
		}
	}

	return events, nil
}
