package nfwgobfs

import (
	"bufio"
	"crypto/sha256"
	"fmt"
	"os"
	"strconv"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

const (
	DefaultConfigPath = "/etc/nf_wgobfs/config"

	kMinMTU = 576
	kMaxMTU = 9000

	// DefaultMTU is assumed for entries that do not name one.
	DefaultMTU = 1500
)

// Direction of a filter: ingress deobfuscates, egress obfuscates.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
)

func (d Direction) String() string {
	if d == DirectionIn {
		return "in"
	}
	return "out"
}

// ParseDirection maps "in"/"out" (case-insensitive) to a Direction.
func ParseDirection(s string) (d Direction, err error) {
	switch strings.ToLower(s) {
	case "in":
		d = DirectionIn
	case "out":
		d = DirectionOut
	default:
		err = fmt.Errorf("unknown direction %q", s)
	}
	return
}

// QueueEntry is one immutable filter configuration record. Lifetime is
// the process lifetime; the worker owns the derived state built from it.
type QueueEntry struct {
	QueueNum  uint16
	Direction Direction
	Name      string
	Key       [kKeyLen]byte
	Mode      CipherMode
	MTU       int
}

// DeriveKey hashes an arbitrary shared secret to the 32-byte session
// key. Done once at load time; the secret itself is not retained.
func DeriveKey(secret string) [kKeyLen]byte {
	return sha256.Sum256([]byte(secret))
}

// LoadConfig reads entries from path. Files ending in .json5 use the
// structured format; everything else is the line format
// QUEUE:DIRECTION:NAME:SECRET[:MODE][:MTU] with '#' comments.
func LoadConfig(path string) (entries []QueueEntry, err error) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	if strings.HasSuffix(path, ".json5") {
		return parseJSON5Config(f)
	}

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err = sc.Err(); err != nil {
		return
	}
	return ParseConfig(lines)
}

// ParseConfig parses the line-oriented config format. Blank lines and
// '#' comments are skipped; queue numbers must be unique.
func ParseConfig(lines []string) (entries []QueueEntry, err error) {
	seen := make(map[uint16]bool, len(lines))
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, perr := parseConfigLine(line)
		if perr != nil {
			err = ErrConfigLine{LineNum: i + 1, Line: line, Reason: perr.Error()}
			return
		}
		if seen[entry.QueueNum] {
			err = ErrDuplicateQueue{QueueNum: entry.QueueNum}
			return
		}
		seen[entry.QueueNum] = true
		entries = append(entries, entry)
	}
	return
}

func parseConfigLine(line string) (entry QueueEntry, err error) {
	parts := strings.Split(line, ":")
	if len(parts) < 4 || len(parts) > 6 {
		err = fmt.Errorf("expected 4 to 6 fields, got %d", len(parts))
		return
	}
	queueNum, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 16)
	if err != nil {
		err = fmt.Errorf("bad queue number %q", parts[0])
		return
	}
	entry.QueueNum = uint16(queueNum)
	entry.Direction, err = ParseDirection(strings.TrimSpace(parts[1]))
	if err != nil {
		return
	}
	entry.Name = strings.TrimSpace(parts[2])
	if entry.Name == "" {
		err = fmt.Errorf("empty name")
		return
	}
	secret := strings.TrimSpace(parts[3])
	if secret == "" {
		err = fmt.Errorf("empty secret")
		return
	}
	entry.Key = DeriveKey(secret)
	entry.Mode = ModeAuto
	entry.MTU = DefaultMTU

	for _, extra := range parts[4:] {
		extra = strings.TrimSpace(extra)
		switch strings.ToUpper(extra) {
		case "F":
			entry.Mode = ModeFast
			continue
		case "S":
			entry.Mode = ModeStandard
			continue
		}
		mtu, merr := strconv.Atoi(extra)
		if merr != nil {
			err = fmt.Errorf("field %q is neither a mode nor an mtu", extra)
			return
		}
		if mtu < kMinMTU || mtu > kMaxMTU {
			err = ErrMTUOutOfRange{MTU: mtu}
			return
		}
		entry.MTU = mtu
	}
	return
}

type configFileEntry struct {
	Queue     uint16 `json:"queue"`
	Direction string `json:"direction"`
	Name      string `json:"name"`
	Secret    string `json:"secret"`
	Mode      string `json:"mode,omitempty"`
	MTU       int    `json:"mtu,omitempty"`
}

type configFile struct {
	Filters []configFileEntry `json:"filters"`
}

func parseJSON5Config(f *os.File) (entries []QueueEntry, err error) {
	var cf configFile
	dec := json5.NewDecoder(f)
	if err = dec.Decode(&cf); err != nil {
		return
	}
	seen := make(map[uint16]bool, len(cf.Filters))
	for _, fe := range cf.Filters {
		if seen[fe.Queue] {
			err = ErrDuplicateQueue{QueueNum: fe.Queue}
			return
		}
		seen[fe.Queue] = true
		entry := QueueEntry{
			QueueNum: fe.Queue,
			Name:     fe.Name,
			Mode:     ModeAuto,
			MTU:      DefaultMTU,
		}
		if entry.Direction, err = ParseDirection(fe.Direction); err != nil {
			return
		}
		if fe.Name == "" {
			err = fmt.Errorf("filter for queue %d: empty name", fe.Queue)
			return
		}
		if fe.Secret == "" {
			err = fmt.Errorf("filter %q: empty secret", fe.Name)
			return
		}
		entry.Key = DeriveKey(fe.Secret)
		switch strings.ToUpper(fe.Mode) {
		case "":
		case "F":
			entry.Mode = ModeFast
		case "S":
			entry.Mode = ModeStandard
		default:
			err = fmt.Errorf("filter %q: unknown mode %q", fe.Name, fe.Mode)
			return
		}
		if fe.MTU != 0 {
			if fe.MTU < kMinMTU || fe.MTU > kMaxMTU {
				err = ErrMTUOutOfRange{MTU: fe.MTU}
				return
			}
			entry.MTU = fe.MTU
		}
		entries = append(entries, entry)
	}
	return
}
