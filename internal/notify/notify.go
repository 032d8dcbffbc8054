// Package notify prints machine-readable status records for the developer UI
// that hosts a build. Each record is a single line on stderr:
//
//	miix-status:{"kind":"status","state":1}
package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dnswlt/miixkit/internal/metadata"
)

const (
	// Prefix precedes the JSON encoding of every record.
	Prefix = "miix-status:"
	// EnvVar enables the Notifier when set to a non-empty value.
	EnvVar = "MIIX_UI_HOSTED"
)

// State of a compilation.
type State int

const (
	Started State = iota
	Success
	Error
)

func (s State) String() string {
	switch s {
	case Started:
		return "started"
	case Success:
		return "success"
	case Error:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Kind discriminates the record types.
type Kind string

const (
	KindStatus        Kind = "status"
	KindMetadata      Kind = "metadata"
	KindBundleCreated Kind = "bundle-created"
	KindBundleFailed  Kind = "bundle-failed"
)

// Notification is one status record.
type Notification interface {
	Kind() Kind
}

type Status struct {
	State State `json:"state"`
}

type Metadata struct {
	Metadata *metadata.Package `json:"metadata"`
}

type BundleCreated struct {
	// Location of the archive on disk.
	Location string `json:"location"`
	// Readme is the rendered project readme, or nil if the project has none.
	Readme   *string `json:"readme"`
	Checksum string  `json:"sha256"`
	Size     int64   `json:"size"`
}

type BundleFailed struct {
	Error string `json:"error"`
}

func (Status) Kind() Kind        { return KindStatus }
func (Metadata) Kind() Kind      { return KindMetadata }
func (BundleCreated) Kind() Kind { return KindBundleCreated }
func (BundleFailed) Kind() Kind  { return KindBundleFailed }

// Encode returns the JSON encoding of n, including its "kind".
func Encode(n Notification) ([]byte, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, err := json.Marshal(n.Kind())
	if err != nil {
		return nil, err
	}
	fields["kind"] = kind
	return json.Marshal(fields)
}

// Read parses a single line written by a Notifier.
// It returns nil, nil if line is not a status record.
func Read(line string) (Notification, error) {
	line = strings.TrimSpace(line)
	payload, ok := strings.CutPrefix(line, Prefix)
	if !ok {
		return nil, nil
	}

	var head struct {
		Kind  Kind            `json:"kind"`
		State json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal([]byte(payload), &head); err != nil {
		return nil, fmt.Errorf("invalid status record: %w", err)
	}
	// Older producers wrote status records without a kind.
	if head.Kind == "" && head.State != nil {
		head.Kind = KindStatus
	}

	var n Notification
	var err error
	switch head.Kind {
	case KindStatus:
		var s Status
		err = json.Unmarshal([]byte(payload), &s)
		n = s
	case KindMetadata:
		var m Metadata
		err = json.Unmarshal([]byte(payload), &m)
		n = m
	case KindBundleCreated:
		var b BundleCreated
		err = json.Unmarshal([]byte(payload), &b)
		n = b
	case KindBundleFailed:
		var b BundleFailed
		err = json.Unmarshal([]byte(payload), &b)
		n = b
	default:
		return nil, fmt.Errorf("unknown status record kind %q", head.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s record: %w", head.Kind, err)
	}
	return n, nil
}

// ReadAll returns all status records found in the output stream s,
// skipping lines that are not records.
func ReadAll(s string) ([]Notification, error) {
	var result []Notification
	for _, line := range strings.Split(s, "\n") {
		n, err := Read(line)
		if err != nil {
			return nil, err
		}
		if n != nil {
			result = append(result, n)
		}
	}
	return result, nil
}

// Notifier writes status records. Enabled only controls whether Apply
// tracks the compiler's status; Print always writes.
type Notifier struct {
	enabled bool
	mu      sync.Mutex
	w       io.Writer
}

// New returns a Notifier writing to w.
func New(w io.Writer, enabled bool) *Notifier {
	return &Notifier{
		enabled: enabled,
		w:       w,
	}
}

// FromEnv returns a Notifier writing to stderr that is enabled iff EnvVar is set.
func FromEnv() *Notifier {
	return New(os.Stderr, os.Getenv(EnvVar) != "")
}

func (n *Notifier) Enabled() bool {
	return n.enabled
}

// Print writes the record notification.
func (n *Notifier) Print(notification Notification) error {
	bs, err := Encode(notification)
	if err != nil {
		return fmt.Errorf("could not encode %s record: %w", notification.Kind(), err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	// Leading newline in case whoever wrote before us did not finish their line.
	_, err = fmt.Fprintf(n.w, "\n%s%s\n", Prefix, bs)
	return err
}
