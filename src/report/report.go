package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/ZoraNeverEatFish/genericCC-for-ICC/src/analysis"
)

// SchemaVersion marks the envelope layout. Bump on breaking changes so
// downstream consumers can filter.
const SchemaVersion = 1

// Meta identifies one analysis run.
type Meta struct {
	TimestampUTC  string `json:"timestamp_utc" yaml:"timestamp_utc"`
	RunID         string `json:"run_id" yaml:"run_id"`
	SchemaVersion int    `json:"schema_version" yaml:"schema_version"`
	Hostname      string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	ToolVersion   string `json:"tool_version,omitempty" yaml:"tool_version,omitempty"`
	Input         string `json:"input" yaml:"input"`
	BinWidthMs    int64  `json:"bin_width_ms" yaml:"bin_width_ms"`
	TimeBeginMs   int64  `json:"time_begin_ms" yaml:"time_begin_ms"`
	BaseTimestamp int64  `json:"base_timestamp" yaml:"base_timestamp"`
}

// Envelope is the machine-readable analysis report: run identity plus the
// whole-trace summary and the signal-delay reconstruction scalars.
type Envelope struct {
	Meta        *Meta                 `json:"meta" yaml:"meta"`
	Summary     *analysis.Summary     `json:"summary" yaml:"summary"`
	SignalDelay *analysis.SignalDelay `json:"signal_delay,omitempty" yaml:"signal_delay,omitempty"`
}

// NewMeta stamps a run with the current UTC time, a fresh ULID, and the local
// hostname.
func NewMeta(input, toolVersion string, binWidthMs, timeBeginMs, baseTimestamp int64) *Meta {
	host, _ := os.Hostname()
	return &Meta{
		TimestampUTC:  time.Now().UTC().Format(time.RFC3339Nano),
		RunID:         ulid.Make().String(),
		SchemaVersion: SchemaVersion,
		Hostname:      host,
		ToolVersion:   toolVersion,
		Input:         input,
		BinWidthMs:    binWidthMs,
		TimeBeginMs:   timeBeginMs,
		BaseTimestamp: baseTimestamp,
	}
}

// Format selects the serialization of a report file.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// FormatForPath picks YAML for .yaml/.yml files and JSON for everything else.
func FormatForPath(p string) Format {
	switch strings.ToLower(path.Ext(p)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Marshal serializes the envelope, indented JSON or YAML.
func Marshal(env *Envelope, f Format) ([]byte, error) {
	switch f {
	case FormatYAML:
		return yaml.Marshal(env)
	default:
		return json.MarshalIndent(env, "", "\t")
	}
}

// Unmarshal parses a serialized envelope.
func Unmarshal(b []byte, f Format) (*Envelope, error) {
	env := &Envelope{}
	var err error
	switch f {
	case FormatYAML:
		err = yaml.Unmarshal(b, env)
	default:
		err = json.Unmarshal(b, env)
	}
	if err != nil {
		return nil, err
	}
	if env.Meta == nil || env.Summary == nil {
		return nil, fmt.Errorf("report lacks meta or summary section")
	}
	return env, nil
}

// WriteFile serializes the envelope to p in the format FormatForPath picks.
func WriteFile(p string, env *Envelope) error {
	f := FormatForPath(p)
	b, err := Marshal(env, f)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	glog.Infof("[report] wrote %s (%s, %d bytes)", p, f, len(b))
	return nil
}

// ReadFile loads a report written by WriteFile, picking the format from the
// file extension.
func ReadFile(p string) (*Envelope, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	env, err := Unmarshal(b, FormatForPath(p))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return env, nil
}
