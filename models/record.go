// Package models defines data structures shared by the scraper and the crawler.
package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Field is one named value of a Record. A nil Value means the field could
// not be extracted.
type Field struct {
	Name  string
	Value any
}

// Record is an application record with a stable field order.
// Records are built once and never mutated afterwards.
type Record []Field

// Get returns the value for name and whether the field is present in the
// record. A present field may still hold nil.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// String returns the named value when it is a string.
func (r Record) String(name string) string {
	v, _ := r.Get(name)
	s, _ := v.(string)
	return s
}

// Names lists field names in record order.
func (r Record) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// Without returns a copy of r that omits the listed fields.
func (r Record) Without(names ...string) Record {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	out := make(Record, 0, len(r))
	for _, f := range r {
		if _, ok := drop[f.Name]; ok {
			continue
		}
		out = append(out, f)
	}
	return out
}

// MarshalJSON encodes the record as an object in field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ReducedHeader is the header row of the reduced metadata output.
const ReducedHeader = "appId,version,updated,released,downloadLink,downloadLinkEnabled"

// ReducedRecord is the reduced metadata shape written by default.
type ReducedRecord struct {
	AppID               string `json:"appId"`
	Version             string `json:"version"`
	Updated             string `json:"updated"`
	Released            string `json:"released"`
	DownloadLink        bool   `json:"downloadLink"`
	DownloadLinkEnabled bool   `json:"downloadLinkEnabled"`
}

// Row renders the record as one reduced CSV line without the trailing newline.
// Released dates look like "Oct 9, 2012" and are quoted when present.
func (r ReducedRecord) Row() string {
	released := r.Released
	if released != "" {
		released = `"` + released + `"`
	}
	var buf bytes.Buffer
	buf.WriteString(r.AppID)
	buf.WriteByte(',')
	buf.WriteString(r.Version)
	buf.WriteByte(',')
	buf.WriteString(r.Updated)
	buf.WriteByte(',')
	buf.WriteString(released)
	buf.WriteByte(',')
	buf.WriteString(strconv.FormatBool(r.DownloadLink))
	buf.WriteByte(',')
	buf.WriteString(strconv.FormatBool(r.DownloadLinkEnabled))
	return buf.String()
}

// CrawlResult summarises one crawl run.
type CrawlResult struct {
	StartTime    time.Time
	EndTime      time.Time
	InputCount   int
	SkippedCount int
	QueuedCount  int
	Finished     int
	Failed       int
	Abandoned    int
	Aborted      int
	RetryCount   int
	ErrorsByType map[string]int
}
