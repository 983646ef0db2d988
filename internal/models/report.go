package models

import (
	"strings"
	"time"
)

// Trigger is the externally written signal selecting the report kind.
type Trigger string

// Known trigger values.
const (
	TriggerDaily Trigger = "DAILY"
	TriggerAlert Trigger = "ALERT"
)

// Kind is the report kind derived from the trigger.
type Kind string

// Report kinds.
const (
	KindRegular Kind = "regular"
	KindSpecial Kind = "special"
)

// Kind maps a trigger to its report kind. Unknown triggers are regular.
func (t Trigger) Kind() Kind {
	if t == TriggerAlert {
		return KindSpecial
	}
	return KindRegular
}

// Selection is the resolved input for one agent run.
type Selection struct {
	Trigger    Trigger
	Kind       Kind
	SourceFile string // file name inside ReportSettings.SourceDir
	Date       string // YYYY-MM-DD
	At         time.Time
}

// ReportFile is one image found by the viewer.
type ReportFile struct {
	Name string
	Path string
	Kind Kind // empty when the name carries no known keyword
}

// Label returns the display label for the report.
func (r ReportFile) Label() string {
	switch r.Kind {
	case KindRegular:
		return "Regular report"
	case KindSpecial:
		return "Special report"
	default:
		return "Report"
	}
}

// Ext returns the lower-case extension without the dot.
func (r ReportFile) Ext() string {
	i := strings.LastIndex(r.Name, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(r.Name[i+1:])
}
