// Package models defines the persistent entities of the judge.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Language is an immutable catalog entry describing how to compile and run
// source code for one supported language.
type Language struct {
	ID             int       `json:"id" gorm:"primaryKey"`
	Name           string    `json:"name" gorm:"uniqueIndex;not null"`
	Version        string    `json:"version" gorm:"not null"`
	SourceFileName string    `json:"source_filename" gorm:"not null"`
	CompileCommand *string   `json:"compile_cmd,omitempty"`
	RunCommand     string    `json:"run_cmd" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Status is the lifecycle state of a submission. It advances monotonically
// and never leaves a terminal state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusFinished   Status = "FINISHED"
	StatusError      Status = "ERROR"
	StatusCancelled  Status = "CANCELLED"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusError, StatusCancelled:
		return true
	}
	return false
}

// AdditionalFile is a named byte blob materialized next to the source file
// in the sandbox scratch directory.
type AdditionalFile struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

// Meta carries the resource telemetry of an executed program.
type Meta struct {
	Time          float64 `json:"time"`
	Memory        int     `json:"memory"`
	ExitCode      *int    `json:"exit_code,omitempty"`
	Signal        *string `json:"signal,omitempty"`
	Message       string  `json:"message,omitempty"`
	OutputMatches *bool   `json:"output_matches,omitempty"`
}

// Submission is a single code-execution request and its evolving result.
// The language is referenced by id only; it is resolved through the catalog
// on read and never embedded in the row.
type Submission struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	LanguageID int       `json:"language_id" gorm:"not null;index"`

	SourceCode      []byte           `json:"source_code" gorm:"not null"`
	Stdin           []byte           `json:"stdin,omitempty"`
	ExpectedOutput  []byte           `json:"expected_output,omitempty"`
	AdditionalFiles []AdditionalFile `json:"additional_files,omitempty" gorm:"serializer:json"`

	// Per-submission sandbox limit overrides. Nil means the configured
	// default applies.
	CPUTimeLimit           *float64 `json:"cpu_time_limit,omitempty"`
	CPUExtraTime           *float64 `json:"cpu_extra_time,omitempty"`
	WallTimeLimit          *float64 `json:"wall_time_limit,omitempty"`
	MemoryLimit            *int     `json:"memory_limit,omitempty"`
	MaxProcesses           *int     `json:"max_processes_and_or_threads,omitempty"`
	MaxFileSize            *int     `json:"max_file_size,omitempty"`
	NumberOfRuns           *int     `json:"number_of_runs,omitempty"`
	PerProcessTimeLimit    *bool    `json:"enable_per_process_and_thread_time_limit,omitempty"`
	PerProcessMemoryLimit  *bool    `json:"enable_per_process_and_thread_memory_limit,omitempty"`
	RedirectStderrToStdout *bool    `json:"redirect_stderr_to_stdout,omitempty"`
	EnableNetwork          *bool    `json:"enable_network,omitempty"`

	Status        Status  `json:"status" gorm:"not null;default:'PENDING';index"`
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Meta          *Meta   `json:"meta" gorm:"serializer:json"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// BeforeCreate assigns the opaque submission id.
func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
