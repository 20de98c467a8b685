// Package codec translates between the wire representation of a submission
// and the raw-bytes form the rest of the system works with.
//
// When base64_encoded=true the textual payload fields arrive and leave as
// standard base64; otherwise they are plain UTF-8. Storage is always raw
// bytes, so a record reads back identically regardless of which encoding
// created it.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"

	"kodejudge/internal/models"
)

// ErrBadEncoding marks a payload field that is not valid base64.
var ErrBadEncoding = errors.New("invalid base64 payload")

// FilePayload is the wire form of one additional file.
type FilePayload struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// SubmissionRequest is the wire form of a create payload. SourceCode is a
// pointer so a missing field is distinguishable from an empty program.
type SubmissionRequest struct {
	LanguageID      int           `json:"language_id"`
	SourceCode      *string       `json:"source_code"`
	Stdin           string        `json:"stdin"`
	ExpectedOutput  *string       `json:"expected_output"`
	AdditionalFiles []FilePayload `json:"additional_files"`

	CPUTimeLimit           *float64 `json:"cpu_time_limit"`
	CPUExtraTime           *float64 `json:"cpu_extra_time"`
	WallTimeLimit          *float64 `json:"wall_time_limit"`
	MemoryLimit            *int     `json:"memory_limit"`
	MaxProcesses           *int     `json:"max_processes_and_or_threads"`
	MaxFileSize            *int     `json:"max_file_size"`
	NumberOfRuns           *int     `json:"number_of_runs"`
	PerProcessTimeLimit    *bool    `json:"enable_per_process_and_thread_time_limit"`
	PerProcessMemoryLimit  *bool    `json:"enable_per_process_and_thread_memory_limit"`
	RedirectStderrToStdout *bool    `json:"redirect_stderr_to_stdout"`
	EnableNetwork          *bool    `json:"enable_network"`
}

// Decode converts the wire payload into a submission record with raw-byte
// fields. A missing source_code stays nil so validation can tell it apart
// from an empty program.
func (r *SubmissionRequest) Decode(base64Encoded bool) (*models.Submission, error) {
	sub := &models.Submission{
		LanguageID:             r.LanguageID,
		CPUTimeLimit:           r.CPUTimeLimit,
		CPUExtraTime:           r.CPUExtraTime,
		WallTimeLimit:          r.WallTimeLimit,
		MemoryLimit:            r.MemoryLimit,
		MaxProcesses:           r.MaxProcesses,
		MaxFileSize:            r.MaxFileSize,
		NumberOfRuns:           r.NumberOfRuns,
		PerProcessTimeLimit:    r.PerProcessTimeLimit,
		PerProcessMemoryLimit:  r.PerProcessMemoryLimit,
		RedirectStderrToStdout: r.RedirectStderrToStdout,
		EnableNetwork:          r.EnableNetwork,
	}

	if r.SourceCode != nil {
		data, err := decodeField("source_code", *r.SourceCode, base64Encoded)
		if err != nil {
			return nil, err
		}
		if data == nil {
			data = []byte{}
		}
		sub.SourceCode = data
	}
	if r.Stdin != "" {
		data, err := decodeField("stdin", r.Stdin, base64Encoded)
		if err != nil {
			return nil, err
		}
		sub.Stdin = data
	}
	if r.ExpectedOutput != nil {
		data, err := decodeField("expected_output", *r.ExpectedOutput, base64Encoded)
		if err != nil {
			return nil, err
		}
		if data == nil {
			data = []byte{}
		}
		sub.ExpectedOutput = data
	}
	for _, f := range r.AdditionalFiles {
		content, err := decodeField("additional_files."+f.Name, f.Content, base64Encoded)
		if err != nil {
			return nil, err
		}
		sub.AdditionalFiles = append(sub.AdditionalFiles, models.AdditionalFile{
			Name:    f.Name,
			Content: content,
		})
	}
	return sub, nil
}

func decodeField(name, value string, base64Encoded bool) ([]byte, error) {
	if !base64Encoded {
		return []byte(value), nil
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadEncoding, name)
	}
	return data, nil
}

// EncodeSubmission renders a stored record for the wire. Byte fields come
// out base64 or plain per the flag; nil result fields stay null.
func EncodeSubmission(sub *models.Submission, base64Encoded bool) map[string]any {
	out := map[string]any{
		"id":             sub.ID.String(),
		"language_id":    sub.LanguageID,
		"source_code":    encodeBytes(sub.SourceCode, base64Encoded),
		"status":         sub.Status,
		"stdout":         encodeString(sub.Stdout, base64Encoded),
		"stderr":         encodeString(sub.Stderr, base64Encoded),
		"compile_output": encodeString(sub.CompileOutput, base64Encoded),
		"meta":           sub.Meta,
		"created_at":     sub.CreatedAt,
	}
	if sub.Stdin != nil {
		out["stdin"] = encodeBytes(sub.Stdin, base64Encoded)
	}
	if sub.ExpectedOutput != nil {
		out["expected_output"] = encodeBytes(sub.ExpectedOutput, base64Encoded)
	}
	if len(sub.AdditionalFiles) > 0 {
		files := make([]FilePayload, 0, len(sub.AdditionalFiles))
		for _, f := range sub.AdditionalFiles {
			var content string
			if s := encodeBytes(f.Content, base64Encoded); s != nil {
				content = *s
			}
			files = append(files, FilePayload{Name: f.Name, Content: content})
		}
		out["additional_files"] = files
	}

	addOverride(out, "cpu_time_limit", sub.CPUTimeLimit)
	addOverride(out, "cpu_extra_time", sub.CPUExtraTime)
	addOverride(out, "wall_time_limit", sub.WallTimeLimit)
	addOverride(out, "memory_limit", sub.MemoryLimit)
	addOverride(out, "max_processes_and_or_threads", sub.MaxProcesses)
	addOverride(out, "max_file_size", sub.MaxFileSize)
	addOverride(out, "number_of_runs", sub.NumberOfRuns)
	addOverride(out, "enable_per_process_and_thread_time_limit", sub.PerProcessTimeLimit)
	addOverride(out, "enable_per_process_and_thread_memory_limit", sub.PerProcessMemoryLimit)
	addOverride(out, "redirect_stderr_to_stdout", sub.RedirectStderrToStdout)
	addOverride(out, "enable_network", sub.EnableNetwork)

	return out
}

// FilterFields keeps only the named keys. An empty field list means no
// filtering; unknown names are ignored.
func FilterFields(record map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		return record
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := record[f]; ok {
			out[f] = v
		}
	}
	return out
}

func encodeBytes(data []byte, base64Encoded bool) *string {
	if data == nil {
		return nil
	}
	var s string
	if base64Encoded {
		s = base64.StdEncoding.EncodeToString(data)
	} else {
		s = string(data)
	}
	return &s
}

func encodeString(value *string, base64Encoded bool) *string {
	if value == nil || !base64Encoded {
		return value
	}
	s := base64.StdEncoding.EncodeToString([]byte(*value))
	return &s
}

func addOverride[T any](out map[string]any, key string, value *T) {
	if value != nil {
		out[key] = *value
	}
}
